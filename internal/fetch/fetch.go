// Package fetch resolves source identifiers into documents: http(s)
// URLs are downloaded and reduced to plain text, filesystem paths are
// read directly, directories yield one document per contained file.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ragstack/internal/domain"
)

// maxBodyBytes caps a single page download.
const maxBodyBytes = 10 << 20

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// Fetcher retrieves raw content for the ingestion pipeline.
type Fetcher struct {
	client *http.Client
	now    func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client, mainly for tests.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithClock replaces the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a Fetcher whose HTTP requests time out after timeout.
func New(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &Fetcher{
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch resolves a URL or path into documents stamped with source and
// ingestion timestamp metadata.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]domain.Document, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		doc, err := f.fetchURL(ctx, source)
		if err != nil {
			return nil, err
		}
		return []domain.Document{doc}, nil
	}
	return f.fetchPath(source)
}

func (f *Fetcher) fetchURL(ctx context.Context, url string) (domain.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnreachable, url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnreachable, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Document{}, fmt.Errorf("%w: %s: status %s", domain.ErrSourceUnreachable, url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnreachable, url, err)
	}
	text := string(body)
	if isHTML(resp.Header.Get("Content-Type"), text) {
		text, err = htmlToText(text)
		if err != nil {
			return domain.Document{}, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnreachable, url, err)
		}
	}
	return domain.NewDocument(url, text, f.now()), nil
}

func (f *Fetcher) fetchPath(path string) ([]domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnreachable, path, err)
	}
	if !info.IsDir() {
		doc, err := f.readFile(path)
		if err != nil {
			return nil, err
		}
		return []domain.Document{doc}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnreachable, path, err)
	}
	var docs []domain.Document
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		doc, err := f.readFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no regular files in %s", domain.ErrSourceNotFound, path)
	}
	return docs, nil
}

func (f *Fetcher) readFile(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnreachable, path, err)
	}
	text := string(data)
	if strings.EqualFold(filepath.Ext(path), ".html") || strings.EqualFold(filepath.Ext(path), ".htm") {
		text, err = htmlToText(text)
		if err != nil {
			return domain.Document{}, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnreachable, path, err)
		}
	}
	return domain.NewDocument(path, text, f.now()), nil
}

func isHTML(contentType, body string) bool {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			return mt == "text/html" || mt == "application/xhtml+xml"
		}
	}
	return strings.Contains(strings.ToLower(body[:min(len(body), 512)]), "<html")
}

// htmlToText strips markup, dropping script and style subtrees, and
// collapses the result to paragraph-separated plain text.
func htmlToText(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	var b strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		b.WriteString(sel.Text())
	})
	text := b.String()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
