// Package web serves a minimal read-only viewer over a collection so
// indexed records can be inspected from a browser.
package web

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"ragstack/internal/domain"
)

// maxRecords bounds the listing to the newest records.
const maxRecords = 100

var pageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>ragstack — {{.Collection}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; vertical-align: top; }
th { background: #f0f0f0; }
td.id { font-family: monospace; white-space: nowrap; }
.meta { color: #666; font-size: 0.85em; }
</style>
</head>
<body>
<h1>{{.Collection}}</h1>
<p>{{.Count}} record(s), newest first (showing up to {{.Limit}}).</p>
<table>
<tr><th>ID</th><th>Text</th><th>Metadata</th></tr>
{{range .Records}}
<tr>
<td class="id">{{.ID}}</td>
<td>{{.Text}}</td>
<td class="meta">{{range $k, $v := .Metadata}}{{$k}}={{$v}}<br>{{end}}</td>
</tr>
{{else}}
<tr><td colspan="3">No records indexed yet.</td></tr>
{{end}}
</table>
</body>
</html>
`))

// Server exposes the record listing over HTTP.
type Server struct {
	store      domain.VectorStore
	collection string
	log        *slog.Logger
}

// NewServer builds a viewer over the named collection.
func NewServer(store domain.VectorStore, collection string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: store, collection: collection, log: log}
}

// Handler returns the HTTP routes of the viewer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	return mux
}

// ListenAndServe blocks serving the viewer until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("viewer listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(r.Context(), s.collection, maxRecords)
	if err != nil {
		s.log.Error("listing records", "error", err)
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	data := struct {
		Collection string
		Count      int
		Limit      int
		Records    []domain.Record
	}{
		Collection: s.collection,
		Count:      len(recs),
		Limit:      maxRecords,
		Records:    recs,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.log.Error("rendering page", "error", err)
	}
}
