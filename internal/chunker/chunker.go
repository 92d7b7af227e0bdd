// Package chunker implements the splitting policies applied to a
// document before embedding: none, fixed-size, and sentence-aware.
package chunker

import (
	"regexp"
	"strings"

	"ragstack/internal/domain"
)

var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// None passes the document through as a single chunk. Default policy.
type None struct{}

func (None) Chunk(doc domain.Document) []string {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}
	return []string{text}
}

// Fixed splits text into rune windows of the configured size with
// optional overlap.
type Fixed struct {
	size    int
	overlap int
}

func NewFixed(size, overlap int) *Fixed {
	if size <= 0 {
		size = 1200
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Fixed{size: size, overlap: overlap}
}

func (c *Fixed) Chunk(doc domain.Document) []string {
	runes := []rune(strings.TrimSpace(doc.Text))
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	step := c.size - c.overlap
	for i := 0; i < len(runes); i += step {
		end := i + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Sentence groups N sentences per chunk with optional sentence overlap.
type Sentence struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewSentence(sentencesPerChunk, overlapSentences int) *Sentence {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &Sentence{sentencesPerChunk: sentencesPerChunk, overlapSentences: overlapSentences}
}

func (c *Sentence) Chunk(doc domain.Document) []string {
	sentences := sentenceRe.FindAllString(doc.Text, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(doc.Text)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	var chunks []string
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}
