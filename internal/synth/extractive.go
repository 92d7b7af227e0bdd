package synth

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"ragstack/internal/domain"
)

// NoContextAnswer is returned when retrieval found nothing relevant.
const NoContextAnswer = "No relevant information was found in the indexed documents."

// Extractive answers without an LLM by selecting the context sentences
// that best overlap the question, ranked by question-biased word
// frequency. Useful offline and as the test synthesizer.
type Extractive struct {
	maxSentences int
	tokenPattern *regexp.Regexp
	sentencePat  *regexp.Regexp
	stopwords    map[string]struct{}
}

var _ domain.Synthesizer = (*Extractive)(nil)

// NewExtractive creates an extractive synthesizer returning at most
// maxSentences sentences per answer.
func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Extractive{
		maxSentences: maxSentences,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentencePat:  regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Extractive) Name() string { return "extractive" }

// Synthesize picks the best-matching context sentences in their
// original order. With no context it degrades to a fixed notice
// instead of failing.
func (e *Extractive) Synthesize(_ context.Context, question, contextText string) (string, error) {
	if strings.TrimSpace(contextText) == "" {
		return NoContextAnswer, nil
	}
	sentences := e.sentencePat.FindAllString(contextText, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(contextText), nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range e.tokens(sent) {
			if _, ok := e.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	// Question terms dominate plain frequency so the answer stays on
	// topic even in long contexts.
	qTokens := map[string]struct{}{}
	for _, tok := range e.tokens(question) {
		if _, ok := e.stopwords[tok]; !ok {
			qTokens[tok] = struct{}{}
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		score := 0.0
		toks := e.tokens(sent)
		for _, tok := range toks {
			if v, ok := freq[tok]; ok {
				score += v
			}
			if _, ok := qTokens[tok]; ok {
				score += 2
			}
		}
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := e.maxSentences
	if n > len(scores) {
		n = len(scores)
	}
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " "), nil
}

func (e *Extractive) tokens(text string) []string {
	return e.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again",
		"further", "than", "so", "such", "into", "about", "between",
		"through", "during", "before", "after", "above", "below", "out",
		"off", "own", "same", "too", "very", "can", "will", "just",
		"what", "which", "who", "how", "when", "where", "why", "does",
		"do", "did", "not", "no", "yes", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
