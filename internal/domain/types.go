package domain

import "time"

// Metadata keys attached by the ingestion pipeline.
const (
	MetaSource      = "source"
	MetaTimestamp   = "timestamp"
	MetaChunk       = "chunk"
	MetaContentHash = "content_sha256"
)

// Metric selects how a collection measures vector distance.
type Metric string

const (
	// MetricCosine ranks by cosine similarity and is invariant to
	// vector magnitude. Default.
	MetricCosine Metric = "cosine"
	// MetricL2 ranks by Euclidean distance.
	MetricL2 Metric = "l2"
)

// Valid reports whether m names a supported metric.
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricL2
}

// Document is a single unit of fetched content before embedding.
// Immutable after creation.
type Document struct {
	Source   string
	Text     string
	Metadata map[string]string
}

// NewDocument builds a document stamped with its source and the
// ingestion time in UTC.
func NewDocument(source, text string, now time.Time) Document {
	return Document{
		Source: source,
		Text:   text,
		Metadata: map[string]string{
			MetaSource:    source,
			MetaTimestamp: now.UTC().Format(time.RFC3339),
		},
	}
}

// Record is the persisted unit owned by a vector store. Records are
// appended and never updated in place.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// Collection names a dimension-homogeneous set of records forming one
// searchable index.
type Collection struct {
	Name      string
	Dimension int
	Metric    Metric
}

// Match pairs a retrieved record with its similarity score.
type Match struct {
	Record Record
	Score  float64
}
