package document

import (
	"fmt"
	"strings"

	"github.com/caselens/caselens/internal/domain"
)

// Size limits for stored case records.
const (
	MaxTitleSize   = 512
	MaxSummarySize = 65536 // 64KB
)

// Document is a stored legal case record (immutable value object).
// The embedding is derived from the summary and travels with it.
type Document struct {
	id             int64
	title          string
	classification string
	summary        string
	pdfLink        string
	embedding      []float32
}

// New validates and creates a Document that has not been stored yet (ID 0).
// Title and summary must be non-blank; classification and pdfLink are free-form.
func New(title, classification, summary, pdfLink string) (Document, error) {
	if strings.TrimSpace(title) == "" {
		return Document{}, fmt.Errorf("%w: title is required", domain.ErrInvalidArgument)
	}
	if len(title) > MaxTitleSize {
		return Document{}, fmt.Errorf("%w: title too long (max %d bytes)", domain.ErrInvalidArgument, MaxTitleSize)
	}
	if strings.TrimSpace(summary) == "" {
		return Document{}, fmt.Errorf("%w: summary is required", domain.ErrInvalidArgument)
	}
	if len(summary) > MaxSummarySize {
		return Document{}, fmt.Errorf("%w: summary too large (max %d bytes)", domain.ErrInvalidArgument, MaxSummarySize)
	}

	return Document{
		title:          title,
		classification: classification,
		summary:        summary,
		pdfLink:        pdfLink,
	}, nil
}

// Reconstruct hydrates a Document from storage without validation.
func Reconstruct(
	id int64, title, classification, summary, pdfLink string, embedding []float32,
) Document {
	return Document{
		id: id, title: title, classification: classification,
		summary: summary, pdfLink: pdfLink, embedding: embedding,
	}
}

// ID returns the store-assigned identifier (0 before insertion).
func (d *Document) ID() int64 { return d.id }

// Title returns the display name.
func (d *Document) Title() string { return d.title }

// Classification returns the category label.
func (d *Document) Classification() string { return d.classification }

// Summary returns the synopsis the embedding is derived from.
func (d *Document) Summary() string { return d.summary }

// PDFLink returns the URI of the source document.
func (d *Document) PDFLink() string { return d.pdfLink }

// Embedding returns the stored vector, nil if not computed.
func (d *Document) Embedding() []float32 { return d.embedding }

// HasEmbedding reports whether an embedding is attached.
func (d *Document) HasEmbedding() bool { return len(d.embedding) > 0 }

// WithID returns a copy carrying the given identifier.
func (d *Document) WithID(id int64) Document {
	c := *d
	c.id = id
	return c
}

// WithEmbedding returns a copy with the vector attached.
func (d *Document) WithEmbedding(v []float32) Document {
	c := *d
	c.embedding = v
	return c
}

// WithSummary returns a copy with a new summary. The old embedding no longer
// describes the text, so it is dropped until recomputed.
func (d *Document) WithSummary(summary string) Document {
	c := *d
	c.summary = summary
	c.embedding = nil
	return c
}
