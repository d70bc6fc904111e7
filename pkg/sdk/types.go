package caselens

import (
	"fmt"

	domdoc "github.com/caselens/caselens/internal/domain/document"
)

// KPolicy decides what happens to a k above the configured maximum.
type KPolicy string

// K policy constants.
const (
	KClamp  KPolicy = "clamp"
	KReject KPolicy = "reject"
)

// Document is a stored legal case. ID is assigned on Ingest.
type Document struct {
	ID             int64
	Title          string
	Classification string
	Summary        string
	PDFLink        string
}

// Match is a document ranked by Euclidean distance to the query (lower is closer).
type Match struct {
	Document
	Distance float64
}

func toDomainDocuments(docs []Document) ([]domdoc.Document, error) {
	out := make([]domdoc.Document, len(docs))
	for i := range docs {
		d, err := domdoc.New(docs[i].Title, docs[i].Classification, docs[i].Summary, docs[i].PDFLink)
		if err != nil {
			return nil, fmt.Errorf("document [%d]: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

func fromDomainDocument(d *domdoc.Document) Document {
	return Document{
		ID:             d.ID(),
		Title:          d.Title(),
		Classification: d.Classification(),
		Summary:        d.Summary(),
		PDFLink:        d.PDFLink(),
	}
}

func fromDomainDocuments(docs []domdoc.Document) []Document {
	out := make([]Document, len(docs))
	for i := range docs {
		out[i] = fromDomainDocument(&docs[i])
	}
	return out
}

func fromDomainMatches(matches []domdoc.Match) []Match {
	out := make([]Match, len(matches))
	for i := range matches {
		out[i] = Match{
			Document: fromDomainDocument(&matches[i].Document),
			Distance: matches[i].Distance,
		}
	}
	return out
}
