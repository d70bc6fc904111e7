package document

import "fmt"

// Match is a document ranked by distance to a query vector (lower is closer).
type Match struct {
	Document Document
	Distance float64
}

// Less reports whether a ranks before b: ascending distance, then ascending ID.
func Less(a, b *Match) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Document.ID() < b.Document.ID()
}

// CheckOrdering returns an error describing the first adjacent pair out of order.
func CheckOrdering(matches []Match) error {
	for i := 1; i < len(matches); i++ {
		if Less(&matches[i], &matches[i-1]) {
			return fmt.Errorf(
				"result %d (id=%d, distance=%g) ranks before result %d (id=%d, distance=%g)",
				i, matches[i].Document.ID(), matches[i].Distance,
				i-1, matches[i-1].Document.ID(), matches[i-1].Distance,
			)
		}
	}
	return nil
}

// Documents strips distances, keeping order.
func Documents(matches []Match) []Document {
	docs := make([]Document, len(matches))
	for i := range matches {
		docs[i] = matches[i].Document
	}
	return docs
}
