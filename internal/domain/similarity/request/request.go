package request

import (
	"fmt"
	"strings"

	"github.com/caselens/caselens/internal/domain"
)

// MaxQueryLength is the maximum accepted query size in bytes.
const MaxQueryLength = 16384

// KPolicy decides what happens to a k above the configured maximum.
type KPolicy string

const (
	// KClamp lowers k to the maximum.
	KClamp KPolicy = "clamp"
	// KReject fails the request with ErrInvalidArgument.
	KReject KPolicy = "reject"
)

// IsValid reports whether p is a known policy.
func (p KPolicy) IsValid() bool { return p == KClamp || p == KReject }

// Limits bounds the result-set size of a lookup.
type Limits struct {
	DefaultK int
	MaxK     int
	Policy   KPolicy
}

// Request is a validated similarity lookup.
type Request struct {
	query string
	k     int
}

// New validates query text and normalizes k.
// k == 0 selects the default; k < 0 is always rejected; k above MaxK follows the policy.
func New(query string, k int, lim Limits) (Request, error) {
	if strings.TrimSpace(query) == "" {
		return Request{}, fmt.Errorf("%w: query text is empty", domain.ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d bytes)", domain.ErrInvalidQuery, MaxQueryLength)
	}

	switch {
	case k < 0:
		return Request{}, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	case k == 0:
		k = lim.DefaultK
	}
	if lim.MaxK > 0 && k > lim.MaxK {
		if lim.Policy == KReject {
			return Request{}, fmt.Errorf("%w: k must be at most %d, got %d", domain.ErrInvalidArgument, lim.MaxK, k)
		}
		k = lim.MaxK
	}
	if k <= 0 {
		return Request{}, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}

	return Request{query: query, k: k}, nil
}

// Query returns the raw query text.
func (r *Request) Query() string { return r.query }

// K returns the number of neighbours to retrieve.
func (r *Request) K() int { return r.k }
