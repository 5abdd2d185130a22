package canon

import "fmt"

// Kind identifies a synchronized root entity kind.
type Kind string

const (
	KindOrder   Kind = "order"
	KindProduct Kind = "product"
	KindClaim   Kind = "claim"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindOrder, KindProduct, KindClaim}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q: must be one of %v", s, Kinds)
}

// FullSnapshot reports whether every sync fetch of this kind returns the
// complete current set, enabling delete-by-absence reconciliation.
// Orders and claims are append/update-only.
func (k Kind) FullSnapshot() bool {
	return k == KindProduct
}

// ShortPageTerminates reports whether a page shorter than the requested
// size ends pagination regardless of the reported total page count.
func (k Kind) ShortPageTerminates() bool {
	return k == KindClaim
}

func (k Kind) String() string {
	return string(k)
}
