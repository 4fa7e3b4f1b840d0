// Package tier models the storage-location state of a media asset and
// the rules governing its transitions.
package tier

import "fmt"

// Tier identifies which backends currently hold an asset's bytes.
type Tier string

const (
	// PrimaryOnly is the initial tier set by ingest.
	PrimaryOnly Tier = "primary_only"
	// PrimaryAndSecondary means a confirmed copy exists on the secondary backend.
	PrimaryAndSecondary Tier = "primary_and_secondary"
	// SecondaryOnly means the primary copy has been pruned.
	SecondaryOnly Tier = "secondary_only"
)

var order = map[Tier]int{
	PrimaryOnly:         0,
	PrimaryAndSecondary: 1,
	SecondaryOnly:       2,
}

// IsValid reports whether the tier is a known state.
func (t Tier) IsValid() bool {
	_, ok := order[t]
	return ok
}

// Next returns the forward transition from t. The second return is false
// when t is terminal or unknown.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case PrimaryOnly:
		return PrimaryAndSecondary, true
	case PrimaryAndSecondary:
		return SecondaryOnly, true
	default:
		return t, false
	}
}

// AtOrPast reports whether t has already reached target on the forward
// path. Unknown tiers never satisfy it.
func (t Tier) AtOrPast(target Tier) bool {
	ti, ok := order[t]
	if !ok {
		return false
	}
	gi, ok := order[target]
	if !ok {
		return false
	}
	return ti >= gi
}

// HasPrimary reports whether the primary backend still holds the bytes.
func (t Tier) HasPrimary() bool {
	return t == PrimaryOnly || t == PrimaryAndSecondary
}

// HasSecondary reports whether the secondary backend holds the bytes.
func (t Tier) HasSecondary() bool {
	return t == PrimaryAndSecondary || t == SecondaryOnly
}

// Parse validates a raw tier string.
func Parse(raw string) (Tier, error) {
	t := Tier(raw)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown storage tier %q", raw)
	}
	return t, nil
}
