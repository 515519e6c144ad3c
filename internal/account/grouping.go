package account

import "fmt"

// Grouping selects how standalone legacy keys are split into accounts.
type Grouping string

const (
	// GroupByKey makes one legacy account per distinct owning key.
	GroupByKey Grouping = "key"
	// GroupByLabel uses the wallet's explicit grouping label where present
	// and falls back to per-key accounts otherwise.
	GroupByLabel Grouping = "group"
	// GroupSingle puts every standalone key into one legacy account.
	GroupSingle Grouping = "single"
)

// ParseGrouping validates a grouping name. The empty string selects
// GroupByKey.
func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(s) {
	case "", GroupByKey:
		return GroupByKey, nil
	case GroupByLabel, GroupSingle:
		return Grouping(s), nil
	default:
		return "", fmt.Errorf("unknown legacy grouping %q (want key, group or single)", s)
	}
}

// LegacyKey picks the account for a standalone key under g. kind and
// material identify the key; group is the wallet's label, possibly empty.
func (g Grouping) LegacyKey(kind string, material []byte, group string) Key {
	switch g {
	case GroupSingle:
		return SingleLegacyKey()
	case GroupByLabel:
		if group != "" {
			return LegacyGroupKey(group)
		}
	}
	return LegacyKeyFor(kind, material)
}
