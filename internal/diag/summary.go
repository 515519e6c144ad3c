package diag

import "github.com/Klingon-tech/zmigrate/pkg/types"

// Summary is the user-facing migration quality report.
type Summary struct {
	Counts               map[Kind]int `json:"counts"`
	Unassigned           []types.TxID `json:"unassigned"`
	UnresolvedNullifiers []string     `json:"unresolved_nullifiers"`
	Entries              []Entry      `json:"entries"`
}

// Summarize builds the report from the log.
func (l *Log) Summarize() Summary {
	entries := l.Entries()
	s := Summary{
		Counts:               make(map[Kind]int),
		Unassigned:           []types.TxID{},
		UnresolvedNullifiers: []string{},
		Entries:              entries,
	}
	for _, e := range entries {
		s.Counts[e.Kind]++
		switch e.Kind {
		case UnresolvedTransaction:
			if e.TxID != nil {
				s.Unassigned = append(s.Unassigned, *e.TxID)
			}
		case UnresolvedNullifier:
			if e.Nullifier != nil {
				s.UnresolvedNullifiers = append(s.UnresolvedNullifiers, e.Pool.String()+":"+e.Nullifier.String())
			}
		}
	}
	return s
}

// Total returns the number of entries.
func (s Summary) Total() int {
	return len(s.Entries)
}

// Clean reports whether the migration produced no findings.
func (s Summary) Clean() bool {
	return len(s.Entries) == 0
}
