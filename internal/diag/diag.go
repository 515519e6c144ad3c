// Package diag collects non-fatal migration findings. The log is
// append-only and safe for concurrent use; entry order carries no meaning.
package diag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Kind classifies an entry.
type Kind uint8

const (
	// UnresolvedTransaction: no account could be established for a
	// transaction. It is carried forward unassigned.
	UnresolvedTransaction Kind = iota + 1
	// MissingMetadata: a record could not be traced to an owner (a note
	// without nullifier, an address without key, a dangling reference).
	MissingMetadata
	// UnresolvedNullifier: a known nullifier whose note has no owner.
	UnresolvedNullifier
	// MissingAccount: independent checking found an owner the assignment
	// lacks.
	MissingAccount
	// UnexpectedAccount: the assignment holds an owner independent
	// checking cannot support.
	UnexpectedAccount
)

var kindNames = map[Kind]string{
	UnresolvedTransaction: "unresolved_transaction",
	MissingMetadata:       "missing_metadata",
	UnresolvedNullifier:   "unresolved_nullifier",
	MissingAccount:        "missing_account",
	UnexpectedAccount:     "unexpected_account",
}

// String returns the kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown diagnostic kind %q", text)
}

// Kinds lists all kinds in display order.
func Kinds() []Kind {
	return []Kind{UnresolvedTransaction, MissingMetadata, UnresolvedNullifier, MissingAccount, UnexpectedAccount}
}

// Entry is one finding. Only the fields relevant to its kind are set.
type Entry struct {
	Kind      Kind         `json:"kind"`
	TxID      *types.TxID  `json:"txid,omitempty"`
	Pool      address.Pool `json:"pool,omitempty"`
	Nullifier *types.Hash  `json:"nullifier,omitempty"`
	Address   string       `json:"address,omitempty"`
	Account   *account.Key `json:"account,omitempty"`
	Detail    string       `json:"detail"`
}

// Log is the concurrent diagnostics sink. The zero value is ready to use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Add appends e. A nil log discards entries.
func (l *Log) Add(e Entry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Addf appends an entry of kind with a formatted detail.
func (l *Log) Addf(kind Kind, format string, args ...any) {
	l.Add(Entry{Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a sorted copy of all entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	l.mu.Unlock()
	sortEntries(out)
	return out
}

// Count returns the number of entries of kind.
func (l *Log) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func sortEntries(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if c := compareTxID(a.TxID, b.TxID); c != 0 {
			return c < 0
		}
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		if c := compareHash(a.Nullifier, b.Nullifier); c != 0 {
			return c < 0
		}
		if c := compareAccount(a.Account, b.Account); c != 0 {
			return c < 0
		}
		return a.Detail < b.Detail
	})
}

func compareTxID(a, b *types.TxID) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func compareHash(a, b *types.Hash) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func compareAccount(a, b *account.Key) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}
