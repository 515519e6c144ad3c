// Package assign decides which accounts own a transaction.
//
// Evidence is gathered in tiers: registered addresses the transaction
// touches, spent nullifiers with a known owner, and, when nothing else
// matched a transaction the wallet created itself, the accounts whose
// transparent outputs it spends or whose change chain it pays. A
// transaction with no evidence stays unassigned; it is never attached to
// a default account.
package assign

import (
	"fmt"
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/internal/registry"
	"github.com/Klingon-tech/zmigrate/internal/signal"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Tier is the strength of a piece of evidence.
type Tier uint8

const (
	// TierAddress: a touched address is registered to the account.
	TierAddress Tier = iota + 1
	// TierNullifier: a spent note belonged to the account.
	TierNullifier
	// TierSource: the account funded the transaction, seen through an
	// output it spends or a change output paid back to it.
	TierSource
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierAddress:
		return "address"
	case TierNullifier:
		return "nullifier"
	case TierSource:
		return "source"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	for _, tier := range []Tier{TierAddress, TierNullifier, TierSource} {
		if tier.String() == string(text) {
			*t = tier
			return nil
		}
	}
	return fmt.Errorf("unknown evidence tier %q", text)
}

// AddressLookup is the registry view the engine needs.
type AddressLookup interface {
	Resolve(id address.ID) fn.Option[account.Key]
	Info(id address.ID) fn.Option[registry.Info]
}

// NullifierLookup resolves spent notes to their owner.
type NullifierLookup interface {
	SpentNoteOwner(pool address.Pool, nf types.Hash) fn.Option[account.Key]
}

// PrevoutLookup returns the address that received a transparent output.
type PrevoutLookup interface {
	Lookup(op types.Outpoint) fn.Option[address.ID]
}

// Evidence records why an account was assigned.
type Evidence struct {
	Account account.Key   `json:"account"`
	Tier    Tier          `json:"tier"`
	Source  signal.Source `json:"source"`
	// Ref is the address, nullifier or outpoint the evidence came from.
	Ref string `json:"ref"`
}

// ChangeOutput is an output returning funds to an assigned account.
type ChangeOutput struct {
	Pool    address.Pool `json:"pool"`
	Index   uint32       `json:"index"`
	Address string       `json:"address"`
	Account account.Key  `json:"account"`
}

// Assignment is the engine's verdict for one transaction.
type Assignment struct {
	TxID       types.TxID     `json:"txid"`
	Accounts   []account.Key  `json:"accounts"`
	Evidence   []Evidence     `json:"evidence"`
	Change     []ChangeOutput `json:"change,omitempty"`
	Unassigned bool           `json:"unassigned"`
}

// Set returns the assigned accounts as a set.
func (a Assignment) Set() fn.Set[account.Key] {
	return fn.NewSet(a.Accounts...)
}

// Has reports whether key is assigned.
func (a Assignment) Has(key account.Key) bool {
	for _, k := range a.Accounts {
		if k == key {
			return true
		}
	}
	return false
}

// Diagnostic returns the entry an unassigned transaction is reported
// under.
func (a Assignment) Diagnostic() fn.Option[diag.Entry] {
	if !a.Unassigned {
		return fn.None[diag.Entry]()
	}
	txid := a.TxID
	return fn.Some(diag.Entry{
		Kind:   diag.UnresolvedTransaction,
		TxID:   &txid,
		Detail: "no registered address, known nullifier, funding account or change output",
	})
}

// Engine assigns transactions. Its lookups must not change while it is in
// use; Assign may then be called from many goroutines.
type Engine struct {
	reg      AddressLookup
	nfs      NullifierLookup
	prevouts PrevoutLookup
}

// New returns an engine. prevouts may be nil, which disables the
// spent-output part of the source tier.
func New(reg AddressLookup, nfs NullifierLookup, prevouts PrevoutLookup) *Engine {
	return &Engine{reg: reg, nfs: nfs, prevouts: prevouts}
}

type candidate struct {
	touch signal.Touch
	key   account.Key
}

func (c candidate) change() ChangeOutput {
	return ChangeOutput{
		Pool:    c.touch.Pool,
		Index:   c.touch.Output.UnwrapOr(0),
		Address: c.touch.ID.Addr(),
		Account: c.key,
	}
}

// Assign returns the owning accounts of tx given its extracted signals.
// The result depends only on its inputs and the engine's lookups; an
// unassigned result carries its diagnostic rather than logging it.
func (e *Engine) Assign(tx dump.Transaction, sig signal.SignalSet) Assignment {
	set := fn.NewSet[account.Key]()
	// spenders are the accounts funding tx.
	spenders := fn.NewSet[account.Key]()
	evidence := make(map[Evidence]struct{})
	add := func(ev Evidence) {
		set.Add(ev.Account)
		evidence[ev] = struct{}{}
	}

	recipients := sig.Recipients()
	var internal, unlabeled []candidate

	for _, t := range sig.Addresses {
		key := e.reg.Resolve(t.ID)
		if key.IsNone() {
			continue
		}
		c := candidate{touch: t, key: key.UnsafeFromSome()}
		switch e.classify(tx, t, recipients) {
		case changeInternal:
			internal = append(internal, c)
			continue
		case changeLikely:
			unlabeled = append(unlabeled, c)
		}
		if t.Direction == signal.Input {
			spenders.Add(c.key)
		}
		add(Evidence{Account: c.key, Tier: TierAddress, Source: t.Source, Ref: t.ID.String()})
	}

	for _, nf := range sig.Nullifiers {
		e.nfs.SpentNoteOwner(nf.Pool, nf.Value).WhenSome(func(k account.Key) {
			spenders.Add(k)
			add(Evidence{Account: k, Tier: TierNullifier, Source: signal.SourceNullifier, Ref: nf.String()})
		})
	}

	if len(set) == 0 && tx.CreatedLocally && e.prevouts != nil {
		for _, op := range sig.Prevouts {
			id := e.prevouts.Lookup(op)
			if id.IsNone() {
				continue
			}
			e.reg.Resolve(id.UnsafeFromSome()).WhenSome(func(k account.Key) {
				spenders.Add(k)
				add(Evidence{Account: k, Tier: TierSource, Source: signal.SourcePrevout, Ref: op.String()})
			})
		}
	}

	// Change paid back to the wallet names the funding account when
	// nothing else does.
	if len(set) == 0 {
		for _, c := range internal {
			spenders.Add(c.key)
			add(Evidence{Account: c.key, Tier: TierSource, Source: c.touch.Source, Ref: c.touch.ID.String()})
		}
	}

	a := Assignment{TxID: tx.TxID, Accounts: set.ToSlice(), Evidence: []Evidence{}}
	sort.Slice(a.Accounts, func(i, j int) bool { return a.Accounts[i].Compare(a.Accounts[j]) < 0 })
	for ev := range evidence {
		a.Evidence = append(a.Evidence, ev)
	}
	sortEvidence(a.Evidence)

	for _, c := range internal {
		if !set.Contains(c.key) {
			klog.Assign.Debug().
				Str("txid", tx.TxID.String()).
				Str("address", c.touch.ID.String()).
				Str("account", c.key.String()).
				Msg("Change-chain output outside the assigned accounts")
			continue
		}
		a.Change = append(a.Change, c.change())
	}
	for _, c := range unlabeled {
		if spenders.Contains(c.key) {
			a.Change = append(a.Change, c.change())
		}
	}
	a.Change = sortChange(a.Change)

	a.Unassigned = len(a.Accounts) == 0
	return a
}

type changeKind uint8

const (
	changeNone changeKind = iota
	// changeInternal is an output to an HD change-chain address. It never
	// introduces an account next to other evidence.
	changeInternal
	// changeLikely is an unlabeled output that no recipient record names.
	// It counts as address evidence and is change only when its account
	// also funds the transaction.
	changeLikely
)

// classify reports whether t could be change: an output of a transaction
// the wallet created, paying a registered address.
func (e *Engine) classify(tx dump.Transaction, t signal.Touch, recipients fn.Set[address.ID]) changeKind {
	if !tx.CreatedLocally || t.Direction != signal.Output || t.Output.IsNone() {
		return changeNone
	}
	info := e.reg.Info(t.ID)
	if info.IsNone() {
		return changeNone
	}
	i := info.UnsafeFromSome()
	switch {
	case i.Internal:
		return changeInternal
	case !i.Labeled && !recipients.Contains(t.ID):
		return changeLikely
	default:
		return changeNone
	}
}

func sortEvidence(es []Evidence) {
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if c := a.Account.Compare(b.Account); c != 0 {
			return c < 0
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Ref < b.Ref
	})
}

// sortChange orders change outputs and drops duplicates.
func sortChange(cs []ChangeOutput) []ChangeOutput {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Pool != b.Pool {
			return a.Pool < b.Pool
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Address < b.Address
	})
	out := cs[:0]
	for i, c := range cs {
		if i > 0 && c == cs[i-1] {
			continue
		}
		out = append(out, c)
	}
	return out
}
