// Package signal extracts the ownership evidence a transaction carries:
// the addresses it touches, the nullifiers it reveals and the transparent
// outputs it spends. Extraction does no account resolution.
package signal

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/internal/nullifier"
	"github.com/Klingon-tech/zmigrate/pkg/crypto"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Direction says whether an address was paid or paid from.
type Direction uint8

const (
	Input Direction = iota + 1
	Output
)

// String returns "input" or "output".
func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Source names the part of a transaction an address was read from.
type Source uint8

const (
	// SourceRecipient is a send-side recipient record.
	SourceRecipient Source = iota + 1
	// SourceScript is a transparent output script.
	SourceScript
	// SourceScriptSig is the pubkey pushed by a transparent input.
	SourceScriptSig
	// SourceDecrypted is a shielded output the wallet decrypted.
	SourceDecrypted
	// SourcePrevout is the address that received a spent transparent
	// output.
	SourcePrevout
	// SourceNullifier is a spent shielded note.
	SourceNullifier
)

var sourceNames = map[Source]string{
	SourceRecipient: "recipient",
	SourceScript:    "script",
	SourceScriptSig: "script_sig",
	SourceDecrypted: "decrypted",
	SourcePrevout:   "prevout",
	SourceNullifier: "nullifier",
}

// String returns the source name.
func (s Source) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the source by name.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a source name.
func (s *Source) UnmarshalText(text []byte) error {
	for src, name := range sourceNames {
		if name == string(text) {
			*s = src
			return nil
		}
	}
	return fmt.Errorf("unknown signal source %q", text)
}

// Touch is one address a transaction refers to.
type Touch struct {
	ID        address.ID
	Direction Direction
	Source    Source
	// Pool is the pool of the input or output the address came from.
	// Recipient records carry no pool.
	Pool address.Pool
	// Output is the output index within Pool for outputs.
	Output fn.Option[uint32]
}

func (t Touch) compare(o Touch) int {
	if c := t.ID.Compare(o.ID); c != 0 {
		return c
	}
	if t.Direction != o.Direction {
		return int(t.Direction) - int(o.Direction)
	}
	if t.Source != o.Source {
		return int(t.Source) - int(o.Source)
	}
	if t.Pool != o.Pool {
		return int(t.Pool) - int(o.Pool)
	}
	a, b := t.Output.UnwrapOr(0), o.Output.UnwrapOr(0)
	switch {
	case t.Output.IsNone() && o.Output.IsSome():
		return -1
	case t.Output.IsSome() && o.Output.IsNone():
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SignalSet is the evidence extracted from one transaction. Every slice
// is ordered and free of duplicates.
type SignalSet struct {
	TxID           types.TxID
	CreatedLocally bool
	Addresses      []Touch
	Nullifiers     []nullifier.Nullifier
	Prevouts       []types.Outpoint
}

// Recipients returns the addresses named by recipient records.
func (s SignalSet) Recipients() fn.Set[address.ID] {
	set := fn.NewSet[address.ID]()
	for _, t := range s.Addresses {
		if t.Source == SourceRecipient {
			set.Add(t.ID)
		}
	}
	return set
}

// IVKLookup maps a shielded viewing key to the address it receives at.
type IVKLookup interface {
	AddressForIVK(pool address.Pool, ivk []byte) fn.Option[address.ID]
}

// Extractor reads signals from transactions. It holds no mutable state
// and may be used from many goroutines.
type Extractor struct {
	net  types.Network
	ivks IVKLookup
}

// NewExtractor returns an extractor for net. ivks may be nil, in which
// case decrypted outputs without an explicit recipient are skipped.
func NewExtractor(net types.Network, ivks IVKLookup) *Extractor {
	return &Extractor{net: net, ivks: ivks}
}

type collector struct {
	net     types.Network
	txid    types.TxID
	touches map[Touch]struct{}
}

func (c *collector) add(t Touch) {
	c.touches[t] = struct{}{}
}

// addString parses addr and adds it, together with the receivers of a
// unified address.
func (c *collector) addString(addr string, t Touch) {
	id, err := address.FromString(addr, c.net)
	if err != nil {
		klog.Assign.Debug().Err(err).Str("txid", c.txid.String()).Str("address", addr).
			Msg("Skipping unparseable address")
		return
	}
	c.addID(id, t)
}

func (c *collector) addID(id address.ID, t Touch) {
	t.ID = id
	c.add(t)
	rids, err := address.ReceiverIDs(id, c.net)
	if err != nil {
		return
	}
	for _, rid := range rids {
		rt := t
		rt.ID = rid
		c.add(rt)
	}
}

// Extract returns the signals of tx.
func (e *Extractor) Extract(tx dump.Transaction) SignalSet {
	c := &collector{net: e.net, txid: tx.TxID, touches: make(map[Touch]struct{})}

	for _, r := range tx.Recipients {
		t := Touch{Direction: Output, Source: SourceRecipient}
		if r.Address != "" {
			c.addString(r.Address, t)
		}
		if r.UnifiedAddress != "" {
			c.addString(r.UnifiedAddress, t)
		}
	}

	for i, out := range tx.TransparentOutputs {
		id, ok := scriptAddress(out.Script, e.net)
		if !ok {
			continue
		}
		c.add(Touch{
			ID:        id,
			Direction: Output,
			Source:    SourceScript,
			Pool:      address.PoolTransparent,
			Output:    fn.Some(uint32(i)),
		})
	}

	prevouts := make(map[types.Outpoint]struct{}, len(tx.TransparentInputs))
	for _, in := range tx.TransparentInputs {
		prevouts[in.Prevout] = struct{}{}
		pub, ok := crypto.PubKeyFromScriptSig(in.ScriptSig)
		if !ok {
			continue
		}
		s, err := address.EncodeP2PKH(crypto.Hash160(pub), e.net)
		if err != nil {
			continue
		}
		c.add(Touch{
			ID:        address.NewTransparent(s),
			Direction: Input,
			Source:    SourceScriptSig,
			Pool:      address.PoolTransparent,
		})
	}

	for _, out := range tx.ShieldedOutputs {
		t := Touch{
			Direction: Output,
			Source:    SourceDecrypted,
			Pool:      out.Pool,
			Output:    fn.Some(out.Index),
		}
		switch {
		case out.Recipient != "":
			c.addString(out.Recipient, t)
		case len(out.IVK) > 0 && e.ivks != nil:
			e.ivks.AddressForIVK(out.Pool, out.IVK).WhenSome(func(id address.ID) {
				c.addID(id, t)
			})
		}
	}

	nfs := make(map[nullifier.Nullifier]struct{}, len(tx.ShieldedSpends))
	for _, sp := range tx.ShieldedSpends {
		nfs[nullifier.Nullifier{Pool: sp.Pool, Value: sp.Nullifier}] = struct{}{}
	}

	s := SignalSet{TxID: tx.TxID, CreatedLocally: tx.CreatedLocally}
	for t := range c.touches {
		s.Addresses = append(s.Addresses, t)
	}
	sort.Slice(s.Addresses, func(i, j int) bool { return s.Addresses[i].compare(s.Addresses[j]) < 0 })
	for nf := range nfs {
		s.Nullifiers = append(s.Nullifiers, nf)
	}
	sort.Slice(s.Nullifiers, func(i, j int) bool { return s.Nullifiers[i].Compare(s.Nullifiers[j]) < 0 })
	for op := range prevouts {
		s.Prevouts = append(s.Prevouts, op)
	}
	sort.Slice(s.Prevouts, func(i, j int) bool { return s.Prevouts[i].Compare(s.Prevouts[j]) < 0 })
	return s
}

// scriptAddress returns the transparent address a standard output script
// pays.
func scriptAddress(script []byte, net types.Network) (address.ID, bool) {
	var (
		s   string
		err error
	)
	switch txscript.GetScriptClass(script) {
	case txscript.PubKeyHashTy:
		// OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG
		s, err = address.EncodeP2PKH(script[3:23], net)
	case txscript.ScriptHashTy:
		// OP_HASH160 <20> OP_EQUAL
		s, err = address.EncodeP2SH(script[2:22], net)
	default:
		return address.ID{}, false
	}
	if err != nil {
		return address.ID{}, false
	}
	return address.NewTransparent(s), true
}
