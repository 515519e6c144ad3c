// Package validate cross-checks assignments. It re-reads each transaction
// directly, without the signal extractor, resolves everything it finds
// afresh and reports where the engine's verdict differs. It never
// corrects an assignment.
package validate

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/pkg/crypto"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Lookups are the read-only indices the validator resolves against.
type Lookups interface {
	Network() types.Network
	Resolve(id address.ID) fn.Option[account.Key]
	AddressForIVK(pool address.Pool, ivk []byte) fn.Option[address.ID]
}

// NullifierLookup resolves spent notes.
type NullifierLookup interface {
	SpentNoteOwner(pool address.Pool, nf types.Hash) fn.Option[account.Key]
}

// PrevoutLookup returns the address that received a transparent output.
type PrevoutLookup interface {
	Lookup(op types.Outpoint) fn.Option[address.ID]
}

// Discrepancy is one difference between the assigned and the expected
// owners of a transaction.
type Discrepancy struct {
	Kind    diag.Kind   `json:"kind"`
	TxID    types.TxID  `json:"txid"`
	Account account.Key `json:"account"`
	Detail  string      `json:"detail"`
}

// Entry converts d to a diagnostics entry.
func (d Discrepancy) Entry() diag.Entry {
	txid, key := d.TxID, d.Account
	return diag.Entry{Kind: d.Kind, TxID: &txid, Account: &key, Detail: d.Detail}
}

// Validator re-derives transaction owners.
type Validator struct {
	reg      Lookups
	nfs      NullifierLookup
	prevouts PrevoutLookup
}

// New returns a validator. prevouts may be nil.
func New(reg Lookups, nfs NullifierLookup, prevouts PrevoutLookup) *Validator {
	return &Validator{reg: reg, nfs: nfs, prevouts: prevouts}
}

// Expected returns every account tx carries evidence for, with the first
// piece of evidence seen per account.
func (v *Validator) Expected(tx dump.Transaction) map[account.Key]string {
	net := v.reg.Network()
	found := make(map[account.Key]string)
	hit := func(id address.ID, why string) {
		v.reg.Resolve(id).WhenSome(func(k account.Key) {
			if _, ok := found[k]; !ok {
				found[k] = why + " " + id.Addr()
			}
		})
	}
	hitString := func(s, why string) {
		id, err := address.FromString(s, net)
		if err != nil {
			return
		}
		hit(id, why)
		rids, _ := address.ReceiverIDs(id, net)
		for _, rid := range rids {
			hit(rid, why)
		}
	}

	for _, r := range tx.Recipients {
		if r.Address != "" {
			hitString(r.Address, "recipient")
		}
		if r.UnifiedAddress != "" {
			hitString(r.UnifiedAddress, "recipient")
		}
	}

	for i, out := range tx.TransparentOutputs {
		if id, ok := outputAddress(out.Script, net); ok {
			hit(id, fmt.Sprintf("output %d to", i))
		}
	}

	for i, in := range tx.TransparentInputs {
		if id, ok := signerAddress(in.ScriptSig, net); ok {
			hit(id, fmt.Sprintf("input %d signed by", i))
		}
	}

	for _, out := range tx.ShieldedOutputs {
		why := fmt.Sprintf("%s output %d to", out.Pool, out.Index)
		switch {
		case out.Recipient != "":
			hitString(out.Recipient, why)
		case len(out.IVK) > 0:
			v.reg.AddressForIVK(out.Pool, out.IVK).WhenSome(func(id address.ID) {
				hit(id, why)
			})
		}
	}

	for _, sp := range tx.ShieldedSpends {
		v.nfs.SpentNoteOwner(sp.Pool, sp.Nullifier).WhenSome(func(k account.Key) {
			if _, ok := found[k]; !ok {
				found[k] = fmt.Sprintf("spent %s note %s", sp.Pool, sp.Nullifier.Short())
			}
		})
	}

	if tx.CreatedLocally && v.prevouts != nil {
		for _, in := range tx.TransparentInputs {
			v.prevouts.Lookup(in.Prevout).WhenSome(func(id address.ID) {
				hit(id, "spent output "+in.Prevout.String()+" of")
			})
		}
	}
	return found
}

// Validate compares assigned against the owners derived from tx. The
// result is ordered by kind, then account.
func (v *Validator) Validate(tx dump.Transaction, assigned []account.Key) []Discrepancy {
	expected := v.Expected(tx)
	have := fn.NewSet(assigned...)

	var out []Discrepancy
	for k, why := range expected {
		if have.Contains(k) {
			continue
		}
		out = append(out, Discrepancy{
			Kind:    diag.MissingAccount,
			TxID:    tx.TxID,
			Account: k,
			Detail:  "evidence not reflected in assignment: " + why,
		})
	}
	for k := range have {
		if _, ok := expected[k]; ok {
			continue
		}
		out = append(out, Discrepancy{
			Kind:    diag.UnexpectedAccount,
			TxID:    tx.TxID,
			Account: k,
			Detail:  "no evidence found for assigned account",
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Account.Compare(out[j].Account) < 0
	})

	if len(out) > 0 {
		klog.Validator.Debug().
			Str("txid", tx.TxID.String()).
			Int("discrepancies", len(out)).
			Msg("Assignment differs from independent derivation")
	}
	return out
}

// outputAddress decodes a standard output script with the generic script
// parser and re-encodes the hash for net. The Bitcoin parameters only
// select the address type; the prefix comes from net.
func outputAddress(script []byte, net types.Network) (address.ID, bool) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, &chaincfg.MainNetParams)
	if err != nil || len(addrs) != 1 {
		return address.ID{}, false
	}
	var s string
	switch a := addrs[0].(type) {
	case *btcutil.AddressPubKeyHash:
		h := a.Hash160()
		s, err = address.EncodeP2PKH(h[:], net)
	case *btcutil.AddressScriptHash:
		h := a.Hash160()
		s, err = address.EncodeP2SH(h[:], net)
	default:
		return address.ID{}, false
	}
	if err != nil {
		return address.ID{}, false
	}
	return address.NewTransparent(s), true
}

// signerAddress finds the P2PKH address of the first pushed public key in
// a scriptSig that parses as a point.
func signerAddress(scriptSig []byte, net types.Network) (address.ID, bool) {
	pushes, err := txscript.PushedData(scriptSig)
	if err != nil {
		return address.ID{}, false
	}
	for i := len(pushes) - 1; i >= 0; i-- {
		p := pushes[i]
		if len(p) != 33 && len(p) != 65 {
			continue
		}
		if _, err := crypto.ParsePubKey(p); err != nil {
			continue
		}
		s, err := address.EncodeP2PKH(crypto.Hash160(p), net)
		if err != nil {
			return address.ID{}, false
		}
		return address.NewTransparent(s), true
	}
	return address.ID{}, false
}
