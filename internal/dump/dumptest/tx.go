package dumptest

import (
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	"github.com/Klingon-tech/zmigrate/pkg/crypto"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// TxBuilder assembles one transaction.
type TxBuilder struct {
	b  *Builder
	tx dump.Transaction
}

// Tx starts a transaction with a fresh id. Its raw bytes are a digest of
// the id.
func (b *Builder) Tx() *TxBuilder {
	id := b.TxID()
	raw := crypto.TaggedHash("dumptest-raw", id[:])
	return &TxBuilder{b: b, tx: dump.Transaction{TxID: id, Raw: raw[:]}}
}

// ReceivedAt sets the time the wallet first saw the transaction.
func (t *TxBuilder) ReceivedAt(unix int64) *TxBuilder {
	t.tx.TimeReceived = unix
	return t
}

// Local marks the transaction as created by the wallet.
func (t *TxBuilder) Local() *TxBuilder {
	t.tx.CreatedLocally = true
	return t
}

// PayP2PKH adds a transparent output to k.
func (t *TxBuilder) PayP2PKH(k TKey, value int64) *TxBuilder {
	t.tx.TransparentOutputs = append(t.tx.TransparentOutputs, dump.TxOut{Value: value, Script: P2PKHScript(k.Hash)})
	return t
}

// PayScript adds a transparent output with an arbitrary script.
func (t *TxBuilder) PayScript(script []byte, value int64) *TxBuilder {
	t.tx.TransparentOutputs = append(t.tx.TransparentOutputs, dump.TxOut{Value: value, Script: script})
	return t
}

// SpendP2PKH adds a transparent input signed by k.
func (t *TxBuilder) SpendP2PKH(prev types.Outpoint, k TKey) *TxBuilder {
	t.tx.TransparentInputs = append(t.tx.TransparentInputs, dump.TxIn{Prevout: prev, ScriptSig: ScriptSig(k.PubKey)})
	return t
}

// SpendPrevout adds a transparent input with no recognisable signer.
func (t *TxBuilder) SpendPrevout(prev types.Outpoint) *TxBuilder {
	t.tx.TransparentInputs = append(t.tx.TransparentInputs, dump.TxIn{Prevout: prev})
	return t
}

// SpendShielded adds a shielded spend.
func (t *TxBuilder) SpendShielded(pool address.Pool, nf types.Hash) *TxBuilder {
	t.tx.ShieldedSpends = append(t.tx.ShieldedSpends, dump.ShieldedSpend{Pool: pool, Nullifier: nf})
	return t
}

// ShieldedOutput adds a shielded output. recipient and ivk are the
// decryption result and may be empty.
func (t *TxBuilder) ShieldedOutput(pool address.Pool, recipient string, ivk []byte) *TxBuilder {
	t.tx.ShieldedOutputs = append(t.tx.ShieldedOutputs, dump.ShieldedOutput{
		Pool:       pool,
		Index:      uint32(len(t.tx.ShieldedOutputs)),
		Commitment: t.b.Hash(),
		Recipient:  recipient,
		IVK:        ivk,
	})
	return t
}

// Recipient adds a send-side recipient record.
func (t *TxBuilder) Recipient(addr, unified string) *TxBuilder {
	t.tx.Recipients = append(t.tx.Recipients, dump.Recipient{Address: addr, UnifiedAddress: unified})
	return t
}

// Build returns the transaction without adding it to the wallet.
func (t *TxBuilder) Build() dump.Transaction {
	return t.tx
}

// Add appends the transaction to the wallet and returns it.
func (t *TxBuilder) Add() dump.Transaction {
	t.b.w.Transactions = append(t.b.w.Transactions, t.tx)
	return t.tx
}

// Out returns the outpoint of output index i of the transaction.
func (t *TxBuilder) Out(i uint32) types.Outpoint {
	return types.Outpoint{TxID: t.tx.TxID, Index: i}
}
