package signal

import (
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// OutputIndex records which address received each transparent output of
// the wallet's transactions, so that a spend can be traced back to the
// address it spent from. It is read-only once built.
type OutputIndex struct {
	outputs map[types.Outpoint]address.ID
}

// NewOutputIndex indexes the transparent outputs of txs.
func NewOutputIndex(txs []dump.Transaction, net types.Network) *OutputIndex {
	idx := &OutputIndex{outputs: make(map[types.Outpoint]address.ID)}
	for _, tx := range txs {
		for i, out := range tx.TransparentOutputs {
			id, ok := scriptAddress(out.Script, net)
			if !ok {
				continue
			}
			idx.outputs[types.Outpoint{TxID: tx.TxID, Index: uint32(i)}] = id
		}
	}
	return idx
}

// Lookup returns the address that received op.
func (x *OutputIndex) Lookup(op types.Outpoint) fn.Option[address.ID] {
	if x == nil {
		return fn.None[address.ID]()
	}
	if id, ok := x.outputs[op]; ok {
		return fn.Some(id)
	}
	return fn.None[address.ID]()
}

// Len returns the number of indexed outputs.
func (x *OutputIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.outputs)
}
