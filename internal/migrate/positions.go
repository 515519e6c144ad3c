package migrate

import (
	"sort"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// ShieldedOutputRecord is one shielded output of a migrated transaction
// with its place in the pool's note commitment tree. Position is nil for
// Sprout outputs. Placeholder marks positions the wallet did not record.
type ShieldedOutputRecord struct {
	Pool        address.Pool `json:"pool"`
	Index       uint32       `json:"index"`
	Commitment  types.Hash   `json:"commitment"`
	Position    *uint64      `json:"position,omitempty"`
	Placeholder bool         `json:"placeholder,omitempty"`
}

type commitmentKey struct {
	pool address.Pool
	cm   types.Hash
}

// positionIndex maps commitments to tree positions.
type positionIndex struct {
	known       map[commitmentKey]uint64
	placeholder map[commitmentKey]uint64
}

func hasTree(pool address.Pool) bool {
	return pool == address.PoolSapling || pool == address.PoolOrchard
}

// buildPositions indexes the wallet's position table. Commitments the
// table misses get placeholder positions numbered after the highest
// recorded one, in txid then output order, so reruns agree.
func buildPositions(table []dump.NotePosition, txs []dump.Transaction) *positionIndex {
	idx := &positionIndex{
		known:       make(map[commitmentKey]uint64, len(table)),
		placeholder: make(map[commitmentKey]uint64),
	}
	next := uint64(1)
	for _, p := range table {
		idx.known[commitmentKey{p.Pool, p.Commitment}] = p.Position
		if p.Position >= next {
			next = p.Position + 1
		}
	}

	order := make([]int, len(txs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return txs[order[a]].TxID.Compare(txs[order[b]].TxID) < 0
	})
	for _, i := range order {
		for _, out := range txs[i].ShieldedOutputs {
			if !hasTree(out.Pool) {
				continue
			}
			k := commitmentKey{out.Pool, out.Commitment}
			if _, ok := idx.known[k]; ok {
				continue
			}
			if _, ok := idx.placeholder[k]; ok {
				continue
			}
			idx.placeholder[k] = next
			next++
		}
	}

	if n := len(idx.placeholder); n > 0 {
		klog.Migrate.Warn().
			Int("recorded", len(idx.known)).
			Int("placeholders", n).
			Msg("Note commitments missing from the position table")
	}
	return idx
}

// outputs returns the shielded outputs of tx with their positions.
func (idx *positionIndex) outputs(tx dump.Transaction) []ShieldedOutputRecord {
	if len(tx.ShieldedOutputs) == 0 {
		return nil
	}
	out := make([]ShieldedOutputRecord, 0, len(tx.ShieldedOutputs))
	for _, o := range tx.ShieldedOutputs {
		rec := ShieldedOutputRecord{Pool: o.Pool, Index: o.Index, Commitment: o.Commitment}
		k := commitmentKey{o.Pool, o.Commitment}
		if pos, ok := idx.known[k]; ok {
			rec.Position = &pos
		} else if pos, ok := idx.placeholder[k]; ok {
			rec.Position = &pos
			rec.Placeholder = true
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pool != out[j].Pool {
			return out[i].Pool < out[j].Pool
		}
		return out[i].Index < out[j].Index
	})
	return out
}
