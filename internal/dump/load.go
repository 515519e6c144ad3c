package dump

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Load reads a wallet export from a JSON file.
func Load(path string) (*Wallet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wallet export: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a wallet export and checks it for structural errors.
func Decode(r io.Reader) (*Wallet, error) {
	var w Wallet
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode wallet export: %w", err)
	}
	if err := w.Check(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Check rejects exports the migration cannot interpret: duplicate
// transaction ids, shielded records outside a shielded pool and
// commitments placed at two tree positions.
func (w *Wallet) Check() error {
	seen := make(map[types.TxID]struct{}, len(w.Transactions))
	for i, tx := range w.Transactions {
		if _, dup := seen[tx.TxID]; dup {
			return fmt.Errorf("transaction %d: duplicate txid %s", i, tx.TxID)
		}
		seen[tx.TxID] = struct{}{}
		for _, sp := range tx.ShieldedSpends {
			if !sp.Pool.IsShielded() {
				return fmt.Errorf("transaction %s: spend in non-shielded pool %s", tx.TxID, sp.Pool)
			}
		}
		for _, out := range tx.ShieldedOutputs {
			if !out.Pool.IsShielded() {
				return fmt.Errorf("transaction %s: output in non-shielded pool %s", tx.TxID, out.Pool)
			}
		}
	}
	for i, n := range w.Notes {
		if !n.Pool.IsShielded() {
			return fmt.Errorf("note %d: non-shielded pool %s", i, n.Pool)
		}
	}
	for i, a := range w.ShieldedAddresses {
		if !a.Pool.IsShielded() {
			return fmt.Errorf("shielded address %d: non-shielded pool %s", i, a.Pool)
		}
	}
	placed := make(map[NotePosition]uint64, len(w.NotePositions))
	for i, p := range w.NotePositions {
		if p.Pool != address.PoolSapling && p.Pool != address.PoolOrchard {
			return fmt.Errorf("note position %d: %s has no note commitment tree", i, p.Pool)
		}
		k := NotePosition{Pool: p.Pool, Commitment: p.Commitment}
		if prev, ok := placed[k]; ok && prev != p.Position {
			return fmt.Errorf("note position %d: commitment %s at positions %d and %d",
				i, p.Commitment.Short(), prev, p.Position)
		}
		placed[k] = p.Position
	}
	return nil
}
