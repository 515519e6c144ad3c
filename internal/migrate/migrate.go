// Package migrate runs a complete migration over a wallet export: it
// builds the address registry and nullifier index once, then assigns
// every transaction in parallel.
package migrate

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/assign"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/dump"
	"github.com/Klingon-tech/zmigrate/internal/keys"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/internal/nullifier"
	"github.com/Klingon-tech/zmigrate/internal/registry"
	"github.com/Klingon-tech/zmigrate/internal/signal"
	"github.com/Klingon-tech/zmigrate/internal/validate"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Options configures Run.
type Options struct {
	// Workers bounds concurrent assignment. Zero uses GOMAXPROCS.
	Workers int
	// Grouping splits standalone keys into legacy accounts.
	Grouping account.Grouping
	// Validate cross-checks every assignment.
	Validate bool
}

// AccountRecord is one migrated account.
type AccountRecord struct {
	Account   account.Account
	Addresses []address.ID
	Keys      []keys.Material
}

// TxRecord is one migrated transaction. Raw is the serialized
// transaction, preserved unchanged.
type TxRecord struct {
	assign.Assignment
	BlockHash     string                 `json:"block_hash,omitempty"`
	BlockIndex    int32                  `json:"block_index,omitempty"`
	TimeReceived  int64                  `json:"time_received,omitempty"`
	Raw           dump.HexBytes          `json:"raw,omitempty"`
	Outputs       []ShieldedOutputRecord `json:"shielded_outputs,omitempty"`
	Discrepancies []validate.Discrepancy `json:"discrepancies,omitempty"`
}

// Result is the outcome of a migration.
type Result struct {
	Network      types.Network
	Seed         keys.SeedMaterial
	Accounts     []AccountRecord
	Transactions []TxRecord
	Summary      diag.Summary
	// Complete is false when the run was cancelled before every
	// transaction was assigned.
	Complete bool
}

// AccountsFor returns the accounts a transaction was assigned to.
func (r *Result) AccountsFor(txid types.TxID) []account.Key {
	i := sort.Search(len(r.Transactions), func(i int) bool {
		return r.Transactions[i].TxID.Compare(txid) >= 0
	})
	if i < len(r.Transactions) && r.Transactions[i].TxID == txid {
		return r.Transactions[i].Accounts
	}
	return nil
}

// TransactionsFor returns the transactions assigned to key, ordered.
func (r *Result) TransactionsFor(key account.Key) []types.TxID {
	var out []types.TxID
	for _, tx := range r.Transactions {
		if tx.Has(key) {
			out = append(out, tx.TxID)
		}
	}
	return out
}

// Unassigned returns the transactions without an owner.
func (r *Result) Unassigned() []types.TxID {
	var out []types.TxID
	for _, tx := range r.Transactions {
		if tx.Unassigned {
			out = append(out, tx.TxID)
		}
	}
	return out
}

// Run migrates w. Conflicting address registrations and nullifier
// collisions abort the run. When ctx is cancelled no further transactions
// are started; the transactions already assigned are returned in a
// partial Result together with ctx.Err().
func Run(ctx context.Context, w *dump.Wallet, opts Options) (*Result, error) {
	defer klog.Benchmark("migration")()

	if err := w.Check(); err != nil {
		return nil, fmt.Errorf("wallet export: %w", err)
	}
	seed, err := keys.NewSeedMaterial(w.Mnemonic, w.MnemonicLanguage, w.LegacySeed)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	log := diag.NewLog()
	bopts := registry.BuildOptions{Grouping: opts.Grouping}
	if seed.Mnemonic != "" {
		fp, err := seed.Fingerprint()
		if err != nil {
			return nil, fmt.Errorf("seed fingerprint: %w", err)
		}
		bopts.SeedFingerprint = &fp
	}

	reg, err := registry.Build(w, bopts, log)
	if err != nil {
		return nil, err
	}
	nfs, err := nullifier.Build(w.Notes, reg, log)
	if err != nil {
		return nil, fmt.Errorf("nullifier index: %w", err)
	}
	prevouts := signal.NewOutputIndex(w.Transactions, w.Network)

	p := &pipeline{
		extractor: signal.NewExtractor(w.Network, reg),
		engine:    assign.New(reg, nfs, prevouts),
		positions: buildPositions(w.NotePositions, w.Transactions),
		log:       log,
	}
	if opts.Validate {
		p.validator = validate.New(reg, nfs, prevouts)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	klog.Migrate.Info().
		Int("accounts", reg.AccountCount()).
		Int("addresses", reg.AddressCount()).
		Int("transactions", len(w.Transactions)).
		Int("workers", workers).
		Msg("Assigning transactions")

	// One slot per transaction; workers never share a slot.
	slots := make([]*TxRecord, len(w.Transactions))
	var g errgroup.Group
	g.SetLimit(workers)
	var stopped error
	for i := range w.Transactions {
		if err := ctx.Err(); err != nil {
			stopped = err
			break
		}
		i := i
		g.Go(func() error {
			slots[i] = p.process(w.Transactions[i])
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		Network:  w.Network,
		Seed:     seed,
		Complete: stopped == nil,
	}
	for _, acct := range reg.Accounts() {
		res.Accounts = append(res.Accounts, AccountRecord{
			Account:   acct,
			Addresses: reg.AddressesFor(acct.Key),
			Keys:      reg.Keys(acct.Key),
		})
	}
	for _, rec := range slots {
		if rec != nil {
			res.Transactions = append(res.Transactions, *rec)
		}
	}
	sort.Slice(res.Transactions, func(i, j int) bool {
		return res.Transactions[i].TxID.Compare(res.Transactions[j].TxID) < 0
	})
	res.Summary = log.Summarize()

	ev := klog.Migrate.Info()
	if stopped != nil {
		ev = klog.Migrate.Warn().Err(stopped)
	}
	ev.Int("assigned", len(res.Transactions)).
		Int("unassigned", len(res.Summary.Unassigned)).
		Int("diagnostics", res.Summary.Total()).
		Msg("Migration finished")
	return res, stopped
}

type pipeline struct {
	extractor *signal.Extractor
	engine    *assign.Engine
	validator *validate.Validator
	positions *positionIndex
	log       *diag.Log
}

func (p *pipeline) process(tx dump.Transaction) *TxRecord {
	a := p.engine.Assign(tx, p.extractor.Extract(tx))
	a.Diagnostic().WhenSome(p.log.Add)
	rec := &TxRecord{
		Assignment:   a,
		BlockHash:    tx.BlockHash,
		BlockIndex:   tx.BlockIndex,
		TimeReceived: tx.TimeReceived,
		Raw:          tx.Raw,
		Outputs:      p.positions.outputs(tx),
	}
	if p.validator != nil {
		rec.Discrepancies = p.validator.Validate(tx, a.Accounts)
		for _, d := range rec.Discrepancies {
			p.log.Add(d.Entry())
		}
	}
	return rec
}
