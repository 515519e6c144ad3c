// Package snapshot persists migration results in a key-value store.
//
// Layout:
//
//	m/meta            Meta JSON
//	s/seed            seed material JSON, sealed when a password is set
//	a/<account key>   account, addresses and key records
//	t/<txid>          transaction record JSON
//	r/summary         diagnostics summary JSON
//
// Saving replaces whatever snapshot the store held before.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/internal/diag"
	"github.com/Klingon-tech/zmigrate/internal/keys"
	klog "github.com/Klingon-tech/zmigrate/internal/log"
	"github.com/Klingon-tech/zmigrate/internal/migrate"
	"github.com/Klingon-tech/zmigrate/internal/storage"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// Version is the snapshot layout version.
const Version = 1

var (
	keyMeta       = []byte("m/meta")
	keySeed       = []byte("s/seed")
	keySummary    = []byte("r/summary")
	prefixAccount = []byte("a/")
	prefixTx      = []byte("t/")

	// payloadPrefixes are checksummed, in this order.
	payloadPrefixes = [][]byte{prefixAccount, []byte("r/"), []byte("s/"), prefixTx}
)

var (
	// ErrNoSnapshot is returned when the store holds no snapshot.
	ErrNoSnapshot = errors.New("no snapshot stored")
	// ErrPasswordRequired is returned when reading sealed data without a
	// password.
	ErrPasswordRequired = errors.New("snapshot is encrypted, password required")
	// ErrChecksum is returned by Verify when stored data was altered.
	ErrChecksum = errors.New("snapshot checksum mismatch")
)

// Meta describes a stored snapshot.
type Meta struct {
	Version      int           `json:"version"`
	Network      types.Network `json:"network"`
	Accounts     int           `json:"accounts"`
	Transactions int           `json:"transactions"`
	Unassigned   int           `json:"unassigned"`
	Complete     bool          `json:"complete"`
	Encrypted    bool          `json:"encrypted"`
	Checksum     types.Hash    `json:"checksum"`
}

type accountDoc struct {
	Account   account.Account `json:"account"`
	Addresses []address.ID    `json:"addresses"`
	Keys      []keys.Record   `json:"keys,omitempty"`
	Sealed    []byte          `json:"sealed_keys,omitempty"`
}

type seedDoc struct {
	Seed   *keys.SeedMaterial `json:"seed,omitempty"`
	Sealed []byte             `json:"sealed,omitempty"`
}

// Store reads and writes snapshots.
type Store struct {
	db     storage.DB
	params keys.SealParams
}

// New returns a store over db that seals with the default cost
// parameters.
func New(db storage.DB) *Store {
	return &Store{db: db, params: keys.DefaultSealParams()}
}

// WithSealParams sets the key-derivation cost used by Save.
func (s *Store) WithSealParams(p keys.SealParams) *Store {
	s.params = p
	return s
}

// Save writes res, replacing any previous snapshot. With a non-empty
// password the seed and all key material are sealed.
func (s *Store) Save(res *migrate.Result, password []byte) (Meta, error) {
	defer klog.Benchmark("snapshot save")()

	encrypted := len(password) > 0
	writes := make(map[string][]byte)
	put := func(key []byte, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		writes[string(key)] = data
		return nil
	}

	seed := seedDoc{}
	if encrypted {
		plain, err := json.Marshal(res.Seed)
		if err != nil {
			return Meta{}, fmt.Errorf("encode seed: %w", err)
		}
		sealed, err := keys.Seal(plain, password, s.params)
		clear(plain)
		if err != nil {
			return Meta{}, fmt.Errorf("seal seed: %w", err)
		}
		seed.Sealed = sealed
	} else {
		sm := res.Seed
		seed.Seed = &sm
	}
	if err := put(keySeed, seed); err != nil {
		return Meta{}, err
	}

	for _, rec := range res.Accounts {
		doc := accountDoc{Account: rec.Account, Addresses: rec.Addresses}
		records := make([]keys.Record, 0, len(rec.Keys))
		for _, m := range rec.Keys {
			records = append(records, keys.ToRecord(m))
		}
		if encrypted && len(records) > 0 {
			plain, err := json.Marshal(records)
			if err != nil {
				return Meta{}, fmt.Errorf("encode keys: %w", err)
			}
			doc.Sealed, err = keys.Seal(plain, password, s.params)
			clear(plain)
			if err != nil {
				return Meta{}, fmt.Errorf("seal keys of %s: %w", rec.Account.Key, err)
			}
		} else if len(records) > 0 {
			doc.Keys = records
		}
		if err := put(accountKey(rec.Account.Key), doc); err != nil {
			return Meta{}, err
		}
	}

	for _, tx := range res.Transactions {
		if err := put(txKey(tx.TxID), tx); err != nil {
			return Meta{}, err
		}
	}
	if err := put(keySummary, res.Summary); err != nil {
		return Meta{}, err
	}

	meta := Meta{
		Version:      Version,
		Network:      res.Network,
		Accounts:     len(res.Accounts),
		Transactions: len(res.Transactions),
		Unassigned:   len(res.Unassigned()),
		Complete:     res.Complete,
		Encrypted:    encrypted,
		Checksum:     checksumOf(writes),
	}
	if err := put(keyMeta, meta); err != nil {
		return Meta{}, err
	}

	batch := storage.NewBatch(s.db)
	for _, prefix := range [][]byte{prefixAccount, []byte("r/"), []byte("s/"), prefixTx, []byte("m/")} {
		err := s.db.ForEach(prefix, func(key, _ []byte) error {
			if _, keep := writes[string(key)]; keep {
				return nil
			}
			return batch.Delete(key)
		})
		if err != nil {
			return Meta{}, fmt.Errorf("clear previous snapshot: %w", err)
		}
	}
	for k, v := range writes {
		if err := batch.Put([]byte(k), v); err != nil {
			return Meta{}, err
		}
	}
	if err := batch.Commit(); err != nil {
		return Meta{}, fmt.Errorf("write snapshot: %w", err)
	}

	klog.Snapshot.Info().
		Int("accounts", meta.Accounts).
		Int("transactions", meta.Transactions).
		Bool("encrypted", encrypted).
		Str("checksum", meta.Checksum.Short()).
		Msg("Snapshot saved")
	return meta, nil
}

// Meta returns the stored snapshot description.
func (s *Store) Meta() (Meta, error) {
	var m Meta
	if err := s.get(keyMeta, &m); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Meta{}, ErrNoSnapshot
		}
		return Meta{}, err
	}
	if m.Version != Version {
		return Meta{}, fmt.Errorf("unsupported snapshot version %d", m.Version)
	}
	return m, nil
}

// Verify recomputes the payload checksum and compares it with Meta.
func (s *Store) Verify() error {
	m, err := s.Meta()
	if err != nil {
		return err
	}
	values := make(map[string][]byte)
	for _, prefix := range payloadPrefixes {
		err := s.db.ForEach(prefix, func(key, value []byte) error {
			values[string(key)] = value
			return nil
		})
		if err != nil {
			return err
		}
	}
	if got := checksumOf(values); got != m.Checksum {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksum, m.Checksum.Short(), got.Short())
	}
	return nil
}

// LoadSeed returns the stored seed material.
func (s *Store) LoadSeed(password []byte) (keys.SeedMaterial, error) {
	var doc seedDoc
	if err := s.get(keySeed, &doc); err != nil {
		return keys.SeedMaterial{}, err
	}
	if doc.Seed != nil {
		return *doc.Seed, nil
	}
	plain, err := open(doc.Sealed, password)
	if err != nil {
		return keys.SeedMaterial{}, err
	}
	defer clear(plain)
	var seed keys.SeedMaterial
	if err := json.Unmarshal(plain, &seed); err != nil {
		return keys.SeedMaterial{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// LoadAccounts returns every stored account in key order. The password is
// only needed for encrypted snapshots.
func (s *Store) LoadAccounts(password []byte) ([]migrate.AccountRecord, error) {
	var out []migrate.AccountRecord
	err := s.db.ForEach(prefixAccount, func(key, value []byte) error {
		var doc accountDoc
		if err := json.Unmarshal(value, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		records := doc.Keys
		if len(doc.Sealed) > 0 {
			plain, err := open(doc.Sealed, password)
			if err != nil {
				return err
			}
			err = json.Unmarshal(plain, &records)
			clear(plain)
			if err != nil {
				return fmt.Errorf("decode keys of %s: %w", doc.Account.Key, err)
			}
		}
		rec := migrate.AccountRecord{Account: doc.Account, Addresses: doc.Addresses}
		for _, r := range records {
			m, err := keys.FromRecord(r)
			if err != nil {
				return err
			}
			rec.Keys = append(rec.Keys, m)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadAccountSummaries returns the stored accounts without key material.
func (s *Store) LoadAccountSummaries() ([]migrate.AccountRecord, error) {
	var out []migrate.AccountRecord
	err := s.db.ForEach(prefixAccount, func(key, value []byte) error {
		var doc accountDoc
		if err := json.Unmarshal(value, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, migrate.AccountRecord{Account: doc.Account, Addresses: doc.Addresses})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTransactions returns every stored transaction in txid order.
func (s *Store) LoadTransactions() ([]migrate.TxRecord, error) {
	var out []migrate.TxRecord
	err := s.db.ForEach(prefixTx, func(key, value []byte) error {
		var rec migrate.TxRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTransaction returns one transaction record.
func (s *Store) LoadTransaction(txid types.TxID) (migrate.TxRecord, error) {
	var rec migrate.TxRecord
	if err := s.get(txKey(txid), &rec); err != nil {
		return migrate.TxRecord{}, err
	}
	return rec, nil
}

// LoadSummary returns the stored diagnostics summary.
func (s *Store) LoadSummary() (diag.Summary, error) {
	var sum diag.Summary
	if err := s.get(keySummary, &sum); err != nil {
		return diag.Summary{}, err
	}
	return sum, nil
}

func (s *Store) get(key []byte, v any) error {
	data, err := s.db.Get(key)
	if err != nil {
		return fmt.Errorf("snapshot get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("snapshot decode %s: %w", key, err)
	}
	return nil
}

func open(sealed, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrPasswordRequired
	}
	plain, err := keys.Open(sealed, password)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// accountKey is "a/" + the account key's text form.
func accountKey(k account.Key) []byte {
	return append(append([]byte{}, prefixAccount...), k.String()...)
}

// txKey is "t/" + the display txid, so iteration follows txid order.
func txKey(txid types.TxID) []byte {
	return append(append([]byte{}, prefixTx...), txid.String()...)
}

// checksumOf hashes the payload entries of values in key order.
func checksumOf(values map[string][]byte) types.Hash {
	var names [][]byte
	for k := range values {
		for _, p := range payloadPrefixes {
			if bytes.HasPrefix([]byte(k), p) {
				names = append(names, []byte(k))
				break
			}
		}
	}
	slices.SortFunc(names, bytes.Compare)

	h := blake3.New()
	var n [8]byte
	for _, k := range names {
		v := values[string(k)]
		binary.BigEndian.PutUint64(n[:], uint64(len(k)))
		h.Write(n[:])
		h.Write(k)
		binary.BigEndian.PutUint64(n[:], uint64(len(v)))
		h.Write(n[:])
		h.Write(v)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
