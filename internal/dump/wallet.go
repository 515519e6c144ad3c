// Package dump is the in-memory form of a parsed legacy wallet, as handed
// over by the wallet.dat reader. Byte fields are hex in JSON.
package dump

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/zmigrate/internal/account"
	"github.com/Klingon-tech/zmigrate/internal/address"
	"github.com/Klingon-tech/zmigrate/pkg/types"
)

// HexBytes is a byte slice encoded as hex in JSON.
type HexBytes []byte

// MarshalJSON encodes b as a hex string.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON decodes a hex string.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*b = decoded
	return nil
}

// Wallet is a complete wallet snapshot.
type Wallet struct {
	Network          types.Network `json:"network"`
	Mnemonic         string        `json:"mnemonic,omitempty"`
	MnemonicLanguage string        `json:"mnemonic_language,omitempty"`
	LegacySeed       HexBytes      `json:"legacy_hd_seed,omitempty"`

	UnifiedAccounts   []UnifiedAccount            `json:"unified_accounts,omitempty"`
	UnifiedAddresses  []UnifiedAddress            `json:"unified_addresses,omitempty"`
	TransparentKeys   []TransparentKey            `json:"transparent_keys,omitempty"`
	ShieldedAddresses []ShieldedAddress           `json:"shielded_addresses,omitempty"`
	AddressBook       map[string]AddressBookEntry `json:"address_book,omitempty"`
	Notes             []Note                      `json:"notes,omitempty"`
	Transactions      []Transaction               `json:"transactions,omitempty"`

	// NotePositions is the commitment-to-position table read from the
	// wallet's note commitment trees. It is empty when the trees were
	// missing or could not be parsed.
	NotePositions []NotePosition `json:"note_positions,omitempty"`
}

// UnifiedAccount is one HD account record.
type UnifiedAccount struct {
	SeedFingerprint types.Hash `json:"seed_fingerprint"`
	CoinType        uint32     `json:"coin_type"`
	AccountIndex    uint32     `json:"account_index"`
	UFVKID          types.Hash `json:"ufvk_id"`
}

// Metadata converts the record.
func (a UnifiedAccount) Metadata() account.UnifiedAccountMetadata {
	return account.UnifiedAccountMetadata{
		SeedFingerprint: a.SeedFingerprint,
		CoinType:        a.CoinType,
		AccountIndex:    a.AccountIndex,
		UFVKID:          a.UFVKID,
	}
}

// UnifiedAddress is one diversified address of a unified account.
// Address is the rendered string when the wallet recorded one.
type UnifiedAddress struct {
	UFVKID           types.Hash `json:"ufvk_id"`
	DiversifierIndex HexBytes   `json:"diversifier_index"`
	ReceiverTypes    []string   `json:"receiver_types"`
	Address          string     `json:"address,omitempty"`
}

// Metadata converts the record, validating the diversifier and receiver
// names.
func (a UnifiedAddress) Metadata() (account.UnifiedAddressMetadata, error) {
	if len(a.DiversifierIndex) != address.DiversifierSize {
		return account.UnifiedAddressMetadata{}, fmt.Errorf("diversifier index must be %d bytes, got %d",
			address.DiversifierSize, len(a.DiversifierIndex))
	}
	var set address.ReceiverSet
	for _, name := range a.ReceiverTypes {
		kind, err := address.ParseReceiverSet(name)
		if err != nil {
			return account.UnifiedAddressMetadata{}, err
		}
		set |= kind
	}
	m := account.UnifiedAddressMetadata{UFVKID: a.UFVKID, Receivers: set}
	copy(m.DiversifierIndex[:], a.DiversifierIndex)
	return m, nil
}

// TransparentKey is a transparent key pair. PrivKey is absent for
// watch-only entries.
type TransparentKey struct {
	Address string   `json:"address,omitempty"`
	PubKey  HexBytes `json:"pubkey"`
	PrivKey HexBytes `json:"privkey,omitempty"`
	KeyPath string   `json:"hd_keypath,omitempty"`
	Group   string   `json:"group,omitempty"`
}

// ShieldedAddress is a standalone shielded address with its keys. Orchard
// receivers have no standalone string; they are given raw in Receiver.
type ShieldedAddress struct {
	Pool        address.Pool `json:"pool"`
	Address     string       `json:"address,omitempty"`
	Receiver    HexBytes     `json:"receiver,omitempty"`
	IVK         HexBytes     `json:"ivk,omitempty"`
	SpendingKey HexBytes     `json:"spending_key,omitempty"`
	KeyPath     string       `json:"hd_keypath,omitempty"`
	Group       string       `json:"group,omitempty"`
}

// AddressBookEntry is the name and purpose the wallet stores per address.
type AddressBookEntry struct {
	Name    string `json:"name,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// Note is one received shielded note, keyed by the output that created it.
// IVK is the viewing key that decrypted it; Address, when known, is its
// receiving address.
type Note struct {
	Pool      address.Pool   `json:"pool"`
	Outpoint  types.Outpoint `json:"outpoint"`
	IVK       HexBytes       `json:"ivk,omitempty"`
	Nullifier *types.Hash    `json:"nullifier,omitempty"`
	Address   string         `json:"address,omitempty"`
}

// NotePosition places a Sapling output or Orchard action commitment in
// its pool's note commitment tree.
type NotePosition struct {
	Pool       address.Pool `json:"pool"`
	Commitment types.Hash   `json:"commitment"`
	Position   uint64       `json:"position"`
}

// Transaction is one wallet transaction. Raw is the serialized
// transaction as the wallet stored it.
type Transaction struct {
	TxID           types.TxID `json:"txid"`
	CreatedLocally bool       `json:"created_locally"`
	BlockHash      string     `json:"block_hash,omitempty"`
	BlockIndex     int32      `json:"block_index,omitempty"`
	TimeReceived   int64      `json:"time_received,omitempty"`
	Raw            HexBytes   `json:"raw,omitempty"`

	TransparentInputs  []TxIn           `json:"vin,omitempty"`
	TransparentOutputs []TxOut          `json:"vout,omitempty"`
	ShieldedSpends     []ShieldedSpend  `json:"shielded_spends,omitempty"`
	ShieldedOutputs    []ShieldedOutput `json:"shielded_outputs,omitempty"`
	Recipients         []Recipient      `json:"recipients,omitempty"`
}

// TxIn is a transparent input.
type TxIn struct {
	Prevout   types.Outpoint `json:"prevout"`
	ScriptSig HexBytes       `json:"script_sig,omitempty"`
}

// TxOut is a transparent output.
type TxOut struct {
	Value  int64    `json:"value"`
	Script HexBytes `json:"script_pubkey"`
}

// ShieldedSpend is a shielded input, known only by its nullifier.
type ShieldedSpend struct {
	Pool      address.Pool `json:"pool"`
	Nullifier types.Hash   `json:"nullifier"`
}

// ShieldedOutput is a shielded output. Recipient and IVK are set when the
// wallet could decrypt the output.
type ShieldedOutput struct {
	Pool       address.Pool `json:"pool"`
	Index      uint32       `json:"index"`
	Commitment types.Hash   `json:"commitment"`
	Recipient  string       `json:"recipient,omitempty"`
	IVK        HexBytes     `json:"ivk,omitempty"`
}

// Recipient is a send-side record of where the wallet paid. Address is the
// receiver actually used; UnifiedAddress is the unified address it was
// selected from, if any.
type Recipient struct {
	Address        string `json:"address,omitempty"`
	UnifiedAddress string `json:"unified_address,omitempty"`
}
