package keys

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed blob layout:
// version(1) | salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
const (
	sealVersion = 1
	saltSize    = 32
	sealHeader  = 1 + saltSize + 4 + 4 + 1

	maxSealMemory = 4 * 1024 * 1024
)

// ErrWrongPassword is returned when a sealed blob fails authentication.
var ErrWrongPassword = errors.New("wrong password or corrupted data")

// SealParams holds the Argon2id cost parameters.
type SealParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultSealParams returns the parameters used for snapshots on disk.
func DefaultSealParams() SealParams {
	return SealParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// FastSealParams is a low-cost setting for tests.
func FastSealParams() SealParams {
	return SealParams{Memory: 1024, Iterations: 1, Parallelism: 1}
}

func (p SealParams) derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

// Seal encrypts plaintext under password with Argon2id and
// XChaCha20-Poly1305. The header is authenticated as associated data.
func Seal(plaintext, password []byte, params SealParams) ([]byte, error) {
	header := make([]byte, 0, sealHeader)
	header = append(header, sealVersion)
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	header = append(header, salt...)
	header = binary.LittleEndian.AppendUint32(header, params.Memory)
	header = binary.LittleEndian.AppendUint32(header, params.Iterations)
	header = append(header, params.Parallelism)

	key := params.derive(password, salt)
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(header)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, header), nil
}

// Open decrypts a blob produced by Seal.
func Open(sealed, password []byte) ([]byte, error) {
	minSize := sealHeader + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return nil, fmt.Errorf("sealed data too short: %d bytes, need at least %d", len(sealed), minSize)
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("unsupported sealed data version %d", sealed[0])
	}
	header := sealed[:sealHeader]
	salt := header[1 : 1+saltSize]
	params := SealParams{
		Memory:      binary.LittleEndian.Uint32(header[1+saltSize:]),
		Iterations:  binary.LittleEndian.Uint32(header[1+saltSize+4:]),
		Parallelism: header[1+saltSize+8],
	}
	if params.Iterations < 1 || params.Parallelism < 1 || params.Memory > maxSealMemory {
		return nil, fmt.Errorf("sealed data has invalid cost parameters")
	}
	nonce := sealed[sealHeader : sealHeader+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[sealHeader+chacha20poly1305.NonceSizeX:]

	key := params.derive(password, salt)
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}
