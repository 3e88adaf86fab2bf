// Package vault implements per-note locking independent of account
// encryption: a password-derived key seals and opens individual note
// content records.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltMetaKey  = "vault.salt"
	checkMetaKey = "vault.check"

	// argon2id parameters
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = chacha20poly1305.KeySize
)

var (
	// ErrLocked is returned when an operation needs the vault key but
	// the vault is not open.
	ErrLocked = errors.New("vault: locked")

	// ErrWrongPassword is returned when the password does not match the
	// vault's verification value.
	ErrWrongPassword = errors.New("vault: wrong password")

	// ErrNotCreated is returned when no vault has been set up yet.
	ErrNotCreated = errors.New("vault: not created")
)

// MetaStore persists the vault's salt and verification value. The note
// store's meta table satisfies this.
type MetaStore interface {
	GetMeta(key string) (string, error)
	SetMeta(key, value string) error
}

// Vault derives its key with argon2id and seals content with
// XChaCha20-Poly1305. The key is held in memory only while the vault is
// open.
type Vault struct {
	mu   sync.Mutex
	meta MetaStore
	key  []byte
}

// New creates a vault backed by the given meta store. The vault starts
// closed even if one was previously created.
func New(meta MetaStore) *Vault {
	return &Vault{meta: meta}
}

// Exists reports whether a vault has been created.
func (v *Vault) Exists() (bool, error) {
	salt, err := v.meta.GetMeta(saltMetaKey)
	if err != nil {
		return false, err
	}
	return salt != "", nil
}

// Create sets up the vault with a password and leaves it open.
func (v *Vault) Create(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(password, salt)

	// Seal a fixed marker so Unlock can verify the password.
	check, err := seal(key, []byte("notedeck-vault"))
	if err != nil {
		return fmt.Errorf("seal check value: %w", err)
	}

	if err := v.meta.SetMeta(saltMetaKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return fmt.Errorf("persist salt: %w", err)
	}
	if err := v.meta.SetMeta(checkMetaKey, check); err != nil {
		return fmt.Errorf("persist check value: %w", err)
	}

	v.key = key
	return nil
}

// Unlock opens the vault with the given password.
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	saltB64, err := v.meta.GetMeta(saltMetaKey)
	if err != nil {
		return err
	}
	if saltB64 == "" {
		return ErrNotCreated
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return fmt.Errorf("decode salt: %w", err)
	}

	key := deriveKey(password, salt)

	check, err := v.meta.GetMeta(checkMetaKey)
	if err != nil {
		return err
	}
	if _, err := open(key, check); err != nil {
		return ErrWrongPassword
	}

	v.key = key
	return nil
}

// Lock closes the vault and forgets the key.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.key = nil
}

// IsOpen reports whether the vault key is currently held.
func (v *Vault) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.key != nil
}

// Seal encrypts plaintext content data with the vault key.
func (v *Vault) Seal(plaintext string) (string, error) {
	v.mu.Lock()
	key := v.key
	v.mu.Unlock()

	if key == nil {
		return "", ErrLocked
	}
	return seal(key, []byte(plaintext))
}

// Open decrypts sealed content data. Returns ErrLocked when the vault
// is closed; any tampering or key mismatch surfaces as an error the
// caller treats as "unlock required", not a crash.
func (v *Vault) Open(sealed string) (string, error) {
	v.mu.Lock()
	key := v.key
	v.mu.Unlock()

	if key == nil {
		return "", ErrLocked
	}
	plain, err := open(key, sealed)
	if err != nil {
		return "", fmt.Errorf("open sealed content: %w", err)
	}
	return string(plain), nil
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLen)
}

func seal(key, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ct := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ct), nil
}

func open(key []byte, sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize() {
		return nil, errors.New("sealed data too short")
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, nil)
}
