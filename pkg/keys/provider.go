// Package keys loads the issuer's Ed25519 key material and derives the
// identifiers published alongside it.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
)

// Configuration entries read by EnvProvider when no names are given.
const (
	DefaultPrivateKeyVar = "BADGE_PRIVATE_KEY"
	DefaultPublicKeyVar  = "BADGE_PUBLIC_KEY"
)

// KeySize is the size in bytes of both halves of an Ed25519 key pair as
// stored in configuration (the private half is the 32-byte seed).
const KeySize = 32

// KeyProvider supplies raw key material.
type KeyProvider interface {
	// LoadPrivateKey returns the 32-byte Ed25519 seed.
	LoadPrivateKey() ([]byte, error)

	// LoadPublicKey returns the 32-byte Ed25519 public key.
	LoadPublicKey() ([]byte, error)
}

// KeyPair is an immutable Ed25519 key pair.
type KeyPair struct {
	privateKey []byte
	publicKey  []byte
}

// NewKeyPair builds a KeyPair from a 32-byte seed and 32-byte public key.
// The public key must be the one derived from the seed.
func NewKeyPair(seed, pub []byte) (*KeyPair, error) {
	if len(seed) != KeySize {
		return nil, badgeerr.Newf(badgeerr.KindKeyConfiguration, "private key must be %d bytes, got %d", KeySize, len(seed))
	}
	if len(pub) != KeySize {
		return nil, badgeerr.Newf(badgeerr.KindKeyConfiguration, "public key must be %d bytes, got %d", KeySize, len(pub))
	}

	derived := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, pub) {
		return nil, badgeerr.New(badgeerr.KindKeyConfiguration, "public key does not belong to private key")
	}

	return &KeyPair{
		privateKey: bytes.Clone(seed),
		publicKey:  bytes.Clone(pub),
	}, nil
}

// GenerateKeyPair creates a fresh random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &KeyPair{privateKey: priv.Seed(), publicKey: pub}, nil
}

// LoadKeyPair reads both halves from p.
func LoadKeyPair(p KeyProvider) (*KeyPair, error) {
	seed, err := p.LoadPrivateKey()
	if err != nil {
		return nil, err
	}
	pub, err := p.LoadPublicKey()
	if err != nil {
		return nil, err
	}
	return NewKeyPair(seed, pub)
}

// Seed returns a copy of the 32-byte private seed.
func (k *KeyPair) Seed() []byte {
	return bytes.Clone(k.privateKey)
}

// PrivateKey returns the expanded Ed25519 private key.
func (k *KeyPair) PrivateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(k.privateKey)
}

// PublicKey returns the Ed25519 public key.
func (k *KeyPair) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(bytes.Clone(k.publicKey))
}

// PublicKeyHex returns the public key as 64 lowercase hex characters.
func (k *KeyPair) PublicKeyHex() string {
	return BytesToHex(k.publicKey)
}

// KeyID returns the key identifier derived from the public key.
func (k *KeyPair) KeyID() string {
	id, _ := DeriveKeyID(k.PublicKeyHex())
	return id
}

// EnvProvider reads hex-encoded keys from named configuration entries.
type EnvProvider struct {
	PrivateKeyVar string
	PublicKeyVar  string

	// Lookup resolves an entry. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// NewEnvProvider returns an EnvProvider using the default entry names.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{
		PrivateKeyVar: DefaultPrivateKeyVar,
		PublicKeyVar:  DefaultPublicKeyVar,
		Lookup:        os.LookupEnv,
	}
}

// LoadPrivateKey implements KeyProvider.
func (p *EnvProvider) LoadPrivateKey() ([]byte, error) {
	return p.load(p.PrivateKeyVar, DefaultPrivateKeyVar)
}

// LoadPublicKey implements KeyProvider.
func (p *EnvProvider) LoadPublicKey() ([]byte, error) {
	return p.load(p.PublicKeyVar, DefaultPublicKeyVar)
}

func (p *EnvProvider) load(name, fallback string) ([]byte, error) {
	if name == "" {
		name = fallback
	}
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	raw, ok := lookup(name)
	if !ok || raw == "" {
		return nil, badgeerr.Newf(badgeerr.KindKeyConfiguration, "%s is not set", name)
	}

	b, err := HexToBytes(raw)
	if err != nil {
		return nil, badgeerr.Wrap(badgeerr.KindKeyConfiguration, fmt.Sprintf("%s is not valid hex", name), err)
	}
	if len(b) != KeySize {
		return nil, badgeerr.Newf(badgeerr.KindKeyConfiguration, "%s must decode to %d bytes, got %d", name, KeySize, len(b))
	}
	return b, nil
}

// StaticProvider serves key material held in memory.
type StaticProvider struct {
	Private []byte
	Public  []byte
}

// LoadPrivateKey implements KeyProvider.
func (p StaticProvider) LoadPrivateKey() ([]byte, error) {
	if len(p.Private) != KeySize {
		return nil, badgeerr.Newf(badgeerr.KindKeyConfiguration, "private key must be %d bytes, got %d", KeySize, len(p.Private))
	}
	return bytes.Clone(p.Private), nil
}

// LoadPublicKey implements KeyProvider.
func (p StaticProvider) LoadPublicKey() ([]byte, error) {
	if len(p.Public) != KeySize {
		return nil, badgeerr.Newf(badgeerr.KindKeyConfiguration, "public key must be %d bytes, got %d", KeySize, len(p.Public))
	}
	return bytes.Clone(p.Public), nil
}
