// Package issuer describes an issuing organisation: the public keys it
// publishes and the profile document relying parties fetch to find them.
package issuer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
	"github.com/eventbadges/badge-engine/pkg/keys"
	"github.com/eventbadges/badge-engine/pkg/multikey"
)

// KeySet holds the Ed25519 public keys an issuer publishes, indexed by key
// id. It is safe for concurrent use.
type KeySet struct {
	mu    sync.RWMutex
	keys  map[string]string
	order []string
}

// NewKeySet creates a key set holding the given hex-encoded public keys.
func NewKeySet(publicKeysHex ...string) (*KeySet, error) {
	s := &KeySet{keys: make(map[string]string)}
	for _, pub := range publicKeysHex {
		if _, err := s.Add(pub); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers a hex-encoded public key and returns its key id. Adding a
// key twice is a no-op.
func (s *KeySet) Add(publicKeyHex string) (string, error) {
	pub, err := keys.HexToBytes(publicKeyHex)
	if err != nil {
		return "", err
	}
	if len(pub) != keys.KeySize {
		return "", badgeerr.Newf(badgeerr.KindKeyValidation, "public key must be %d bytes, got %d", keys.KeySize, len(pub))
	}

	normalized := keys.BytesToHex(pub)
	keyID, err := keys.DeriveKeyID(normalized)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.keys[keyID]; ok {
		if existing != normalized {
			return "", badgeerr.Newf(badgeerr.KindKeyConfiguration, "key id %s is shared by two different public keys", keyID)
		}
		return keyID, nil
	}
	s.keys[keyID] = normalized
	s.order = append(s.order, keyID)
	return keyID, nil
}

// Lookup returns the hex-encoded public key for keyID.
func (s *KeySet) Lookup(keyID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pub, ok := s.keys[strings.ToLower(keyID)]
	if !ok {
		return "", badgeerr.Newf(badgeerr.KindKeyNotFound, "no key with id %q", keyID)
	}
	return pub, nil
}

// IDs returns the key ids in the order they were added.
func (s *KeySet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Document builds the Multikey document for keyID as published under
// issuerURL.
func (s *KeySet) Document(issuerURL, keyID string) (*multikey.Document, error) {
	pub, err := s.Lookup(keyID)
	if err != nil {
		return nil, err
	}
	return multikey.BuildDocument(pub, strings.ToLower(keyID), issuerURL)
}

// Documents builds the Multikey documents for every key in the set.
func (s *KeySet) Documents(issuerURL string) ([]*multikey.Document, error) {
	ids := s.IDs()
	docs := make([]*multikey.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Document(issuerURL, id)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", id, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
