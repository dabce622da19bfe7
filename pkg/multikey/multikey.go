// Package multikey encodes Ed25519 public keys in the W3C Multikey format
// and builds the Multikey documents published for an issuer's keys.
//
// Encoding: "z" + base58btc(0xed 0x01 || public_key).
package multikey

import (
	"crypto/ed25519"
	"fmt"
	"net/url"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
	"github.com/eventbadges/badge-engine/pkg/keys"
)

// Multibase and multicodec constants.
const (
	// Base58BTCPrefix is the multibase marker for base58btc.
	Base58BTCPrefix = 'z'

	// Ed25519PublicKeySize is the size of a raw Ed25519 public key.
	Ed25519PublicKeySize = ed25519.PublicKeySize

	// EncodedKeySize is the multicodec prefix plus the raw key.
	EncodedKeySize = len(Ed25519Prefix) + Ed25519PublicKeySize

	// KeyType is the document type of a Multikey.
	KeyType = "Multikey"

	// KeysPath is the path under an issuer URL where keys are published.
	KeysPath = "/api/badge/keys/"
)

// Ed25519Prefix is the varint multicodec for ed25519-pub (0xed01).
var Ed25519Prefix = [2]byte{0xed, 0x01}

// DocumentContext is the JSON-LD context of a Multikey document.
var DocumentContext = []string{
	"https://www.w3.org/ns/did/v1",
	"https://w3id.org/security/multikey/v1",
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// maxEncodedKeyChars is the longest base58 encoding of EncodedKeySize bytes:
// 34 leading zero bytes encode to 34 characters, any other value to at most
// ceil(34 * log(256) / log(58)) = 47.
const maxEncodedKeyChars = 47

// Document is a Multikey verification method document.
type Document struct {
	Context            []string `json:"@context,omitempty"`
	ID                 string   `json:"id"`
	Type               string   `json:"type"`
	Controller         string   `json:"controller"`
	PublicKeyMultibase string   `json:"publicKeyMultibase"`
}

// Encode returns the publicKeyMultibase value for a 32-byte Ed25519 key.
func Encode(publicKey []byte) (string, error) {
	if len(publicKey) != Ed25519PublicKeySize {
		return "", badgeerr.Newf(badgeerr.KindKeyValidation, "Ed25519 public key must be %d bytes, got %d", Ed25519PublicKeySize, len(publicKey))
	}

	prefixed := make([]byte, 0, EncodedKeySize)
	prefixed = append(prefixed, Ed25519Prefix[:]...)
	prefixed = append(prefixed, publicKey...)

	return string(Base58BTCPrefix) + base58.Encode(prefixed), nil
}

// Decode validates a publicKeyMultibase value and returns the raw key.
// Checks run in order: multibase prefix, base58 alphabet, decoded length,
// multicodec prefix. The returned error names the failing check.
func Decode(publicKeyMultibase string) (ed25519.PublicKey, error) {
	if publicKeyMultibase == "" || publicKeyMultibase[0] != Base58BTCPrefix {
		return nil, badgeerr.New(badgeerr.KindKeyValidation, "publicKeyMultibase must start with 'z' (base58btc)")
	}

	body := publicKeyMultibase[1:]
	if body == "" || strings.Trim(body, base58Alphabet) != "" {
		return nil, badgeerr.New(badgeerr.KindKeyValidation, "publicKeyMultibase contains invalid Base58 characters")
	}

	if len(body) > maxEncodedKeyChars {
		return nil, badgeerr.Newf(badgeerr.KindKeyValidation, "decoded key must be %d bytes, encoding is %d characters long", EncodedKeySize, len(body))
	}

	decoded, err := base58.Decode(body)
	if err != nil {
		return nil, badgeerr.Wrap(badgeerr.KindKeyValidation, "publicKeyMultibase contains invalid Base58 characters", err)
	}

	if len(decoded) != EncodedKeySize {
		return nil, badgeerr.Newf(badgeerr.KindKeyValidation, "decoded key must be %d bytes, got %d", EncodedKeySize, len(decoded))
	}

	if decoded[0] != Ed25519Prefix[0] || decoded[1] != Ed25519Prefix[1] {
		return nil, badgeerr.Newf(badgeerr.KindKeyValidation, "invalid Ed25519 multicodec prefix: expected 0xed01, got 0x%02x%02x", decoded[0], decoded[1])
	}

	return ed25519.PublicKey(decoded[2:]), nil
}

// ValidatePublicKeyMultibase runs the Decode checks and discards the key.
func ValidatePublicKeyMultibase(publicKeyMultibase string) error {
	_, err := Decode(publicKeyMultibase)
	return err
}

// DocumentID returns the URL a key is published at.
func DocumentID(issuerURL, keyID string) string {
	return strings.TrimSuffix(issuerURL, "/") + KeysPath + keyID
}

// BuildDocument builds the Multikey document for a public key. The result
// depends only on its arguments.
func BuildDocument(publicKeyHex, keyID, issuerURL string) (*Document, error) {
	if len(publicKeyHex) != 2*Ed25519PublicKeySize {
		return nil, badgeerr.Newf(badgeerr.KindKeyValidation, "public key must be %d hex characters, got %d", 2*Ed25519PublicKeySize, len(publicKeyHex))
	}
	pub, err := keys.HexToBytes(publicKeyHex)
	if err != nil {
		return nil, badgeerr.Wrap(badgeerr.KindKeyValidation, "public key is not valid hex", err)
	}

	if err := keys.ValidateKeyID(keyID, publicKeyHex); err != nil {
		return nil, err
	}

	if err := validateIssuerURL(issuerURL); err != nil {
		return nil, err
	}

	encoded, err := Encode(pub)
	if err != nil {
		return nil, err
	}

	controller := strings.TrimSuffix(issuerURL, "/")
	return &Document{
		Context:            append([]string(nil), DocumentContext...),
		ID:                 DocumentID(controller, keyID),
		Type:               KeyType,
		Controller:         controller,
		PublicKeyMultibase: encoded,
	}, nil
}

func validateIssuerURL(issuerURL string) error {
	u, err := url.Parse(issuerURL)
	if err != nil {
		return badgeerr.Wrap(badgeerr.KindKeyValidation, fmt.Sprintf("issuer URL %q is invalid", issuerURL), err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return badgeerr.Newf(badgeerr.KindKeyValidation, "issuer URL %q must be an absolute http(s) URL", issuerURL)
	}
	return nil
}
