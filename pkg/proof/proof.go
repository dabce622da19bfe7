// Package proof produces and checks Ed25519 Data Integrity proofs over the
// canonical JSON form of a document.
package proof

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/eventbadges/badge-engine/pkg/canonical"
	"github.com/eventbadges/badge-engine/pkg/keys"
)

// Proof metadata values.
const (
	TypeDataIntegrity  = "DataIntegrityProof"
	CryptosuiteEdDSA   = "eddsa-rdfc-2022"
	PurposeAssertion   = "assertionMethod"
	multibaseBase58BTC = "z"
)

// Proof is a Data Integrity proof attached to a credential.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	Cryptosuite        string `json:"cryptosuite"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
}

// Sign canonicalises v, signs the bytes with the key pair and returns the
// multibase (base58btc) encoded signature.
func Sign(v any, kp *keys.KeyPair) (string, error) {
	if kp == nil {
		return "", fmt.Errorf("key pair is required")
	}

	payload, err := canonical.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize document: %w", err)
	}

	sig := ed25519.Sign(kp.PrivateKey(), payload)
	return multibaseBase58BTC + base58.Encode(sig), nil
}

// Verify reports whether proofValue is a valid signature of v's canonical
// form under publicKey. It never fails loudly: any decoding problem is
// reported as false.
//
// A proofValue without the multibase prefix is decoded as plain base64 for
// signatures issued before multibase encoding was adopted.
func Verify(v any, proofValue string, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}

	candidates := decodeSignature(proofValue)
	if len(candidates) == 0 {
		return false
	}

	payload, err := canonical.Marshal(v)
	if err != nil {
		return false
	}

	for _, sig := range candidates {
		if ed25519.Verify(ed25519.PublicKey(publicKey), payload, sig) {
			return true
		}
	}
	return false
}

// New signs v and returns a complete proof naming verificationMethod.
func New(v any, kp *keys.KeyPair, verificationMethod string, created time.Time) (*Proof, error) {
	value, err := Sign(v, kp)
	if err != nil {
		return nil, err
	}

	return &Proof{
		Type:               TypeDataIntegrity,
		Created:            created.UTC().Format(time.RFC3339),
		VerificationMethod: verificationMethod,
		Cryptosuite:        CryptosuiteEdDSA,
		ProofPurpose:       PurposeAssertion,
		ProofValue:         value,
	}, nil
}

// decodeSignature returns every well-sized signature proofValue can be read
// as. A legacy base64 value may itself begin with 'z', so both readings are
// kept.
func decodeSignature(proofValue string) [][]byte {
	var out [][]byte
	add := func(sig []byte, err error) {
		if err == nil && len(sig) == ed25519.SignatureSize {
			out = append(out, sig)
		}
	}

	if strings.HasPrefix(proofValue, multibaseBase58BTC) && len(proofValue) > 1 {
		add(base58.Decode(proofValue[1:]))
	}

	// TODO: drop the legacy base64 form once no badges signed before the
	// multibase switch remain valid.
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		add(enc.DecodeString(proofValue))
	}
	return out
}
