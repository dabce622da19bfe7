package credential

import (
	"fmt"
	"time"

	"github.com/eventbadges/badge-engine/pkg/keys"
	"github.com/eventbadges/badge-engine/pkg/proof"
)

// Sign returns a copy of c carrying a Data Integrity proof made with kp.
// The proof covers the credential with its proof member removed, so any
// proofs already on c are replaced.
func Sign(c *Credential, kp *keys.KeyPair, verificationMethod string, created time.Time) (*Credential, error) {
	if c == nil {
		return nil, fmt.Errorf("credential is required")
	}
	if verificationMethod == "" {
		return nil, fmt.Errorf("verification method is required")
	}

	unsigned := c.Unsigned()
	p, err := proof.New(unsigned, kp, verificationMethod, created)
	if err != nil {
		return nil, fmt.Errorf("failed to sign credential: %w", err)
	}

	signed := *unsigned
	signed.Proof = []proof.Proof{*p}
	return &signed, nil
}

// VerifyProof reports whether c carries at least one proof and every proof
// verifies under publicKey.
func VerifyProof(c *Credential, publicKey []byte) bool {
	if c == nil || len(c.Proof) == 0 {
		return false
	}
	unsigned := c.Unsigned()
	for _, p := range c.Proof {
		if !proof.Verify(unsigned, p.ProofValue, publicKey) {
			return false
		}
	}
	return true
}

// VerifyDocumentProof checks proofValue against doc with its "proof" member
// removed. doc itself is not modified.
//
// Verifying the generic document rather than a decoded Credential keeps
// members this package does not model inside the signed bytes.
func VerifyDocumentProof(doc map[string]any, proofValue string, publicKey []byte) bool {
	unsigned := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "proof" {
			continue
		}
		unsigned[k] = v
	}
	return proof.Verify(unsigned, proofValue, publicKey)
}
