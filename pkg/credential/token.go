package credential

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/samber/lo"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
	"github.com/eventbadges/badge-engine/pkg/canonical"
	"github.com/eventbadges/badge-engine/pkg/keys"
)

// Algorithm is a compact token signature algorithm.
type Algorithm string

// Supported algorithms.
const (
	AlgEdDSA Algorithm = "EdDSA"
	AlgES256 Algorithm = "ES256"
)

// TokenType is the typ header of every issued token.
const TokenType = "JWT"

// Registered claims mirrored from the credential into the token payload.
const (
	ClaimIssuer    = "iss"
	ClaimJWTID     = "jti"
	ClaimSubject   = "sub"
	ClaimNotBefore = "nbf"
	ClaimExpiry    = "exp"
	ClaimIssuedAt  = "iat"
)

var (
	registeredClaims  = []string{ClaimIssuer, ClaimJWTID, ClaimSubject, ClaimNotBefore, ClaimExpiry, ClaimIssuedAt}
	allowedAlgorithms = []jose.SignatureAlgorithm{jose.EdDSA, jose.ES256}
	tokenSegment      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// SigningConfig selects the algorithm and key for SignToken.
type SigningConfig struct {
	Algorithm Algorithm

	// KeyPair signs EdDSA tokens.
	KeyPair *keys.KeyPair
	// ECDSAKey signs ES256 tokens.
	ECDSAKey *ecdsa.PrivateKey

	// VerificationMethod is emitted as the kid header.
	VerificationMethod string
}

func (cfg SigningConfig) signingKey() (jose.SigningKey, error) {
	switch cfg.Algorithm {
	case AlgEdDSA, "":
		if cfg.KeyPair == nil {
			return jose.SigningKey{}, badgeerr.New(badgeerr.KindKeyConfiguration, "EdDSA signing requires a key pair")
		}
		return jose.SigningKey{Algorithm: jose.EdDSA, Key: cfg.KeyPair.PrivateKey()}, nil
	case AlgES256:
		if cfg.ECDSAKey == nil {
			return jose.SigningKey{}, badgeerr.New(badgeerr.KindKeyConfiguration, "ES256 signing requires an ECDSA P-256 key")
		}
		return jose.SigningKey{Algorithm: jose.ES256, Key: cfg.ECDSAKey}, nil
	default:
		return jose.SigningKey{}, badgeerr.Newf(badgeerr.KindKeyConfiguration, "unsupported algorithm %q", cfg.Algorithm)
	}
}

// SignToken encodes c as a compact JWS. The credential's members sit at the
// top level of the payload alongside iss, jti, sub, nbf and, when the
// credential expires, exp. No iat claim is emitted.
func SignToken(c *Credential, cfg SigningConfig) (string, error) {
	if c == nil {
		return "", fmt.Errorf("credential is required")
	}

	// 1. Resolve signer
	key, err := cfg.signingKey()
	if err != nil {
		return "", err
	}
	opts := (&jose.SignerOptions{}).WithType(TokenType)
	if cfg.VerificationMethod != "" {
		opts = opts.WithHeader("kid", cfg.VerificationMethod)
	}
	signer, err := jose.NewSigner(key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	// 2. Build payload
	claims, err := tokenClaims(c)
	if err != nil {
		return "", err
	}
	payload, err := canonical.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	// 3. Sign
	jwsObj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	// 4. Serialize to compact form
	token, err := jwsObj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWS: %w", err)
	}
	return token, nil
}

func tokenClaims(c *Credential) (map[string]any, error) {
	claims, err := c.Document()
	if err != nil {
		return nil, err
	}

	validFrom, err := ParseTime(c.ValidFrom)
	if err != nil {
		return nil, fmt.Errorf("validFrom: %w", err)
	}

	claims[ClaimIssuer] = c.Issuer.ID
	claims[ClaimJWTID] = c.ID
	claims[ClaimSubject] = c.CredentialSubject.ID
	claims[ClaimNotBefore] = validFrom.Unix()

	if c.ValidUntil != "" {
		validUntil, err := ParseTime(c.ValidUntil)
		if err != nil {
			return nil, fmt.Errorf("validUntil: %w", err)
		}
		claims[ClaimExpiry] = validUntil.Unix()
	}
	return claims, nil
}

// TokenHeader holds the protected header values a verifier needs.
type TokenHeader struct {
	Algorithm string
	KeyID     string
	Type      string
}

// ParseToken checks the compact structure of token and returns its header
// and payload without verifying the signature.
func ParseToken(token string) (*TokenHeader, map[string]any, error) {
	jwsObj, err := parseCompact(token)
	if err != nil {
		return nil, nil, err
	}

	payload := jwsObj.UnsafePayloadWithoutVerification()
	claims, err := decodeClaims(payload)
	if err != nil {
		return nil, nil, err
	}
	return tokenHeader(jwsObj), claims, nil
}

// IsCompactToken reports whether s has the shape of a compact JWS: three
// non-empty base64url segments.
func IsCompactToken(s string) bool {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if !tokenSegment.MatchString(p) {
			return false
		}
	}
	return true
}

// VerifyToken verifies token under publicKey and returns the credential it
// carries with the registered claims removed.
func VerifyToken(token string, publicKey crypto.PublicKey) (*Credential, error) {
	doc, err := VerifyTokenDocument(token, publicKey)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// VerifyTokenDocument is VerifyToken for callers that need the generic
// document.
func VerifyTokenDocument(token string, publicKey crypto.PublicKey) (map[string]any, error) {
	// 1. Parse and check structure
	jwsObj, err := parseCompact(token)
	if err != nil {
		return nil, err
	}

	// 2. Verify signature
	if raw, ok := publicKey.([]byte); ok {
		publicKey = ed25519.PublicKey(raw)
	}
	payload, err := jwsObj.Verify(publicKey)
	if err != nil {
		return nil, badgeerr.Wrap(badgeerr.KindProofVerification, "token signature verification failed", err)
	}

	// 3. Decode payload
	claims, err := decodeClaims(payload)
	if err != nil {
		return nil, err
	}

	// 4. Strip registered claims
	return StripRegisteredClaims(claims), nil
}

// StripRegisteredClaims returns a copy of claims without the JWT registered
// claims SignToken adds.
func StripRegisteredClaims(claims map[string]any) map[string]any {
	return lo.OmitByKeys(claims, registeredClaims)
}

// CheckRegisteredClaims verifies that the registered claims in a token
// payload agree with the credential members they mirror.
func CheckRegisteredClaims(claims map[string]any) error {
	c, err := FromDocument(StripRegisteredClaims(claims))
	if err != nil {
		return err
	}
	want, err := tokenClaims(c)
	if err != nil {
		return err
	}

	for _, name := range []string{ClaimIssuer, ClaimJWTID, ClaimSubject, ClaimNotBefore, ClaimExpiry} {
		got, gotOK := claims[name]
		exp, expOK := want[name]
		if gotOK != expOK {
			return badgeerr.Newf(badgeerr.KindProofVerification, "claim %s presence does not match credential", name)
		}
		if gotOK && claimString(got) != claimString(exp) {
			return badgeerr.Newf(badgeerr.KindProofVerification, "claim %s is %v, credential implies %v", name, got, exp)
		}
	}
	return nil
}

func claimString(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(n, 10)
	case json.Number:
		return n.String()
	default:
		return fmt.Sprint(v)
	}
}

func parseCompact(token string) (*jose.JSONWebSignature, error) {
	token = strings.TrimSpace(token)
	if !IsCompactToken(token) {
		return nil, badgeerr.New(badgeerr.KindEncoding, "token must have three base64url segments")
	}

	jwsObj, err := jose.ParseSigned(token, allowedAlgorithms)
	if err != nil {
		return nil, badgeerr.Wrap(badgeerr.KindEncoding, "failed to parse token", err)
	}
	if len(jwsObj.Signatures) != 1 {
		return nil, badgeerr.New(badgeerr.KindEncoding, "token must carry exactly one signature")
	}
	return jwsObj, nil
}

func tokenHeader(jwsObj *jose.JSONWebSignature) *TokenHeader {
	h := jwsObj.Signatures[0].Protected
	typ, _ := h.ExtraHeaders[jose.HeaderType].(string)
	return &TokenHeader{Algorithm: h.Algorithm, KeyID: h.KeyID, Type: typ}
}

func decodeClaims(payload []byte) (map[string]any, error) {
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, badgeerr.Wrap(badgeerr.KindEncoding, "token payload is not a JSON object", err)
	}
	if claims == nil {
		return nil, badgeerr.New(badgeerr.KindEncoding, "token payload is not a JSON object")
	}
	return claims, nil
}
