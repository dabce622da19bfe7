package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventbadges/badge-engine/internal/config"
	"github.com/eventbadges/badge-engine/pkg/credential"
	"github.com/eventbadges/badge-engine/pkg/keys"
	"github.com/eventbadges/badge-engine/pkg/verify"
)

const testIssuerURL = "https://2025.example.org"

func testOptions() issueOptions {
	return issueOptions{
		Subject:         "mailto:speaker@example.org",
		AchievementID:   testIssuerURL + "/achievements/speaker",
		AchievementName: "Speaker",
		Description:     "Spoke at the conference",
		Criteria:        "Gave a talk.",
		Algorithm:       string(credential.AlgEdDSA),
	}
}

func newKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestIssueCredential_JSON(t *testing.T) {
	kp := newKeyPair(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	out, err := issueCredential(testOptions(), kp, testIssuerURL, "Example Conf", "badges@example.org", now)
	require.NoError(t, err)

	c, err := credential.Decode([]byte(out))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.ID, "urn:uuid:"))
	assert.Equal(t, testIssuerURL+"/api/badge/issuer", c.Issuer.ID)
	assert.Equal(t, "2025-06-01T12:00:00Z", c.ValidFrom)
	assert.Empty(t, c.ValidUntil)
	require.Len(t, c.Proof, 1)
	assert.Equal(t, testIssuerURL+"/api/badge/keys/"+kp.KeyID(), c.Proof[0].VerificationMethod)
	assert.True(t, credential.VerifyProof(c, kp.PublicKey()))
}

func TestIssueCredential_Token(t *testing.T) {
	kp := newKeyPair(t)
	opts := testOptions()
	opts.Token = true
	opts.ID = "urn:uuid:2f3c1c2e-0000-4000-8000-000000000001"
	opts.ValidFor = 24 * time.Hour

	token, err := issueCredential(opts, kp, testIssuerURL, "Example Conf", "", time.Now())
	require.NoError(t, err)
	require.True(t, credential.IsCompactToken(token))

	c, err := credential.VerifyToken(token, kp.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, opts.ID, c.ID)
	assert.NotEmpty(t, c.ValidUntil)
}

func TestIssueCredential_ES256Token(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwk := jose.JSONWebKey{Key: ecKey, KeyID: "https://2025.example.org/keys/ec-1", Algorithm: string(jose.ES256), Use: "sig"}
	data, err := json.Marshal(jwk)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ec.jwk")
	require.NoError(t, os.WriteFile(path, data, 0600))

	opts := testOptions()
	opts.Token = true
	opts.Algorithm = string(credential.AlgES256)
	opts.ES256KeyFile = path

	token, err := issueCredential(opts, newKeyPair(t), testIssuerURL, "Example Conf", "", time.Now())
	require.NoError(t, err)

	hdr, _, err := credential.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ES256", hdr.Algorithm)
	assert.Equal(t, jwk.KeyID, hdr.KeyID)

	_, err = credential.VerifyToken(token, &ecKey.PublicKey)
	assert.NoError(t, err)
}

func TestIssueCredential_Errors(t *testing.T) {
	kp := newKeyPair(t)

	missing := testOptions()
	missing.AchievementName = ""
	_, err := issueCredential(missing, kp, testIssuerURL, "Example Conf", "", time.Now())
	assert.ErrorContains(t, err, "achievement name is required")

	noKey := testOptions()
	noKey.Token = true
	noKey.Algorithm = string(credential.AlgES256)
	_, err = issueCredential(noKey, kp, testIssuerURL, "Example Conf", "", time.Now())
	assert.ErrorContains(t, err, "--es256-key")
}

func TestLoadECKey_RequiresKeyID(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	data, err := json.Marshal(jose.JSONWebKey{Key: ecKey, Algorithm: string(jose.ES256)})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ec.jwk")
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = loadECKey(path)
	assert.ErrorContains(t, err, "kid")

	opts := testOptions()
	opts.Token = true
	opts.Algorithm = string(credential.AlgES256)
	opts.ES256KeyFile = path
	_, err = issueCredential(opts, newKeyPair(t), testIssuerURL, "Example Conf", "", time.Now())
	assert.ErrorContains(t, err, "kid")
}

func TestLoadECKey_RejectsEd25519(t *testing.T) {
	kp := newKeyPair(t)
	data, err := json.Marshal(jose.JSONWebKey{Key: kp.PrivateKey(), KeyID: kp.KeyID()})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ed.jwk")
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = loadECKey(path)
	assert.ErrorContains(t, err, "P-256")
}

func TestResolveTokenKey(t *testing.T) {
	kp := newKeyPair(t)

	fromHex, err := resolveTokenKey("", kp.PublicKeyHex())
	require.NoError(t, err)
	assert.Equal(t, []byte(kp.PublicKey()), fromHex)

	data, err := json.Marshal(jose.JSONWebKey{Key: kp.PrivateKey(), KeyID: kp.KeyID()})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.jwk")
	require.NoError(t, os.WriteFile(path, data, 0600))

	fromJWK, err := resolveTokenKey(path, "")
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), fromJWK)
}

func TestKeyDocument(t *testing.T) {
	kp := newKeyPair(t)

	doc, err := keyDocument(kp.PublicKeyHex(), testIssuerURL)
	require.NoError(t, err)
	assert.Equal(t, testIssuerURL+"/api/badge/keys/"+kp.KeyID(), doc.ID)
	assert.Equal(t, testIssuerURL, doc.Controller)

	_, err = keyDocument("abcd", testIssuerURL)
	assert.Error(t, err)
}

func TestResolveIssuerURL(t *testing.T) {
	cfg, err := config.LoadFrom(func(name string) (string, bool) {
		if name == config.EnvIssuerDomains {
			return "2025.example.org,2026.example.org", true
		}
		return "", false
	})
	require.NoError(t, err)

	got, err := resolveIssuerURL(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, testIssuerURL, got)

	got, err = resolveIssuerURL(cfg, "http://localhost:3000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", got)
}

func TestRenderReport(t *testing.T) {
	report := &verify.Report{Checks: []verify.Check{
		{Name: verify.CheckExtraction, Status: verify.StatusSuccess, Message: "credential extracted"},
		{Name: verify.CheckIssuer, Status: verify.StatusError, Message: "issuer profile unreachable"},
		{Name: verify.CheckProof, Status: verify.StatusPending, Message: "waiting for issuer"},
	}}

	var buf bytes.Buffer
	renderReport(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "✅ extraction")
	assert.Contains(t, out, "❌ issuer")
	assert.Contains(t, out, "⏳ proof")
	assert.Contains(t, out, "Result: INVALID")
}

func TestNewServer(t *testing.T) {
	kp := newKeyPair(t)
	env := map[string]string{
		config.EnvPublicKey:  kp.PublicKeyHex(),
		config.EnvIssuerName: "Example Conf",
	}
	cfg, err := config.LoadFrom(func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	})
	require.NoError(t, err)

	h, err := newServer(cfg, testIssuerURL)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/badge/keys/"+kp.KeyID(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
