package verify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eventbadges/badge-engine/pkg/credential"
	"github.com/eventbadges/badge-engine/pkg/issuer"
	"github.com/eventbadges/badge-engine/pkg/keys"
	"github.com/eventbadges/badge-engine/pkg/verify"
)

var (
	testValidFrom = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	testNow       = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
)

var allChecks = []string{
	verify.CheckExtraction,
	verify.CheckStructure,
	verify.CheckIssuer,
	verify.CheckController,
	verify.CheckProof,
	verify.CheckAchievement,
	verify.CheckValidity,
}

// fixture serves an issuer profile, its key document and an achievement
// from one test server.
type fixture struct {
	server *httptest.Server
	kp     *keys.KeyPair

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	kp, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	f := &fixture{kp: kp, routes: make(map[string]http.HandlerFunc)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		h, ok := f.routes[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.server.Close)

	ks, err := issuer.NewKeySet(kp.PublicKeyHex())
	require.NoError(t, err)

	profile, err := issuer.BuildProfile(f.server.URL, "Example Conf", "", ks)
	require.NoError(t, err)
	keyDoc, err := ks.Document(f.server.URL, kp.KeyID())
	require.NoError(t, err)

	f.route("/api/badge/issuer", jsonHandler(profile))
	f.route("/api/badge/keys/"+kp.KeyID(), jsonHandler(keyDoc))
	f.route("/achievements/speaker", jsonHandler(map[string]any{
		"id":   f.server.URL + "/achievements/speaker",
		"type": []string{"Achievement"},
		"name": "Speaker",
	}))
	return f
}

func (f *fixture) route(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = h
}

func (f *fixture) issuerID() string { return issuer.ProfileID(f.server.URL) }

func (f *fixture) verificationMethod() string {
	return issuer.VerificationMethodURL(f.server.URL, f.kp.KeyID())
}

func (f *fixture) credential(t *testing.T) *credential.Credential {
	t.Helper()
	c, err := credential.Create(credential.Config{
		ID:      "urn:uuid:0b8d2f3e-5c1a-4e4b-9d7e-2f9c8a6b1c01",
		Name:    "Speaker at Example Conf 2025",
		Issuer:  credential.IssuerConfig{ID: f.issuerID(), Name: "Example Conf", URL: f.server.URL},
		Subject: credential.SubjectConfig{ID: "mailto:speaker@example.org"},
		Achievement: credential.AchievementConfig{
			ID:                f.server.URL + "/achievements/speaker",
			Name:              "Speaker",
			Description:       "Presented a talk.",
			CriteriaNarrative: "Deliver an accepted talk.",
		},
		ValidFrom: testValidFrom,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) signedJSON(t *testing.T, c *credential.Credential) []byte {
	t.Helper()
	signed, err := credential.Sign(c, f.kp, f.verificationMethod(), testValidFrom)
	require.NoError(t, err)
	data, err := json.Marshal(signed)
	require.NoError(t, err)
	return data
}

func (f *fixture) pipeline(opts ...verify.Option) *verify.Pipeline {
	return verify.New(&verify.Config{Clock: func() time.Time { return testNow }}, opts...)
}

func jsonHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

func statusHandler(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(code) }
}

func statuses(r *verify.Report) map[string]verify.Status {
	out := make(map[string]verify.Status, len(r.Checks))
	for _, c := range r.Checks {
		out[c.Name] = c.Status
	}
	return out
}

func requireCheck(t *testing.T, r *verify.Report, name string) verify.Check {
	t.Helper()
	c, ok := r.Find(name)
	require.True(t, ok, "check %s missing from %v", name, r.Names())
	return c
}

func TestVerify_ValidCredential(t *testing.T) {
	f := newFixture(t)
	c := f.credential(t)

	report := f.pipeline().Verify(context.Background(), f.signedJSON(t, c))

	assert.Equal(t, allChecks, report.Names())
	for _, check := range report.Checks {
		assert.Equal(t, verify.StatusSuccess, check.Status, "%s: %s", check.Name, check.Message)
	}
	assert.True(t, report.Valid())
	require.NotNil(t, report.Credential)
	assert.Equal(t, c.ID, report.Credential["id"])
}

func TestVerify_CompactToken(t *testing.T) {
	f := newFixture(t)
	c := f.credential(t)

	token, err := credential.SignToken(c, credential.SigningConfig{
		Algorithm:          credential.AlgEdDSA,
		KeyPair:            f.kp,
		VerificationMethod: f.verificationMethod(),
	})
	require.NoError(t, err)

	for name, artifact := range map[string]string{
		"bare":        token,
		"json string": `"` + token + `"`,
	} {
		t.Run(name, func(t *testing.T) {
			report := f.pipeline().Verify(context.Background(), []byte(artifact))

			assert.Equal(t, allChecks, report.Names())
			for _, check := range report.Checks {
				assert.Equal(t, verify.StatusSuccess, check.Status, "%s: %s", check.Name, check.Message)
			}
			assert.NotContains(t, report.Credential, "iss")
			assert.NotContains(t, report.Credential, "nbf")
			assert.Equal(t, c.ID, report.Credential["id"])
		})
	}
}

func TestVerify_CompactToken_WrongKey(t *testing.T) {
	f := newFixture(t)
	other, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	token, err := credential.SignToken(f.credential(t), credential.SigningConfig{
		KeyPair:            other,
		VerificationMethod: f.verificationMethod(),
	})
	require.NoError(t, err)

	report := f.pipeline().Verify(context.Background(), []byte(token))
	assert.Equal(t, verify.StatusSuccess, statuses(report)[verify.CheckController])
	assert.Equal(t, verify.StatusError, statuses(report)[verify.CheckProof])
	assert.False(t, report.Valid())
}

func TestVerify_ExtractionIsAHardGate(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
	}{
		{name: "empty", artifact: "   "},
		{name: "text", artifact: "not a badge"},
		{name: "broken json", artifact: `{"id": `},
		{name: "trailing data", artifact: `{"id":"urn:x"} {"id":"urn:y"}`},
		{name: "array", artifact: `[{"id":"urn:x"}]`},
	}

	p := verify.New(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report := p.Verify(context.Background(), []byte(tc.artifact))

			require.Len(t, report.Checks, 1)
			assert.Equal(t, verify.CheckExtraction, report.Checks[0].Name)
			assert.Equal(t, verify.StatusError, report.Checks[0].Status)
			assert.Nil(t, report.Credential)
			assert.False(t, report.Valid())
		})
	}
}

func TestVerify_StructureAccumulatesProblems(t *testing.T) {
	f := newFixture(t)
	doc, err := f.credential(t).Document()
	require.NoError(t, err)

	doc["@context"] = []any{credential.ContextOpenBadgesV3}
	doc["type"] = "AchievementCredential"
	delete(doc, "credentialSubject")
	artifact, err := json.Marshal(doc)
	require.NoError(t, err)

	report := f.pipeline().Verify(context.Background(), artifact)

	structure := requireCheck(t, report, verify.CheckStructure)
	assert.Equal(t, verify.StatusError, structure.Status)
	assert.Contains(t, structure.Message, "@context")
	assert.Contains(t, structure.Message, "VerifiableCredential")
	assert.Contains(t, structure.Message, "credentialSubject")
	assert.Contains(t, structure.Message, "proof")
	assert.Len(t, structure.Details["problems"], 4)

	// Later stages still run.
	assert.Equal(t, allChecks, report.Names())
	assert.Equal(t, verify.StatusSuccess, statuses(report)[verify.CheckIssuer])
	assert.Equal(t, verify.StatusSuccess, statuses(report)[verify.CheckValidity])
}

func TestVerify_IssuerNon2xx(t *testing.T) {
	f := newFixture(t)
	f.route("/api/badge/issuer", statusHandler(http.StatusServiceUnavailable))

	report := f.pipeline().Verify(context.Background(), f.signedJSON(t, f.credential(t)))

	assert.Equal(t, allChecks, report.Names())
	got := statuses(report)
	assert.Equal(t, verify.StatusWarning, got[verify.CheckIssuer])
	assert.Equal(t, verify.StatusPending, got[verify.CheckController])
	assert.Equal(t, verify.StatusPending, got[verify.CheckProof])
	assert.Equal(t, verify.StatusSuccess, got[verify.CheckAchievement])
	assert.Equal(t, verify.StatusSuccess, got[verify.CheckValidity])
	assert.Contains(t, requireCheck(t, report, verify.CheckIssuer).Message, "503")
}

func TestVerify_IssuerTimeout(t *testing.T) {
	f := newFixture(t)
	f.route("/api/badge/issuer", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	p := verify.New(&verify.Config{
		FetchTimeout: 50 * time.Millisecond,
		Clock:        func() time.Time { return testNow },
	})
	report := p.Verify(context.Background(), f.signedJSON(t, f.credential(t)))

	issuerCheck := requireCheck(t, report, verify.CheckIssuer)
	assert.Equal(t, verify.StatusError, issuerCheck.Status)
	assert.Contains(t, issuerCheck.Message, "deadline exceeded")
	assert.NotEmpty(t, issuerCheck.Details["error"])
	assert.Equal(t, allChecks, report.Names())
}

func TestVerify_ControllerMismatchListsEveryIssue(t *testing.T) {
	f := newFixture(t)
	vm := f.verificationMethod()

	f.route("/api/badge/issuer", jsonHandler(map[string]any{
		"id":   f.issuerID(),
		"type": []string{"Profile"},
		"verificationMethod": []any{map[string]any{
			"id":         vm,
			"type":       "Multikey",
			"controller": "https://impostor.example/profile",
		}},
	}))
	f.route("/api/badge/keys/"+f.kp.KeyID(), jsonHandler(map[string]any{
		"id":         vm,
		"type":       "Multikey",
		"controller": "https://impostor.example",
	}))

	report := f.pipeline().Verify(context.Background(), f.signedJSON(t, f.credential(t)))

	controller := requireCheck(t, report, verify.CheckController)
	assert.Equal(t, verify.StatusError, controller.Status)
	issues, ok := controller.Details["issues"].([]string)
	require.True(t, ok)
	assert.Len(t, issues, 4)
	assert.Contains(t, controller.Message, "does not match issuer")
	assert.Contains(t, controller.Message, "not scoped under /api/badge/issuer")
	assert.Contains(t, controller.Message, "no publicKeyMultibase")

	assert.Equal(t, verify.StatusError, statuses(report)[verify.CheckProof])
	assert.Equal(t, allChecks, report.Names())
}

func TestVerify_VerificationMethodNotInProfile(t *testing.T) {
	f := newFixture(t)
	f.route("/api/badge/issuer", jsonHandler(map[string]any{
		"id":                 f.issuerID(),
		"type":               []string{"Profile"},
		"verificationMethod": []any{},
	}))

	report := f.pipeline().Verify(context.Background(), f.signedJSON(t, f.credential(t)))

	controller := requireCheck(t, report, verify.CheckController)
	assert.Equal(t, verify.StatusError, controller.Status)
	assert.Contains(t, controller.Message, "not listed in the issuer profile")
	// The key document still supplies the key.
	assert.Equal(t, verify.StatusSuccess, statuses(report)[verify.CheckProof])
}

func TestVerify_AssertionMethodReference(t *testing.T) {
	f := newFixture(t)
	f.route("/api/badge/issuer", jsonHandler(map[string]any{
		"id":              f.issuerID(),
		"type":            []string{"Profile"},
		"assertionMethod": []string{f.verificationMethod()},
	}))

	report := f.pipeline().Verify(context.Background(), f.signedJSON(t, f.credential(t)))
	assert.Equal(t, verify.StatusSuccess, statuses(report)[verify.CheckController])
	assert.True(t, report.Valid())
}

func TestVerify_ReferencedMethodRequiresIssuerProfilePath(t *testing.T) {
	f := newFixture(t)
	issuerID := f.server.URL + "/org"
	vm := f.verificationMethod()

	f.route("/org", jsonHandler(map[string]any{
		"id":              issuerID,
		"type":            []string{"Profile"},
		"assertionMethod": []string{vm},
	}))
	ks, err := issuer.NewKeySet(f.kp.PublicKeyHex())
	require.NoError(t, err)
	doc, err := ks.Document(f.server.URL, f.kp.KeyID())
	require.NoError(t, err)
	doc.Controller = issuerID
	f.route("/api/badge/keys/"+f.kp.KeyID(), jsonHandler(doc))

	c := f.credential(t)
	c.Issuer.ID = issuerID
	c.CredentialSubject.Achievement.Creator.ID = issuerID

	report := f.pipeline().Verify(context.Background(), f.signedJSON(t, c))

	controller := requireCheck(t, report, verify.CheckController)
	assert.Equal(t, verify.StatusError, controller.Status)
	assert.Contains(t, controller.Message, "not scoped under /api/badge/issuer")
	assert.False(t, report.Valid())
}

func TestVerify_TamperedCredential(t *testing.T) {
	f := newFixture(t)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(f.signedJSON(t, f.credential(t)), &doc))

	doc["credentialSubject"].(map[string]any)["id"] = "mailto:someone-else@example.org"
	artifact, err := json.Marshal(doc)
	require.NoError(t, err)

	report := f.pipeline().Verify(context.Background(), artifact)

	got := statuses(report)
	assert.Equal(t, verify.StatusSuccess, got[verify.CheckController])
	assert.Equal(t, verify.StatusError, got[verify.CheckProof])
	assert.False(t, report.Valid())
}

func TestVerify_UnexpectedCryptosuiteIsAWarning(t *testing.T) {
	f := newFixture(t)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(f.signedJSON(t, f.credential(t)), &doc))

	doc["proof"].([]any)[0].(map[string]any)["cryptosuite"] = "eddsa-jcs-2022"
	artifact, err := json.Marshal(doc)
	require.NoError(t, err)

	report := f.pipeline().Verify(context.Background(), artifact)

	proofCheck := requireCheck(t, report, verify.CheckProof)
	assert.Equal(t, verify.StatusWarning, proofCheck.Status)
	assert.Contains(t, proofCheck.Message, "eddsa-jcs-2022")
}

func TestVerify_AchievementUnreachableIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.route("/achievements/speaker", statusHandler(http.StatusNotFound))

	report := f.pipeline().Verify(context.Background(), f.signedJSON(t, f.credential(t)))

	assert.Equal(t, verify.StatusWarning, statuses(report)[verify.CheckAchievement])
	assert.True(t, report.Valid())
}

func TestVerify_NotYetValid(t *testing.T) {
	f := newFixture(t)
	p := verify.New(&verify.Config{Clock: func() time.Time { return testValidFrom.Add(-time.Hour) }})

	report := p.Verify(context.Background(), f.signedJSON(t, f.credential(t)))

	validity := requireCheck(t, report, verify.CheckValidity)
	assert.Equal(t, verify.StatusWarning, validity.Status)
	assert.Contains(t, validity.Message, "2025-06-01T10:00:00Z")
}

func TestVerify_ExpiredIsNotChecked(t *testing.T) {
	f := newFixture(t)
	c := f.credential(t)
	c.ValidUntil = "2025-06-02T00:00:00Z"

	report := f.pipeline().Verify(context.Background(), f.signedJSON(t, c))
	assert.Equal(t, verify.StatusSuccess, statuses(report)[verify.CheckValidity])
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (*verify.Document, error) {
	args := m.Called(ctx, url)
	doc, _ := args.Get(0).(*verify.Document)
	return doc, args.Error(1)
}

func TestVerify_FetchErrorIsSurfaced(t *testing.T) {
	kp, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	const (
		issuerURL      = "https://2025.example.org"
		achievementURL = issuerURL + "/achievements/speaker"
	)
	c, err := credential.Create(credential.Config{
		ID:          "urn:uuid:1",
		Issuer:      credential.IssuerConfig{ID: issuer.ProfileID(issuerURL)},
		Subject:     credential.SubjectConfig{ID: "mailto:speaker@example.org"},
		Achievement: credential.AchievementConfig{ID: achievementURL, Name: "Speaker"},
		ValidFrom:   testValidFrom,
	})
	require.NoError(t, err)
	signed, err := credential.Sign(c, kp, issuer.VerificationMethodURL(issuerURL, kp.KeyID()), testValidFrom)
	require.NoError(t, err)
	artifact, err := json.Marshal(signed)
	require.NoError(t, err)

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, issuer.ProfileID(issuerURL)).
		Return(nil, errors.New("dial tcp: connection refused"))
	fetcher.On("Fetch", mock.Anything, achievementURL).
		Return(&verify.Document{URL: achievementURL, StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil)

	report := verify.New(nil, verify.WithFetcher(fetcher)).Verify(context.Background(), artifact)

	issuerCheck := requireCheck(t, report, verify.CheckIssuer)
	assert.Equal(t, verify.StatusError, issuerCheck.Status)
	assert.Contains(t, issuerCheck.Message, "connection refused")
	assert.Equal(t, verify.StatusSuccess, statuses(report)[verify.CheckAchievement])
	fetcher.AssertExpectations(t)
	fetcher.AssertNumberOfCalls(t, "Fetch", 2)
}

// panicFetcher panics for one URL and delegates the rest.
type panicFetcher struct {
	url  string
	next verify.Fetcher
}

func (f panicFetcher) Fetch(ctx context.Context, url string) (*verify.Document, error) {
	if url == f.url {
		panic("boom")
	}
	return f.next.Fetch(ctx, url)
}

func TestVerify_TaskFaultDoesNotAffectSiblings(t *testing.T) {
	f := newFixture(t)
	fetcher := panicFetcher{url: f.server.URL + "/achievements/speaker", next: verify.NewHTTPFetcher(nil, "")}

	report := f.pipeline(verify.WithFetcher(fetcher)).Verify(context.Background(), f.signedJSON(t, f.credential(t)))

	got := statuses(report)
	assert.Equal(t, verify.StatusError, got[verify.CheckAchievement])
	assert.Equal(t, verify.StatusSuccess, got[verify.CheckIssuer])
	assert.Equal(t, verify.StatusSuccess, got[verify.CheckController])
	assert.Equal(t, verify.StatusSuccess, got[verify.CheckProof])
	assert.Equal(t, allChecks, report.Names())
}

type staticExtractor struct{ doc map[string]any }

func (e staticExtractor) Extract(context.Context, []byte) (*verify.Extracted, error) {
	return &verify.Extracted{Document: e.doc, Format: verify.FormatJSON}, nil
}

func TestVerify_CustomExtractor(t *testing.T) {
	f := newFixture(t)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(f.signedJSON(t, f.credential(t)), &doc))

	report := f.pipeline(verify.WithExtractor(staticExtractor{doc: doc})).Verify(context.Background(), []byte("PNG..."))
	assert.True(t, report.Valid())
}

func TestVerify_Metrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	m := verify.NewMetrics(reg)
	p := f.pipeline(verify.WithMetrics(m))

	p.Verify(context.Background(), f.signedJSON(t, f.credential(t)))
	p.Verify(context.Background(), []byte("garbage"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.VerificationCounter().WithLabelValues("valid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.VerificationCounter().WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CheckCounter().WithLabelValues(verify.CheckExtraction, "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CheckCounter().WithLabelValues(verify.CheckProof, "success")))
}

func TestHTTPFetcher_Headers(t *testing.T) {
	var accept, userAgent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		userAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"name":"teapot"}`))
	}))
	defer ts.Close()

	doc, err := verify.NewHTTPFetcher(nil, "").Fetch(context.Background(), ts.URL)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(accept, "application/ld+json"))
	assert.Equal(t, verify.DefaultUserAgent, userAgent)
	assert.Equal(t, http.StatusTeapot, doc.StatusCode)
	assert.False(t, doc.OK())
	assert.Equal(t, "teapot", doc.Get("name").String())
}

func TestHTTPFetcher_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := verify.NewHTTPFetcher(nil, "").Fetch(context.Background(), url)
	assert.Error(t, err)
}
