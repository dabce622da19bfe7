package issuer

import (
	"strings"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
	"github.com/eventbadges/badge-engine/pkg/credential"
	"github.com/eventbadges/badge-engine/pkg/multikey"
)

// ProfilePath is where an issuer publishes its profile, relative to the
// issuer URL. Verification methods must be controlled by a profile id
// ending in this path.
const ProfilePath = "/api/badge/issuer"

// ProfileContext is the JSON-LD context of an issuer profile.
var ProfileContext = []string{
	credential.ContextCredentialsV2,
	credential.ContextOpenBadgesV3,
	"https://w3id.org/security/multikey/v1",
}

// Profile is the issuer profile document.
type Profile struct {
	Context            []string            `json:"@context"`
	ID                 string              `json:"id"`
	Type               []string            `json:"type"`
	Name               string              `json:"name"`
	URL                string              `json:"url"`
	Email              string              `json:"email,omitempty"`
	VerificationMethod []multikey.Document `json:"verificationMethod"`
	AssertionMethod    []string            `json:"assertionMethod"`
}

// ProfileID returns the profile id for an issuer URL.
func ProfileID(issuerURL string) string {
	return strings.TrimRight(issuerURL, "/") + ProfilePath
}

// OriginOf returns the issuer URL a profile id was derived from, or "" when
// profileID does not end in ProfilePath.
func OriginOf(profileID string) string {
	if !strings.HasSuffix(profileID, ProfilePath) {
		return ""
	}
	return strings.TrimSuffix(profileID, ProfilePath)
}

// VerificationMethodURL returns the URL at which keyID is published.
func VerificationMethodURL(issuerURL, keyID string) string {
	return multikey.DocumentID(strings.TrimRight(issuerURL, "/"), keyID)
}

// BuildProfile assembles the issuer profile listing every key in ks. The
// embedded verification methods are controlled by the profile id.
func BuildProfile(issuerURL, name, email string, ks *KeySet) (*Profile, error) {
	if ks == nil || ks.Len() == 0 {
		return nil, badgeerr.New(badgeerr.KindKeyConfiguration, "issuer profile needs at least one key")
	}

	base := strings.TrimRight(issuerURL, "/")
	docs, err := ks.Documents(base)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		Context: append([]string(nil), ProfileContext...),
		ID:      ProfileID(base),
		Type:    []string{credential.TypeProfile},
		Name:    name,
		URL:     base,
		Email:   email,
	}
	for _, doc := range docs {
		vm := *doc
		vm.Context = nil
		vm.Controller = p.ID
		p.VerificationMethod = append(p.VerificationMethod, vm)
		p.AssertionMethod = append(p.AssertionMethod, vm.ID)
	}
	return p, nil
}
