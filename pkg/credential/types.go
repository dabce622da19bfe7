// Package credential builds, signs, validates and tokenises OpenBadges 3.0
// AchievementCredentials.
package credential

import (
	"encoding/json"
	"fmt"

	"github.com/eventbadges/badge-engine/pkg/proof"
)

// JSON-LD contexts every AchievementCredential carries.
const (
	ContextCredentialsV2 = "https://www.w3.org/ns/credentials/v2"
	ContextOpenBadgesV3  = "https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json"
)

// Type names used in credentials.
const (
	TypeVerifiableCredential  = "VerifiableCredential"
	TypeAchievementCredential = "AchievementCredential"
	TypeAchievementSubject    = "AchievementSubject"
	TypeAchievement           = "Achievement"
	TypeProfile               = "Profile"
	TypeImage                 = "Image"
)

// Credential is an OpenBadges 3.0 AchievementCredential.
type Credential struct {
	Context           []string      `json:"@context"`
	ID                string        `json:"id"`
	Type              []string      `json:"type"`
	Name              string        `json:"name,omitempty"`
	Issuer            Profile       `json:"issuer"`
	ValidFrom         string        `json:"validFrom"`
	ValidUntil        string        `json:"validUntil,omitempty"`
	CredentialSubject Subject       `json:"credentialSubject"`
	Proof             []proof.Proof `json:"proof,omitempty"`
}

// Profile identifies an issuer. It is used for the credential's issuer and
// for an achievement's creator.
type Profile struct {
	ID    string   `json:"id"`
	Type  []string `json:"type,omitempty"`
	Name  string   `json:"name,omitempty"`
	URL   string   `json:"url,omitempty"`
	Email string   `json:"email,omitempty"`
}

// UnmarshalJSON accepts either a profile object or a bare id string.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*p = Profile{ID: id}
		return nil
	}

	type plain Profile
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("profile must be an object or an id string: %w", err)
	}
	*p = Profile(out)
	return nil
}

// Subject is the credentialSubject of an AchievementCredential.
type Subject struct {
	ID          string      `json:"id,omitempty"`
	Type        []string    `json:"type"`
	Achievement Achievement `json:"achievement"`
}

// Achievement describes what was accomplished.
//
// Attribution is expressed through Creator. An achievement has no issuer:
// the credential's top-level issuer is a different relationship.
type Achievement struct {
	ID          string   `json:"id"`
	Type        []string `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Criteria    Criteria `json:"criteria"`
	Image       *Image   `json:"image,omitempty"`
	Creator     *Profile `json:"creator,omitempty"`
}

// Criteria describes how the achievement is earned.
type Criteria struct {
	ID        string `json:"id,omitempty"`
	Narrative string `json:"narrative,omitempty"`
}

// Image references badge artwork.
type Image struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Caption string `json:"caption,omitempty"`
}

// Decode parses credential JSON.
func Decode(data []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	return &c, nil
}

// FromDocument converts a generic JSON document into a Credential.
func FromDocument(doc map[string]any) (*Credential, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return Decode(data)
}

// Document returns c as a generic JSON document.
func (c *Credential) Document() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	return doc, nil
}

// Unsigned returns a copy of c without proofs.
func (c *Credential) Unsigned() *Credential {
	out := *c
	out.Proof = nil
	return &out
}
