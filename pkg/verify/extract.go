package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/eventbadges/badge-engine/pkg/credential"
)

// Format is the serialization a credential arrived in.
type Format string

// Supported artifact formats.
const (
	FormatJSON    Format = "json"
	FormatCompact Format = "compact"
)

// Extracted is a candidate credential pulled out of an artifact.
type Extracted struct {
	// Document is the credential with token registered claims removed.
	Document map[string]any
	Format   Format

	// Token, KeyID and Claims are set for compact tokens. Claims is the
	// full, unverified payload.
	Token  string
	KeyID  string
	Claims map[string]any
}

// Extractor turns a raw badge artifact into a candidate credential.
// Implementations that read credentials embedded in badge artwork plug in
// here.
type Extractor interface {
	Extract(ctx context.Context, artifact []byte) (*Extracted, error)
}

// ArtifactExtractor accepts a credential JSON object, a compact token, or a
// JSON string holding a compact token.
type ArtifactExtractor struct{}

// Extract implements Extractor.
func (ArtifactExtractor) Extract(_ context.Context, artifact []byte) (*Extracted, error) {
	text := bytes.TrimSpace(artifact)
	if len(text) == 0 {
		return nil, errors.New("artifact is empty")
	}

	if text[0] == '"' {
		var s string
		if err := json.Unmarshal(text, &s); err != nil {
			return nil, fmt.Errorf("artifact is not a valid JSON string: %w", err)
		}
		text = bytes.TrimSpace([]byte(s))
	}

	switch {
	case len(text) > 0 && text[0] == '{':
		doc, err := decodeObject(text)
		if err != nil {
			return nil, err
		}
		return &Extracted{Document: doc, Format: FormatJSON}, nil

	case credential.IsCompactToken(string(text)):
		token := string(text)
		header, claims, err := credential.ParseToken(token)
		if err != nil {
			return nil, err
		}
		return &Extracted{
			Document: credential.StripRegisteredClaims(claims),
			Format:   FormatCompact,
			Token:    token,
			KeyID:    header.KeyID,
			Claims:   claims,
		}, nil

	default:
		return nil, errors.New("artifact is neither a credential object nor a compact token")
	}
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("artifact is not valid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("artifact has trailing data after the credential object")
	}
	return doc, nil
}
