package credential

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
)

//go:embed schema/achievement_credential.json
var achievementCredentialSchema []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewBytesLoader(achievementCredentialSchema))
	if err != nil {
		return nil, fmt.Errorf("compile credential schema: %w", err)
	}
	return schema, nil
})

// ValidationResult is the outcome of a schema check.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Err returns nil for a valid result and a SchemaValidation error listing
// every violation otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return badgeerr.New(badgeerr.KindSchemaValidation, strings.Join(r.Errors, "; "))
}

// Validate checks v against the AchievementCredential schema. v may be a
// *Credential, a generic document or raw JSON bytes.
func Validate(v any) ValidationResult {
	schema, err := compiledSchema()
	if err != nil {
		return ValidationResult{Errors: []string{err.Error()}}
	}

	var loader gojsonschema.JSONLoader
	switch doc := v.(type) {
	case []byte:
		loader = gojsonschema.NewBytesLoader(doc)
	default:
		loader = gojsonschema.NewGoLoader(doc)
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return ValidationResult{Errors: []string{fmt.Sprintf("loader error: %v", err)}}
	}
	if result.Valid() {
		return ValidationResult{Valid: true}
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, re.String())
	}
	return ValidationResult{Errors: errs}
}
