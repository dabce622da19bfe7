// Package config loads the badge engine's settings from the environment.
//
// .env and .env.local are read when present. Variables already set in the
// process environment take precedence over both files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/eventbadges/badge-engine/pkg/keys"
)

// Environment variable names.
const (
	EnvEnvironment   = "BADGE_ENV"
	EnvHTTPAddress   = "BADGE_HTTP_ADDR"
	EnvIssuerDomains = "BADGE_ISSUER_DOMAINS"
	EnvIssuerName    = "BADGE_ISSUER_NAME"
	EnvIssuerEmail   = "BADGE_ISSUER_EMAIL"
	EnvFetchTimeout  = "BADGE_FETCH_TIMEOUT_SECONDS"
	EnvPrivateKey    = keys.DefaultPrivateKeyVar
	EnvPublicKey     = keys.DefaultPublicKeyVar
)

const (
	defaultEnvironment  = "dev"
	defaultHTTPAddress  = ":8080"
	defaultIssuerName   = "Badge Issuer"
	defaultFetchTimeout = 5 * time.Second
)

// Config captures environment-driven settings.
type Config struct {
	Env           string
	HTTPAddress   string
	IssuerDomains []string
	IssuerName    string
	IssuerEmail   string
	FetchTimeout  time.Duration

	lookup func(string) (string, bool)
}

var dotenvOnce sync.Once

func loadDotEnv() {
	dotenvOnce.Do(func() {
		for _, name := range []string{".env", ".env.local"} {
			if _, err := os.Stat(name); err != nil {
				continue
			}
			if err := godotenv.Load(name); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", name, err)
			}
		}
	})
}

// Load reads .env files and the process environment.
func Load() (Config, error) {
	loadDotEnv()
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from lookup. Key material is not read here; it
// is resolved on demand through KeyProvider.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	get := func(name, fallback string) string {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := Config{
		Env:           strings.ToLower(get(EnvEnvironment, defaultEnvironment)),
		HTTPAddress:   get(EnvHTTPAddress, defaultHTTPAddress),
		IssuerDomains: splitList(get(EnvIssuerDomains, "")),
		IssuerName:    get(EnvIssuerName, defaultIssuerName),
		IssuerEmail:   get(EnvIssuerEmail, ""),
		FetchTimeout:  defaultFetchTimeout,
		lookup:        lookup,
	}

	if raw := get(EnvFetchTimeout, ""); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q must be a positive number of seconds", EnvFetchTimeout, raw)
		}
		cfg.FetchTimeout = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}

// KeyProvider returns a provider reading the signing keys from the same
// source the config was loaded from.
func (c Config) KeyProvider() keys.KeyProvider {
	lookup := c.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &keys.EnvProvider{
		PrivateKeyVar: EnvPrivateKey,
		PublicKeyVar:  EnvPublicKey,
		Lookup:        lookup,
	}
}

// IssuerURL returns the issuer origin derived from the first configured
// domain.
func (c Config) IssuerURL() (string, error) {
	return keys.BuildIssuerURL(c.IssuerDomains)
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
