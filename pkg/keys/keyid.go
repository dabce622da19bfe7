package keys

import (
	"net"
	"strings"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
)

// KeyIDPrefix starts every key identifier.
const KeyIDPrefix = "key-"

const keyIDHexLen = 8

// DeriveKeyID returns "key-" followed by the first 8 hex characters of the
// public key.
func DeriveKeyID(publicKeyHex string) (string, error) {
	pub := strings.ToLower(strings.TrimPrefix(publicKeyHex, "0x"))
	if len(pub) < keyIDHexLen {
		return "", badgeerr.Newf(badgeerr.KindKeyValidation, "public key hex too short for key id: %d characters", len(pub))
	}
	if _, err := HexToBytes(pub[:keyIDHexLen]); err != nil {
		return "", badgeerr.Wrap(badgeerr.KindKeyValidation, "public key is not hex", err)
	}
	return KeyIDPrefix + pub[:keyIDHexLen], nil
}

// ValidateKeyID checks that keyID has the form key-<8 hex> and that the
// suffix matches the start of publicKeyHex.
func ValidateKeyID(keyID, publicKeyHex string) error {
	if !strings.HasPrefix(keyID, KeyIDPrefix) {
		return badgeerr.Newf(badgeerr.KindKeyValidation, "key id %q must start with %q", keyID, KeyIDPrefix)
	}

	suffix := keyID[len(KeyIDPrefix):]
	if len(suffix) != keyIDHexLen {
		return badgeerr.Newf(badgeerr.KindKeyValidation, "key id %q must have %d hex characters after %q", keyID, keyIDHexLen, KeyIDPrefix)
	}
	if _, err := HexToBytes(suffix); err != nil {
		return badgeerr.Wrap(badgeerr.KindKeyValidation, "key id suffix is not hex", err)
	}

	pub := strings.ToLower(strings.TrimPrefix(publicKeyHex, "0x"))
	if len(pub) < keyIDHexLen || !strings.EqualFold(suffix, pub[:keyIDHexLen]) {
		return badgeerr.Newf(badgeerr.KindKeyValidation, "key id %q does not match public key prefix", keyID)
	}
	return nil
}

// BuildIssuerURL returns the issuer origin for the first configured domain.
// Wildcard domains are rejected: an issuer identity is one concrete origin.
func BuildIssuerURL(domains []string) (string, error) {
	if len(domains) == 0 {
		return "", badgeerr.New(badgeerr.KindKeyConfiguration, "no issuer domain configured")
	}

	domain := strings.TrimSpace(domains[0])
	if domain == "" {
		return "", badgeerr.New(badgeerr.KindKeyConfiguration, "issuer domain is empty")
	}
	if strings.Contains(domain, "*") {
		return "", badgeerr.Newf(badgeerr.KindKeyConfiguration, "issuer domain %q must not contain a wildcard", domain)
	}

	domain = strings.TrimSuffix(domain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain, nil
	}

	scheme := "https"
	if isLoopback(domain) {
		scheme = "http"
	}
	return scheme + "://" + domain, nil
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
