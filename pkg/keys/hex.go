package keys

import (
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/eventbadges/badge-engine/pkg/badgeerr"
)

// HexToBytes decodes a hex string. A leading "0x" and any whitespace are
// ignored. Odd lengths and non-hex characters yield an encoding error.
func HexToBytes(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}

	if len(s)%2 != 0 {
		return nil, badgeerr.Newf(badgeerr.KindEncoding, "hex string has odd length %d", len(s))
	}
	for i, c := range s {
		if !isHexDigit(c) {
			return nil, badgeerr.Newf(badgeerr.KindEncoding, "invalid hex character %q at position %d", c, i)
		}
	}

	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, badgeerr.Wrap(badgeerr.KindEncoding, "failed to decode hex", err)
	}
	return out, nil
}

// BytesToHex encodes b as lowercase hex, two characters per byte.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
