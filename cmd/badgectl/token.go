package main

import (
	"crypto"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/spf13/cobra"

	"github.com/eventbadges/badge-engine/internal/config"
	"github.com/eventbadges/badge-engine/pkg/credential"
	"github.com/eventbadges/badge-engine/pkg/keys"
)

var (
	tokenPublicHex string
	tokenJWKFile   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect compact credential tokens",
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify a compact token offline and print the credential",
	Long: `Verify the signature of a compact token against a known key and print the
embedded credential. No network lookups are made.

The key is taken from --jwk, then --public-key, then $BADGE_PUBLIC_KEY.`,
	Example: `  badgectl token verify badge.jwt
  badgectl token verify --jwk issuer.pub.jwk badge.jwt`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := readInput(args)
		if err != nil {
			return err
		}
		token := strings.TrimSpace(string(data))

		pub, err := resolveTokenKey(tokenJWKFile, tokenPublicHex)
		if err != nil {
			return err
		}

		hdr, _, err := credential.ParseToken(token)
		if err != nil {
			return err
		}
		c, err := credential.VerifyToken(token, pub)
		if err != nil {
			return err
		}

		if err := printJSON(c); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✅ %s token signed by %s\n", hdr.Algorithm, hdr.KeyID)
		return nil
	},
}

func resolveTokenKey(jwkFile, publicHex string) (crypto.PublicKey, error) {
	if jwkFile != "" {
		data, err := os.ReadFile(jwkFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		var jwk jose.JSONWebKey
		if err := json.Unmarshal(data, &jwk); err != nil {
			return nil, fmt.Errorf("failed to parse JWK: %w", err)
		}
		return jwk.Public().Key, nil
	}

	if publicHex != "" {
		return keys.HexToBytes(publicHex)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg.KeyProvider().LoadPublicKey()
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)

	tokenVerifyCmd.Flags().StringVar(&tokenPublicHex, "public-key", "", "Hex-encoded Ed25519 public key")
	tokenVerifyCmd.Flags().StringVar(&tokenJWKFile, "jwk", "", "Path to a JWK holding the verification key")
}
