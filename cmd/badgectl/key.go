package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/spf13/cobra"

	"github.com/eventbadges/badge-engine/internal/config"
	"github.com/eventbadges/badge-engine/pkg/keys"
	"github.com/eventbadges/badge-engine/pkg/multikey"
)

var (
	keyOutJWK    string
	keyPublicHex string
	keyIssuerURL string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage issuer keys",
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new Ed25519 key pair",
	Long: `Generate a new Ed25519 key pair for signing credentials.

The key pair is printed as environment assignments, ready to be appended to
a .env file. The key id derived from the public key is printed to stderr.`,
	Example: `  # Append a fresh key pair to .env
  badgectl key gen >> .env

  # Also save the private key as a JWK
  badgectl key gen --out-jwk issuer.key.jwk`,
	RunE: func(_ *cobra.Command, _ []string) error {
		// 1. Generate key pair
		kp, err := keys.GenerateKeyPair()
		if err != nil {
			return err
		}

		// 2. Print as environment assignments
		fmt.Printf("%s=%s\n", config.EnvPrivateKey, keys.BytesToHex(kp.Seed()))
		fmt.Printf("%s=%s\n", config.EnvPublicKey, kp.PublicKeyHex())
		fmt.Fprintf(os.Stderr, "🔑 Key ID: %s\n", kp.KeyID())

		// 3. Optionally save a JWK
		if keyOutJWK == "" {
			return nil
		}
		jwk := jose.JSONWebKey{
			Key:       kp.PrivateKey(),
			KeyID:     kp.KeyID(),
			Algorithm: string(jose.EdDSA),
			Use:       "sig",
		}
		data, err := json.MarshalIndent(jwk, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(keyOutJWK, data, 0600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✅ Private key saved to %s\n", keyOutJWK)
		return nil
	},
}

var keyDocCmd = &cobra.Command{
	Use:   "doc",
	Short: "Print the Multikey document for the configured public key",
	Example: `  badgectl key doc --issuer-url https://2025.example.org
  badgectl key doc --public-key 6c4cf79d... --issuer-url https://2025.example.org`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		pubHex := keyPublicHex
		if pubHex == "" {
			pub, err := cfg.KeyProvider().LoadPublicKey()
			if err != nil {
				return err
			}
			pubHex = keys.BytesToHex(pub)
		}

		issuerURL, err := resolveIssuerURL(cfg, keyIssuerURL)
		if err != nil {
			return err
		}

		doc, err := keyDocument(pubHex, issuerURL)
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

func keyDocument(publicKeyHex, issuerURL string) (*multikey.Document, error) {
	keyID, err := keys.DeriveKeyID(publicKeyHex)
	if err != nil {
		return nil, err
	}
	return multikey.BuildDocument(publicKeyHex, keyID, issuerURL)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenCmd)
	keyCmd.AddCommand(keyDocCmd)

	keyGenCmd.Flags().StringVar(&keyOutJWK, "out-jwk", "", "Output path for the private key as a JWK (optional)")

	keyDocCmd.Flags().StringVar(&keyPublicHex, "public-key", "", "Hex-encoded public key (default: $BADGE_PUBLIC_KEY)")
	keyDocCmd.Flags().StringVar(&keyIssuerURL, "issuer-url", "", "Issuer URL (default: first of $BADGE_ISSUER_DOMAINS)")
}
