package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eventbadges/badge-engine/internal/config"
	"github.com/eventbadges/badge-engine/pkg/credential"
	"github.com/eventbadges/badge-engine/pkg/issuer"
	"github.com/eventbadges/badge-engine/pkg/keys"
	"github.com/eventbadges/badge-engine/pkg/verify"
)

type issueOptions struct {
	ID        string
	Name      string
	IssuerURL string
	Subject   string

	AchievementID   string
	AchievementName string
	Description     string
	Criteria        string
	Image           string

	ValidFor time.Duration

	Token        bool
	Algorithm    string
	ES256KeyFile string
}

var (
	issueOpts  issueOptions
	verifyJSON bool
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Issue and verify AchievementCredentials",
}

var credentialIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed AchievementCredential",
	Long: `Build, validate and sign an AchievementCredential.

By default the credential is printed as JSON carrying a Data Integrity proof.
With --token it is printed as a compact JWS instead.`,
	Example: `  badgectl credential issue \
    --subject mailto:speaker@example.org \
    --achievement-id https://2025.example.org/achievements/speaker \
    --achievement-name Speaker \
    --criteria "Gave a talk at the conference."

  # Compact token, valid for a year
  badgectl credential issue --token --valid-for 8760h ...`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		kp, err := keys.LoadKeyPair(cfg.KeyProvider())
		if err != nil {
			return err
		}
		issuerURL, err := resolveIssuerURL(cfg, issueOpts.IssuerURL)
		if err != nil {
			return err
		}

		out, err := issueCredential(issueOpts, kp, issuerURL, cfg.IssuerName, cfg.IssuerEmail, time.Now())
		if err != nil {
			return err
		}

		fmt.Println(out)
		fmt.Fprintf(os.Stderr, "✅ Credential issued by %s with key %s\n", issuer.ProfileID(issuerURL), kp.KeyID())
		return nil
	},
}

// issueCredential returns the signed credential JSON, or the compact token
// when opts.Token is set.
func issueCredential(opts issueOptions, kp *keys.KeyPair, issuerURL, issuerName, issuerEmail string, now time.Time) (string, error) {
	// 1. Build
	id := opts.ID
	if id == "" {
		id = "urn:uuid:" + uuid.NewString()
	}
	cfg := credential.Config{
		ID:   id,
		Name: opts.Name,
		Issuer: credential.IssuerConfig{
			ID:    issuer.ProfileID(issuerURL),
			Name:  issuerName,
			URL:   issuerURL,
			Email: issuerEmail,
		},
		Subject: credential.SubjectConfig{ID: opts.Subject},
		Achievement: credential.AchievementConfig{
			ID:                opts.AchievementID,
			Name:              opts.AchievementName,
			Description:       opts.Description,
			CriteriaNarrative: opts.Criteria,
			Image:             opts.Image,
		},
		ValidFrom: now,
	}
	if opts.ValidFor > 0 {
		until := now.Add(opts.ValidFor)
		cfg.ValidUntil = &until
	}

	c, err := credential.Create(cfg)
	if err != nil {
		return "", err
	}

	// 2. Validate
	if err := credential.Validate(c).Err(); err != nil {
		return "", err
	}

	// 3. Sign
	vm := issuer.VerificationMethodURL(issuerURL, kp.KeyID())
	if opts.Token {
		sc := credential.SigningConfig{
			Algorithm:          credential.Algorithm(opts.Algorithm),
			KeyPair:            kp,
			VerificationMethod: vm,
		}
		if sc.Algorithm == credential.AlgES256 {
			jwk, err := loadECKey(opts.ES256KeyFile)
			if err != nil {
				return "", err
			}
			sc.ECDSAKey = jwk.Key.(*ecdsa.PrivateKey)
			sc.VerificationMethod = jwk.KeyID
		}
		return credential.SignToken(c, sc)
	}

	signed, err := credential.Sign(c, kp, vm, now)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// loadECKey reads a P-256 private key JWK carrying a kid.
func loadECKey(path string) (*jose.JSONWebKey, error) {
	if path == "" {
		return nil, errors.New("ES256 signing needs --es256-key")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("failed to parse JWK: %w", err)
	}
	key, ok := jwk.Key.(*ecdsa.PrivateKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, errors.New("ES256 signing needs a P-256 private key JWK")
	}
	// The Ed25519 verification method cannot verify an ES256 token.
	if jwk.KeyID == "" {
		return nil, errors.New("ES256 key JWK needs a kid naming its verification method")
	}
	return &jwk, nil
}

var credentialVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify a credential or compact token",
	Long: `Run the verification pipeline over a credential JSON document or a compact
token read from a file or stdin. Exits non-zero when any check fails.`,
	Example: `  badgectl credential verify badge.json
  cat badge.jwt | badgectl credential verify --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		artifact, err := readInput(args)
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		p := verify.New(&verify.Config{FetchTimeout: cfg.FetchTimeout}, verify.WithLogger(logger))
		report := p.Verify(cmd.Context(), artifact)

		if verifyJSON {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			renderReport(os.Stdout, report)
		}

		if !report.Valid() {
			return errors.New("credential verification failed")
		}
		return nil
	},
}

var statusIcons = map[verify.Status]string{
	verify.StatusSuccess: "✅",
	verify.StatusWarning: "⚠️ ",
	verify.StatusError:   "❌",
	verify.StatusPending: "⏳",
}

func renderReport(w io.Writer, r *verify.Report) {
	for _, c := range r.Checks {
		fmt.Fprintf(w, "%s %-12s %s\n", statusIcons[c.Status], c.Name, c.Message)
	}
	if r.Valid() {
		fmt.Fprintln(w, "\nResult: VALID")
	} else {
		fmt.Fprintln(w, "\nResult: INVALID")
	}
}

func init() {
	rootCmd.AddCommand(credentialCmd)
	credentialCmd.AddCommand(credentialIssueCmd)
	credentialCmd.AddCommand(credentialVerifyCmd)

	f := credentialIssueCmd.Flags()
	f.StringVar(&issueOpts.ID, "id", "", "Credential id (default: random urn:uuid)")
	f.StringVar(&issueOpts.Name, "name", "", "Credential name")
	f.StringVar(&issueOpts.IssuerURL, "issuer-url", "", "Issuer URL (default: first of $BADGE_ISSUER_DOMAINS)")
	f.StringVar(&issueOpts.Subject, "subject", "", "Recipient id, e.g. mailto:someone@example.org")
	f.StringVar(&issueOpts.AchievementID, "achievement-id", "", "Achievement id")
	f.StringVar(&issueOpts.AchievementName, "achievement-name", "", "Achievement name")
	f.StringVar(&issueOpts.Description, "description", "", "Achievement description")
	f.StringVar(&issueOpts.Criteria, "criteria", "", "Criteria narrative")
	f.StringVar(&issueOpts.Image, "image", "", "Badge image URL")
	f.DurationVar(&issueOpts.ValidFor, "valid-for", 0, "Validity period; no validUntil when zero")
	f.BoolVar(&issueOpts.Token, "token", false, "Emit a compact JWS instead of JSON with a proof")
	f.StringVar(&issueOpts.Algorithm, "alg", string(credential.AlgEdDSA), "Token algorithm (EdDSA, ES256)")
	f.StringVar(&issueOpts.ES256KeyFile, "es256-key", "", "P-256 private key JWK with a kid, for ES256 tokens")
	_ = credentialIssueCmd.MarkFlagRequired("subject")
	_ = credentialIssueCmd.MarkFlagRequired("achievement-id")
	_ = credentialIssueCmd.MarkFlagRequired("achievement-name")
	_ = credentialIssueCmd.MarkFlagRequired("criteria")

	credentialVerifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the full report as JSON")
}
