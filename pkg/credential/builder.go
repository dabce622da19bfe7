package credential

import (
	"errors"
	"fmt"
	"time"
)

// Config is the input to Create.
type Config struct {
	ID   string
	Name string

	Issuer      IssuerConfig
	Subject     SubjectConfig
	Achievement AchievementConfig

	ValidFrom  time.Time
	ValidUntil *time.Time
}

// IssuerConfig describes the issuing organisation.
type IssuerConfig struct {
	ID    string
	Name  string
	URL   string
	Email string
}

// SubjectConfig describes the recipient.
type SubjectConfig struct {
	ID   string
	Type []string
}

// AchievementConfig describes the achievement being recognised.
type AchievementConfig struct {
	ID                string
	Name              string
	Description       string
	CriteriaNarrative string
	Image             string
}

// Create assembles an unsigned AchievementCredential from cfg.
//
// The achievement's attribution is placed under "creator". Do not rename it
// to "issuer" to mirror the top-level field; the schema rejects that.
func Create(cfg Config) (*Credential, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	issuer := Profile{
		ID:    cfg.Issuer.ID,
		Type:  []string{TypeProfile},
		Name:  cfg.Issuer.Name,
		URL:   cfg.Issuer.URL,
		Email: cfg.Issuer.Email,
	}
	creator := issuer

	subjectType := cfg.Subject.Type
	if len(subjectType) == 0 {
		subjectType = []string{TypeAchievementSubject}
	}

	achievement := Achievement{
		ID:          cfg.Achievement.ID,
		Type:        []string{TypeAchievement},
		Name:        cfg.Achievement.Name,
		Description: cfg.Achievement.Description,
		Criteria:    Criteria{Narrative: cfg.Achievement.CriteriaNarrative},
		Creator:     &creator,
	}
	if cfg.Achievement.Image != "" {
		achievement.Image = &Image{ID: cfg.Achievement.Image, Type: TypeImage}
	}

	c := &Credential{
		Context:   []string{ContextCredentialsV2, ContextOpenBadgesV3},
		ID:        cfg.ID,
		Type:      []string{TypeVerifiableCredential, TypeAchievementCredential},
		Name:      cfg.Name,
		Issuer:    issuer,
		ValidFrom: FormatTime(cfg.ValidFrom),
		CredentialSubject: Subject{
			ID:          cfg.Subject.ID,
			Type:        append([]string(nil), subjectType...),
			Achievement: achievement,
		},
	}
	if cfg.ValidUntil != nil {
		c.ValidUntil = FormatTime(*cfg.ValidUntil)
	}

	return c, nil
}

func (cfg Config) validate() error {
	var errs []error
	if cfg.ID == "" {
		errs = append(errs, errors.New("credential id is required"))
	}
	if cfg.Issuer.ID == "" {
		errs = append(errs, errors.New("issuer id is required"))
	}
	if cfg.Subject.ID == "" {
		errs = append(errs, errors.New("subject id is required"))
	}
	if cfg.Achievement.ID == "" {
		errs = append(errs, errors.New("achievement id is required"))
	}
	if cfg.Achievement.Name == "" {
		errs = append(errs, errors.New("achievement name is required"))
	}
	if cfg.ValidFrom.IsZero() {
		errs = append(errs, errors.New("validFrom is required"))
	}
	if cfg.ValidUntil != nil && !cfg.ValidUntil.After(cfg.ValidFrom) {
		errs = append(errs, errors.New("validUntil must be after validFrom"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid credential config: %w", errors.Join(errs...))
	}
	return nil
}

// FormatTime renders t the way credentials carry timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime parses a credential timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
