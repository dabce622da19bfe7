package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds the pipeline's timeouts and fan-out.
type Config struct {
	// FetchTimeout bounds the issuer profile and achievement fetches.
	// Default: 5 seconds.
	FetchTimeout time.Duration

	// MethodTimeout bounds the verification method document fetch.
	// Default: 4 seconds.
	MethodTimeout time.Duration

	// Concurrency limits how many network tasks run at once. Default: 2.
	Concurrency int

	// Clock returns the current time for the validity check.
	Clock func() time.Time
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		FetchTimeout:  5 * time.Second,
		MethodTimeout: 4 * time.Second,
		Concurrency:   2,
		Clock:         time.Now,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithExtractor replaces the artifact extractor.
func WithExtractor(e Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records every run in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline verifies badge artifacts. It holds no per-run state and is safe
// for concurrent use.
type Pipeline struct {
	config    *Config
	fetcher   Fetcher
	extractor Extractor
	logger    *zap.Logger
	metrics   *Metrics
}

// New creates a Pipeline. If config is nil, DefaultConfig is used; zero
// fields take their defaults.
func New(config *Config, opts ...Option) *Pipeline {
	cfg := DefaultConfig()
	if config != nil {
		if config.FetchTimeout > 0 {
			cfg.FetchTimeout = config.FetchTimeout
		}
		if config.MethodTimeout > 0 {
			cfg.MethodTimeout = config.MethodTimeout
		}
		if config.Concurrency > 0 {
			cfg.Concurrency = config.Concurrency
		}
		if config.Clock != nil {
			cfg.Clock = config.Clock
		}
	}

	p := &Pipeline{
		config:    cfg,
		fetcher:   NewHTTPFetcher(nil, ""),
		extractor: ArtifactExtractor{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Verify runs every stage against artifact and returns the full report.
// Only an extraction failure stops the pipeline early.
func (p *Pipeline) Verify(ctx context.Context, artifact []byte) *Report {
	report := p.run(ctx, artifact)

	for _, c := range report.Checks {
		p.logger.Debug("verification check",
			zap.String("check", c.Name),
			zap.String("status", string(c.Status)),
			zap.String("message", c.Message),
		)
	}
	p.metrics.observe(report)
	return report
}

func (p *Pipeline) run(ctx context.Context, artifact []byte) *Report {
	// 1. Extraction
	extracted, err := p.extractor.Extract(ctx, artifact)
	if err != nil {
		return &Report{
			Checks: []Check{errorf(CheckExtraction, "Could not extract a credential: %v", err)},
		}
	}
	if extracted == nil || extracted.Document == nil {
		return &Report{
			Checks: []Check{errorf(CheckExtraction, "Could not extract a credential: artifact holds no credential")},
		}
	}

	checks := []Check{successf(CheckExtraction, "Credential extracted from %s artifact", extracted.Format)}

	// 2. Structure
	checks = append(checks, p.checkStructure(extracted))

	// 3-5. Network stages. Each task owns its result slot.
	var chain, achievement []Check

	g := new(errgroup.Group)
	g.SetLimit(p.config.Concurrency)
	g.Go(p.isolate(CheckIssuer, &chain, func() []Check {
		return p.verifyIssuerChain(ctx, extracted)
	}))
	g.Go(p.isolate(CheckAchievement, &achievement, func() []Check {
		return []Check{p.checkAchievement(ctx, extracted)}
	}))
	_ = g.Wait()

	checks = append(checks, chain...)
	checks = append(checks, achievement...)

	// 6. Validity
	checks = append(checks, p.checkValidity(extracted))

	return &Report{Checks: checks, Credential: extracted.Document}
}

// isolate runs fn into slot. A panic in fn becomes an error check so that
// sibling tasks and the report are unaffected.
func (p *Pipeline) isolate(name string, slot *[]Check, fn func() []Check) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("verification task panicked", zap.String("check", name), zap.Any("panic", r))
				*slot = []Check{errorf(name, "Internal error while checking %s: %v", name, r)}
			}
		}()
		*slot = fn()
		return nil
	}
}

// fetch retrieves url within timeout.
func (p *Pipeline) fetch(ctx context.Context, url string, timeout time.Duration) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		p.logger.Warn("fetch failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("no document returned for %s", url)
	}
	if !doc.OK() {
		p.logger.Warn("fetch returned non-2xx status", zap.String("url", url), zap.Int("status", doc.StatusCode))
	}
	return doc, nil
}
