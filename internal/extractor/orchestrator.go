package extractor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/contactfinder/internal/email"
	"github.com/JakeFAU/contactfinder/internal/logging"
	"github.com/JakeFAU/contactfinder/internal/metrics"
	"github.com/JakeFAU/contactfinder/internal/urlnorm"
)

// Config is the per-request extraction policy. It is passed by value and
// never mutated by the Orchestrator.
type Config struct {
	Mode                Mode
	EscalationThreshold int
	SitemapEnabled      bool

	StaticTimeout  time.Duration
	RenderTimeout  time.Duration
	SitemapTimeout time.Duration
	// Deadline bounds the whole request; zero means no overall bound.
	Deadline time.Duration

	ExcludedDomains []string
	FakePatterns    []string

	// MaxEmails caps the result; zero means unlimited.
	MaxEmails       int
	MaxURLLength    int
	RestrictPrivate bool
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeAuto,
		EscalationThreshold: 3,
		SitemapEnabled:      true,
		StaticTimeout:       30 * time.Second,
		RenderTimeout:       10 * time.Second,
		SitemapTimeout:      5 * time.Second,
		Deadline:            2 * time.Minute,
		ExcludedDomains:     email.DefaultExcludedDomains(),
		FakePatterns:        email.DefaultFakePatterns(),
		MaxEmails:           100,
		MaxURLLength:        urlnorm.DefaultMaxLength,
		RestrictPrivate:     true,
	}
}

// Validate checks the policy.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.EscalationThreshold < 0 {
		return fmt.Errorf("%w: escalation threshold must be >= 0", ErrInvalidConfig)
	}
	if c.StaticTimeout < 0 || c.RenderTimeout < 0 || c.SitemapTimeout < 0 || c.Deadline < 0 {
		return fmt.Errorf("%w: timeouts must be >= 0", ErrInvalidConfig)
	}
	if c.MaxEmails < 0 {
		return fmt.Errorf("%w: max emails must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Orchestrator runs the strategies for a request and merges their findings.
type Orchestrator struct {
	static      Source
	rendered    Source
	sitemap     Source
	categorizer *email.Categorizer
	hinter      Hinter
	resolver    Resolver
	logger      *zap.Logger
	now         func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithCategorizer replaces the default keyword categorizer.
func WithCategorizer(c *email.Categorizer) Option {
	return func(o *Orchestrator) { o.categorizer = c }
}

// WithHinter enables client-rendering hints.
func WithHinter(h Hinter) Option {
	return func(o *Orchestrator) { o.hinter = h }
}

// WithResolver makes private-address checks resolve host names.
func WithResolver(r Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logging.OrNop(l) }
}

// New builds an Orchestrator. A nil source is reported as not configured
// whenever the policy asks for it.
func New(static, rendered, sitemap Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		static:      static,
		rendered:    rendered,
		sitemap:     sitemap,
		categorizer: email.NewDefaultCategorizer(),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) lookupIP(ctx context.Context) func(string) ([]net.IP, error) {
	if o.resolver == nil {
		return nil
	}
	return func(host string) ([]net.IP, error) {
		addrs, err := o.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		ips := make([]net.IP, len(addrs))
		for i, a := range addrs {
			ips[i] = a.IP
		}
		return ips, nil
	}
}

type strategyRun struct {
	report     StrategyReport
	accepted   []string
	diagnostic *Diagnostic
	body       []byte
}

// Extract searches rawURL for contact addresses. It fails outright only for
// an invalid config or URL. When every strategy that ran failed and nothing
// was found, it returns the empty Result together with ErrAllStrategiesFailed.
func (o *Orchestrator) Extract(ctx context.Context, rawURL string, cfg Config) (*Result, error) {
	start := o.now()
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := urlnorm.String(rawURL, urlnorm.Options{
		MaxLength:       cfg.MaxURLLength,
		RestrictPrivate: cfg.RestrictPrivate,
		LookupIP:        o.lookupIP(ctx),
	})
	if err != nil {
		metrics.ObserveExtraction(string(cfg.Mode), "rejected")
		return nil, err
	}
	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}
	validator := email.NewValidator(cfg.ExcludedDomains, cfg.FakePatterns)

	var (
		g                     errgroup.Group
		staticRun, sitemapRun *strategyRun
	)
	if runsStatic(cfg.Mode) {
		g.Go(func() error {
			staticRun = o.run(ctx, o.static, StrategyStatic, target, cfg.StaticTimeout, validator)
			return nil
		})
	}
	if cfg.SitemapEnabled {
		g.Go(func() error {
			sitemapRun = o.run(ctx, o.sitemap, StrategySitemap, target, cfg.SitemapTimeout, validator)
			return nil
		})
	}
	_ = g.Wait()

	var runs []*strategyRun
	staticCount := 0
	if staticRun != nil {
		runs = append(runs, staticRun)
		staticCount = len(staticRun.accepted)
	}
	var renderRun *strategyRun
	if shouldRender(cfg.Mode, staticCount, cfg.EscalationThreshold) {
		renderRun = o.run(ctx, o.rendered, StrategyRendered, target, cfg.RenderTimeout, validator)
		runs = append(runs, renderRun)
	}
	if sitemapRun != nil {
		runs = append(runs, sitemapRun)
	}

	res := o.assemble(target, cfg, runs)
	shell := staticRun != nil && staticCount == 0 && !staticRun.report.Failed &&
		o.hinter != nil && o.hinter.LooksClientRendered(staticRun.body)
	res.diagnostics = append(res.diagnostics, hints(cfg.Mode, res.Len(), staticRun != nil, renderRun != nil, shell)...)
	res.elapsed = o.now().Sub(start)

	status := "found"
	var outErr error
	switch {
	case res.Len() == 0 && allFailed(res.reports):
		status = "failed"
		outErr = ErrAllStrategiesFailed
	case res.Len() == 0:
		status = "empty"
	}
	metrics.ObserveExtraction(string(cfg.Mode), status)
	for _, e := range res.entries {
		metrics.ObserveEmail(string(e.Category))
	}
	o.logger.Info("extraction finished",
		zap.String("url", target),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("emails", res.Len()),
		zap.String("status", status),
		zap.Duration("elapsed", res.elapsed),
	)
	return res, outErr
}

// run executes one strategy with its timeout capped by the request deadline.
func (o *Orchestrator) run(
	ctx context.Context,
	src Source,
	strategy Strategy,
	target string,
	timeout time.Duration,
	validator *email.Validator,
) *strategyRun {
	run := &strategyRun{report: StrategyReport{Strategy: strategy}}
	fail := func(kind DiagnosticKind, err error) *strategyRun {
		run.report.Failed = true
		run.diagnostic = &Diagnostic{Strategy: strategy, Kind: kind, Message: err.Error()}
		metrics.ObserveStrategy(string(strategy), string(kind), run.report.Duration)
		o.logger.Warn("strategy failed",
			zap.String("strategy", string(strategy)),
			zap.String("url", target),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return run
	}
	if src == nil {
		return fail(KindNotConfigured, errors.New("strategy is not configured"))
	}
	deadline, hasDeadline := ctx.Deadline()
	timeout, ok := capTimeout(timeout, deadline, hasDeadline, o.now())
	if !ok {
		return fail(KindDeadlineExceeded, errors.New("request deadline exhausted before strategy started"))
	}

	start := o.now()
	out := src.Fetch(ctx, target, timeout)
	run.report.Duration = o.now().Sub(start)
	run.body = out.Body

	raw := make([]string, 0, len(out.Candidates))
	for _, c := range out.Candidates {
		raw = append(raw, c.Raw)
	}
	run.accepted = validator.Filter(raw)
	run.report.Candidates = len(raw)
	run.report.Accepted = len(run.accepted)

	if out.Err != nil {
		kind := out.Kind
		if kind == "" {
			kind = KindFetchFailure
		}
		if errors.Is(out.Err, context.DeadlineExceeded) && kind == KindFetchFailure {
			kind = KindDeadlineExceeded
		}
		return fail(kind, out.Err)
	}
	metrics.ObserveStrategy(string(strategy), "ok", run.report.Duration)
	o.logger.Debug("strategy finished",
		zap.String("strategy", string(strategy)),
		zap.Int("candidates", run.report.Candidates),
		zap.Int("accepted", run.report.Accepted),
		zap.Duration("duration", run.report.Duration),
	)
	return run
}

// assemble merges accepted addresses, categorizes them, and applies the cap.
func (o *Orchestrator) assemble(target string, cfg Config, runs []*strategyRun) *Result {
	res := &Result{url: target, mode: cfg.Mode}
	seen := make(map[string]struct{})
	var addrs []string
	for _, run := range runs {
		res.reports = append(res.reports, run.report)
		if run.diagnostic != nil {
			res.diagnostics = append(res.diagnostics, *run.diagnostic)
		}
		for _, a := range run.accepted {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			addrs = append(addrs, a)
		}
	}
	sort.Strings(addrs)
	if cfg.MaxEmails > 0 && len(addrs) > cfg.MaxEmails {
		res.diagnostics = append(res.diagnostics, Diagnostic{
			Kind:    KindTruncated,
			Message: fmt.Sprintf("kept %d of %d addresses", cfg.MaxEmails, len(addrs)),
		})
		addrs = addrs[:cfg.MaxEmails]
	}

	host := hostOf(target)
	res.entries = make([]email.Entry, len(addrs))
	res.index = make(map[string]int, len(addrs))
	for i, a := range addrs {
		res.entries[i] = email.Entry{
			Address:  a,
			Domain:   email.Domain(a),
			Category: o.categorizer.Categorize(a),
			SameSite: email.SameSite(a, host),
		}
		res.index[a] = i
	}
	return res
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
