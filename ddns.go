package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// RegistrarFactory builds the registrar for one configured domain.
type RegistrarFactory func(DomainConfig) (Registrar, error)

// New returns an Updater.
//
// Without options the Updater discovers the IP with DefaultResolver,
// talks to PDD or Cloudflare according to each domain's Provider,
// updates the first A record of each subdomain unconditionally,
// and stops at the first failed domain.
func New(options ...Option) (*Updater, error) {
	u := &Updater{
		resolver: DefaultResolver,
		logger:   logr.Discard(),
	}
	for i, opt := range options {
		if err := opt(u); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %s", i, err)
		}
	}
	if u.resolver == nil {
		return nil, errors.New("ddns.New: resolver cannot be nil")
	}

	// this lets us propagate the http client to a resolver registered after UsingHTTPClient
	if u.httpClient != nil {
		setHTTPClient(u.resolver, u.httpClient)
	}
	return u, nil
}

// Option configures an Updater.
type Option func(*Updater) error

func UsingResolver(resolver Resolver) Option {
	return func(u *Updater) error {
		if resolver == nil {
			resolver = DefaultResolver
		}
		u.resolver = resolver
		return nil
	}
}

// UsingOriginResolver discovers the IP with a {"origin": "<ip>"} JSON service such as httpbin.org/ip.
func UsingOriginResolver(serviceURL string) Option {
	return func(u *Updater) error {
		u.resolver = OriginResolver(serviceURL)
		return nil
	}
}

func UsingWebResolver(serviceURL ...string) Option {
	return func(u *Updater) (err error) {
		u.resolver, err = WebResolver(serviceURL...)
		return err
	}
}

// UsingHTTPClient sets the client used for IP discovery and registrar calls.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(u *Updater) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		u.httpClient = httpclient
		return nil
	}
}

// UsingRegistrarFactory replaces the lookup of a registrar by DomainConfig.Provider.
func UsingRegistrarFactory(f RegistrarFactory) Option {
	return func(u *Updater) error {
		u.factory = f
		return nil
	}
}

// UsingPDDBaseURL points PDD registrars somewhere other than DefaultPDDBaseURL.
func UsingPDDBaseURL(baseURL string) Option {
	return func(u *Updater) error {
		u.pddBaseURL = baseURL
		return nil
	}
}

// UsingCloudflareBaseURL points Cloudflare registrars somewhere other than the public API.
func UsingCloudflareBaseURL(baseURL string) Option {
	return func(u *Updater) error {
		u.cloudflareBaseURL = baseURL
		return nil
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(u *Updater) error {
		u.logger = logger
		return nil
	}
}

func WithMetrics(m *Metrics) Option {
	return func(u *Updater) error {
		u.metrics = m
		return nil
	}
}

func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(u *Updater) error {
		u.planOptions.Duplicates = p
		return nil
	}
}

// SkipUnchanged stops the Updater from rewriting records that already hold the current IP and TTL.
// By default every matching record is written on every run.
func SkipUnchanged() Option {
	return func(u *Updater) error {
		u.planOptions.SkipUnchanged = true
		return nil
	}
}

// ContinueOnError makes Run reconcile the remaining domains after one fails.
// All domain errors are joined and returned once every domain has been tried.
func ContinueOnError() Option {
	return func(u *Updater) error {
		u.continueOnError = true
		return nil
	}
}

// Updater points the A records of configured domains at the current IP.
type Updater struct {
	resolver          Resolver
	factory           RegistrarFactory
	httpClient        *http.Client
	logger            logr.Logger
	metrics           *Metrics
	planOptions       PlanOptions
	continueOnError   bool
	pddBaseURL        string
	cloudflareBaseURL string
}

// Run resolves the IP once and reconciles every domain of cfg in order.
func (u *Updater) Run(ctx context.Context, cfg Config) error {
	log := u.logger.WithValues("run", uuid.NewString())

	ip, err := u.resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("error getting IP: %w", err)
	}
	log.Info("resolved IP", "ip", ip)

	var errs []error
	for _, d := range cfg.Domains {
		err := u.runDomain(ctx, log, cfg, d, ip)
		u.metrics.result(d.Domain, err)
		if err == nil {
			continue
		}
		if !u.continueOnError {
			return err
		}
		log.Error(err, "reconciliation failed", "domain", d.Domain)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (u *Updater) runDomain(ctx context.Context, log logr.Logger, cfg Config, d DomainConfig, ip string) error {
	reg, err := u.registrar(d)
	if err != nil {
		return fmt.Errorf("error creating registrar for %s: %w", d.Domain, err)
	}

	ttl := d.TTL
	if ttl == 0 {
		ttl = cfg.TTL
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	plan, err := u.reconcile(ctx, log, reg, d.Subdomains, ip, ttl)
	if err != nil {
		return err
	}
	log.Info("domain reconciled", "domain", d.Domain, "updated", len(plan.Update), "created", len(plan.Create), "unchanged", len(plan.Unchanged))
	return nil
}

func (u *Updater) registrar(d DomainConfig) (Registrar, error) {
	if u.factory != nil {
		return u.factory(d)
	}

	var reg Registrar
	switch provider := strings.ToLower(d.Provider); provider {
	case "", ProviderPDD, "yandex":
		p := NewPDD(d.Domain, d.Token)
		if u.pddBaseURL != "" {
			p.BaseURL = u.pddBaseURL
		}
		reg = p
	case ProviderCloudflare:
		var opts []cloudflare.Option
		if u.cloudflareBaseURL != "" {
			opts = append(opts, cloudflare.BaseURL(u.cloudflareBaseURL))
		}
		cf, err := newCloudflareRegistrar(d.Domain, d.Token, opts...)
		if err != nil {
			return nil, err
		}
		reg = cf
	default:
		return nil, fmt.Errorf("unknown provider: %s", d.Provider)
	}

	type setLogger interface {
		SetLogger(logr.Logger)
	}
	if l, ok := reg.(setLogger); ok {
		l.SetLogger(u.logger.WithName(d.Domain))
	}
	if u.httpClient != nil {
		setHTTPClient(reg, u.httpClient)
	}
	return reg, nil
}

func setHTTPClient(v any, c *http.Client) {
	type httpClientSetter interface {
		SetHTTPClient(*http.Client)
	}
	if s, ok := v.(httpClientSetter); ok {
		s.SetHTTPClient(c)
	}
}

// minDaemonInterval is the shortest interval RunDaemon accepts.
var minDaemonInterval = time.Minute

// RunDaemon starts a goroutine that calls u.Run(ctx, cfg) every interval until ctx is done.
//
// Intervals below one minute are raised to one minute.
// Errors are sent to logger and do not stop the daemon.
func RunDaemon(ctx context.Context, u *Updater, cfg Config, interval time.Duration, logger logr.Logger) {
	if interval < minDaemonInterval {
		interval = minDaemonInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := u.Run(ctx, cfg); err != nil {
					logger.Error(err, "ddns.RunDaemon: run failed")
				}
			}
		}
	}()
}
