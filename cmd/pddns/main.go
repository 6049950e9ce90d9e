package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	ddns "github.com/Travis-Britz/pddns"
	"github.com/Travis-Britz/pddns/internal/config"
)

var opts = struct {
	IP            string
	IPService     string
	Interfaces    []string
	Interval      time.Duration
	Timeout       time.Duration
	KeepGoing     bool
	SkipUnchanged bool
	Duplicates    string
	MetricsAddr   string
	Verbose       int
}{}

// environment supplies defaults for flags that weren't given on the command line.
// Values may also come from a .env file in the working directory.
type environment struct {
	Settings    string        `env:"PDDNS_SETTINGS"`
	IP          string        `env:"PDDNS_IP"`
	IPService   string        `env:"PDDNS_IP_SERVICE"`
	Interval    time.Duration `env:"PDDNS_INTERVAL"`
	MetricsAddr string        `env:"PDDNS_METRICS_ADDR"`
	KeepGoing   bool          `env:"PDDNS_KEEP_GOING"`
}

var logger logr.Logger

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] settings\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "PDDNS_SETTINGS, PDDNS_IP, PDDNS_IP_SERVICE, PDDNS_INTERVAL, PDDNS_METRICS_ADDR and PDDNS_KEEP_GOING\nset defaults, and are also read from ./.env.\n\n")
		flag.PrintDefaults()
	}
	flag.StringVarP(&opts.IP, "ip", "i", "", "IP address to set instead of looking it up")
	flag.StringVar(&opts.IPService, "ip-service", ddns.DefaultOriginURL, "URL of a JSON {\"origin\": ip} service used to look up the WAN IP")
	flag.StringSliceVar(&opts.Interfaces, "iface", nil, "use the IPv4 address of these local interfaces instead of a web service")
	flag.DurationVar(&opts.Interval, "interval", 0, "keep running and repeat the update at this interval (minimum 1m); 0 runs once")
	flag.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "timeout for each HTTP request; 0 uses the transport default")
	flag.BoolVar(&opts.KeepGoing, "keep-going", false, "continue with the next domain when one fails")
	flag.BoolVar(&opts.SkipUnchanged, "skip-unchanged", false, "don't rewrite records that already hold the IP and TTL")
	flag.StringVar(&opts.Duplicates, "duplicates", "first", "what to do with several A records for one subdomain: first, all or fail")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running with --interval")
	flag.CountVarP(&opts.Verbose, "verbose", "v", "enable verbose logging (repeat for more detail)")
}

func main() {
	flag.Parse()

	stdr.SetVerbosity(opts.Verbose)
	logger = stdr.New(log.New(os.Stderr, "", log.LstdFlags))

	_ = godotenv.Load()
	var e environment
	if err := env.Parse(&e); err != nil {
		log.Fatalf("error reading environment: %s", err)
	}
	applyEnvironment(e)

	if err := run(e.Settings); err != nil {
		log.Fatal(err)
	}
}

func applyEnvironment(e environment) {
	set := func(name string) bool { return flag.CommandLine.Changed(name) }
	if !set("ip") && e.IP != "" {
		opts.IP = e.IP
	}
	if !set("ip-service") && e.IPService != "" {
		opts.IPService = e.IPService
	}
	if !set("interval") && e.Interval != 0 {
		opts.Interval = e.Interval
	}
	if !set("metrics-addr") && e.MetricsAddr != "" {
		opts.MetricsAddr = e.MetricsAddr
	}
	if !set("keep-going") && e.KeepGoing {
		opts.KeepGoing = true
	}
}

func run(settings string) error {
	switch {
	case flag.NArg() == 1:
		settings = flag.Arg(0)
	case flag.NArg() > 1 || settings == "":
		flag.Usage()
		return errors.New("expected exactly one settings file")
	}

	cfg, err := config.Load(settings)
	if err != nil {
		return fmt.Errorf("error loading %s: %w", settings, err)
	}
	if err := promptMissingTokens(&cfg); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	logger.V(1).Info("settings are valid", "path", settings, "domains", len(cfg.Domains), "ttl", cfg.TTL)

	resolver, err := newResolver()
	if err != nil {
		return err
	}

	policy, err := ddns.ParseDuplicatePolicy(opts.Duplicates)
	if err != nil {
		return err
	}

	options := []ddns.Option{
		ddns.UsingResolver(resolver),
		ddns.UsingHTTPClient(&http.Client{Timeout: opts.Timeout}),
		ddns.WithLogger(logger),
		ddns.WithDuplicatePolicy(policy),
	}
	if opts.SkipUnchanged {
		options = append(options, ddns.SkipUnchanged())
	}
	if opts.KeepGoing {
		options = append(options, ddns.ContinueOnError())
	}

	var registry *prometheus.Registry
	if opts.MetricsAddr != "" {
		registry = prometheus.NewRegistry()
		options = append(options, ddns.WithMetrics(ddns.NewMetrics(registry)))
	}

	updater, err := ddns.New(options...)
	if err != nil {
		return fmt.Errorf("error creating updater: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Interval == 0 {
		return updater.Run(ctx, cfg)
	}

	if registry != nil {
		go serveMetrics(ctx, registry)
	}
	if err := updater.Run(ctx, cfg); err != nil {
		logger.Error(err, "initial run failed")
	}
	ddns.RunDaemon(ctx, updater, cfg, opts.Interval, logger)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func newResolver() (ddns.Resolver, error) {
	switch {
	case opts.IP != "":
		r, err := ddns.FromString(opts.IP)
		if err != nil {
			return nil, fmt.Errorf("invalid --ip: %w", err)
		}
		return r, nil
	case len(opts.Interfaces) > 0:
		return ddns.InterfaceResolver(opts.Interfaces...), nil
	default:
		return ddns.OriginResolver(opts.IPService), nil
	}
}

// promptMissingTokens asks for the tokens that the settings file left empty.
// It only prompts when stdin is a terminal.
func promptMissingTokens(cfg *ddns.Config) error {
	fd := int(syscall.Stdin)
	for i := range cfg.Domains {
		d := &cfg.Domains[i]
		if d.Token != "" {
			continue
		}
		if !term.IsTerminal(fd) {
			return nil
		}
		time.Sleep(200 * time.Millisecond) // dirty timer hack to try to get stderr and stdout output lines to display in order
		fmt.Fprintf(os.Stderr, "Enter %s token for %s: ", d.Provider, d.Domain)
		key, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("error reading token from stdin: %w", err)
		}
		d.Token = ddns.Token(strings.TrimSpace(string(key)))
	}
	return nil
}

func serveMetrics(ctx context.Context, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", opts.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(err, "metrics server stopped")
	}
}
