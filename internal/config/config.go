// Package config loads pddns settings files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	ddns "github.com/Travis-Britz/pddns"
)

// EnvPrefix is the prefix of environment variables that override top-level settings.
const EnvPrefix = "PDDNS"

// fileConfig mirrors the settings file.
// Pointer fields tell "absent" apart from an explicit zero.
type fileConfig struct {
	TTL     *int           `mapstructure:"ttl"`
	Domains []domainConfig `mapstructure:"domains"`
}

type domainConfig struct {
	Domain     string   `mapstructure:"domain"`
	PddToken   string   `mapstructure:"pddtoken"`
	Token      string   `mapstructure:"token"`
	Subdomains []string `mapstructure:"subdomains"`
	TTL        *int     `mapstructure:"ttl"`
	Provider   string   `mapstructure:"provider"`
}

// Load reads the settings file at path and merges it over ddns.DefaultConfig.
//
// The format follows the file extension (.json, .yaml, .toml);
// files without a known extension are read as JSON.
// A token written entirely as ${VAR} or $VAR is read from that environment
// variable, and an unset variable is an error; any other token is used literally.
// PDDNS_TTL overrides the top-level ttl.
func Load(path string) (ddns.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".toml":
	default:
		v.SetConfigType("json")
	}
	v.SetEnvPrefix(EnvPrefix)
	if err := v.BindEnv("ttl"); err != nil {
		return ddns.Config{}, fmt.Errorf("binding environment: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return ddns.Config{}, fmt.Errorf("reading settings file: %w", err)
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return ddns.Config{}, fmt.Errorf("parsing settings file: %w", err)
	}

	return merge(ddns.DefaultConfig(), fc)
}

// merge overlays the parsed file onto defaults.
// A ttl that is present but not positive is rejected instead of falling back to the default.
func merge(defaults ddns.Config, fc fileConfig) (ddns.Config, error) {
	cfg := defaults
	if fc.TTL != nil {
		if *fc.TTL <= 0 {
			return ddns.Config{}, fmt.Errorf("settings: ttl must be a positive number of seconds, got %d", *fc.TTL)
		}
		cfg.TTL = *fc.TTL
	}

	if len(fc.Domains) == 0 {
		return ddns.Config{}, errors.New("settings: no domains configured")
	}

	cfg.Domains = make([]ddns.DomainConfig, 0, len(fc.Domains))
	for i, d := range fc.Domains {
		if d.Domain == "" {
			return ddns.Config{}, fmt.Errorf("settings: domains[%d]: missing required field 'domain'", i)
		}

		ttl := cfg.TTL
		if d.TTL != nil {
			if *d.TTL <= 0 {
				return ddns.Config{}, fmt.Errorf("settings: %s: ttl must be a positive number of seconds, got %d", d.Domain, *d.TTL)
			}
			ttl = *d.TTL
		}

		token := d.PddToken
		if token == "" {
			token = d.Token
		}
		token, err := expandToken(token)
		if err != nil {
			return ddns.Config{}, fmt.Errorf("settings: %s: %w", d.Domain, err)
		}

		provider := strings.ToLower(d.Provider)
		if provider == "" {
			provider = ddns.ProviderPDD
		}

		cfg.Domains = append(cfg.Domains, ddns.DomainConfig{
			Domain:     d.Domain,
			Token:      ddns.Token(token),
			Subdomains: d.Subdomains,
			TTL:        ttl,
			Provider:   provider,
		})
	}
	return cfg, nil
}

// expandToken resolves a token that is a single environment variable reference.
func expandToken(s string) (string, error) {
	name, ok := envRef(s)
	if !ok {
		return s, nil
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("token refers to unset environment variable %s", name)
	}
	return v, nil
}

func envRef(s string) (string, bool) {
	var name string
	switch {
	case strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}"):
		name = s[2 : len(s)-1]
	case strings.HasPrefix(s, "$"):
		name = s[1:]
	default:
		return "", false
	}
	if name == "" {
		return "", false
	}
	for i, c := range name {
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		default:
			return "", false
		}
	}
	return name, true
}

// Validate checks that every domain can be reconciled.
// It is separate from Load so that missing tokens can be supplied interactively first.
func Validate(cfg ddns.Config) error {
	var errs []error
	for _, d := range cfg.Domains {
		if d.Token == "" {
			errs = append(errs, fmt.Errorf("%s: missing token", d.Domain))
		}
		switch d.Provider {
		case ddns.ProviderPDD, "yandex", ddns.ProviderCloudflare:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown provider %q", d.Domain, d.Provider))
		}
	}
	return errors.Join(errs...)
}
