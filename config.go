package ddns

// DefaultTTL is used for every record when the settings don't name a TTL.
const DefaultTTL = 600

const (
	ProviderPDD        = "pdd"
	ProviderCloudflare = "cloudflare"
)

// Config is the set of domains reconciled by a single run.
type Config struct {
	TTL     int
	Domains []DomainConfig
}

// DefaultConfig returns the values that a settings file is merged over.
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL}
}

// DomainConfig describes the subdomains to keep up to date for one domain.
type DomainConfig struct {
	Domain     string
	Token      Token
	Subdomains []string
	TTL        int
	Provider   string
}

// Token is a registrar credential.
// It formats as REDACTED so that it can't leak through log lines or %+v.
type Token string

func (Token) String() string { return "REDACTED" }

// MarshalLog implements logr.Marshaler.
func (Token) MarshalLog() any { return "REDACTED" }
