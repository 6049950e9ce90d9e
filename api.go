package ddns

import (
	"context"
)

type Resolver interface {
	Resolve(context.Context) (string, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context) (string, error) {
	return f(ctx)
}

// Registrar reads and writes the DNS records of a single domain.
type Registrar interface {
	Domain() string
	ListRecords(ctx context.Context) ([]Record, error)
	UpdateRecord(ctx context.Context, record Record, ip string, ttl int) error
	CreateRecord(ctx context.Context, subdomain, ip string, ttl int) error
}

// Record is a DNS record as reported by the registrar.
type Record struct {
	ID        string
	Domain    string
	Subdomain string
	Type      string
	Content   string
	TTL       int
}
