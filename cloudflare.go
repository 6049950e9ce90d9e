package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"
)

func newCloudflareRegistrar(domain string, token Token, opts ...cloudflare.Option) (cf *cloudflareRegistrar, err error) {
	cf = new(cloudflareRegistrar)
	// calls are never retried
	opts = append([]cloudflare.Option{cloudflare.UsingRetryPolicy(0, 0, 0)}, opts...)
	cf.api, err = cloudflare.NewWithAPIToken(string(token), opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.domain = domain
	cf.logger = logr.Discard()
	cf.comment = "managed by pddns"
	return cf, nil
}

// cloudflareRegistrar implements ddns.Registrar for a Cloudflare zone.
//
// Subdomains are relative to domain, with "@" naming the domain itself,
// so that the same settings work for PDD and Cloudflare.
type cloudflareRegistrar struct {
	api     *cloudflare.API
	logger  logr.Logger
	domain  string
	comment string // optional comment to attach to each new DNS entry

	once   sync.Once
	zoneID string
	zerr   error

	mu   sync.Mutex
	meta map[string]recordMeta // by record id, from the last listing
}

// recordMeta is what an update would otherwise overwrite.
type recordMeta struct {
	comment string
	tags    []string
}

func (cf *cloudflareRegistrar) Domain() string { return cf.domain }

func (cf *cloudflareRegistrar) SetLogger(l logr.Logger) { cf.logger = l }

func (cf *cloudflareRegistrar) SetHTTPClient(c *http.Client) {
	// cloudflare.HTTPClient never returns an error.
	_ = cloudflare.HTTPClient(c)(cf.api)
}

func (cf *cloudflareRegistrar) ListRecords(ctx context.Context) ([]Record, error) {
	zid, err := cf.zone(ctx)
	if err != nil {
		return nil, err
	}
	cf.logger.V(1).Info("looking up A records", "zone", zid)

	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type: "A",
	})
	if err != nil {
		return nil, cf.wrap("list", err)
	}

	out := make([]Record, 0, len(records))
	meta := make(map[string]recordMeta, len(records))
	for _, r := range records {
		meta[r.ID] = recordMeta{comment: r.Comment, tags: r.Tags}
		out = append(out, Record{
			ID:        r.ID,
			Domain:    cf.domain,
			Subdomain: cf.subdomain(r.Name),
			Type:      r.Type,
			Content:   r.Content,
			TTL:       r.TTL,
		})
	}
	cf.mu.Lock()
	cf.meta = meta
	cf.mu.Unlock()
	cf.logger.V(1).Info("listed records", "domain", cf.domain, "count", len(out))
	return out, nil
}

func (cf *cloudflareRegistrar) UpdateRecord(ctx context.Context, record Record, ip string, ttl int) error {
	zid, err := cf.zone(ctx)
	if err != nil {
		return err
	}
	// comment and tags are always sent, so carry the listed values over
	cf.mu.Lock()
	m := cf.meta[record.ID]
	cf.mu.Unlock()
	if m.comment == "" {
		m.comment = cf.comment
	}
	_, err = cf.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.UpdateDNSRecordParams{
		ID:      record.ID,
		Type:    "A",
		Name:    cf.fqdn(record.Subdomain),
		Content: ip,
		TTL:     ttl,
		Comment: m.comment,
		Tags:    m.tags,
	})
	if err != nil {
		return cf.wrap("edit", err)
	}
	return nil
}

func (cf *cloudflareRegistrar) CreateRecord(ctx context.Context, subdomain, ip string, ttl int) error {
	zid, err := cf.zone(ctx)
	if err != nil {
		return err
	}
	_, err = cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.CreateDNSRecordParams{
		Type:    "A",
		Name:    cf.fqdn(subdomain),
		Content: ip,
		ZoneID:  zid,
		TTL:     ttl,
		Comment: cf.comment,
	})
	if err != nil {
		return cf.wrap("add", err)
	}
	return nil
}

// zone looks up the zone id once per registrar.
func (cf *cloudflareRegistrar) zone(ctx context.Context) (string, error) {
	cf.once.Do(func() {
		cf.zoneID, cf.zerr = cf.getZoneIDFromDomain(ctx, cf.domain)
	})
	return cf.zoneID, cf.zerr
}

func (cf *cloudflareRegistrar) getZoneIDFromDomain(ctx context.Context, domain string) (zid string, err error) {
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return "", cf.wrap("list", fmt.Errorf("error listing zones: %w", err))
	}

	max := 0
	for _, z := range zones {
		if (domain == z.Name || strings.HasSuffix(domain, "."+z.Name)) && len(z.Name) > max {
			max, zid = len(z.Name), z.ID
		}
	}
	if max == 0 {
		return "", fmt.Errorf("unable to find a zone matching \"%s\"", domain)
	}
	cf.logger.V(1).Info("got zone ID", "domain", domain, "zone", zid)
	return zid, nil
}

func (cf *cloudflareRegistrar) fqdn(subdomain string) string {
	if subdomain == "" || subdomain == "@" {
		return cf.domain
	}
	return subdomain + "." + cf.domain
}

func (cf *cloudflareRegistrar) subdomain(name string) string {
	if name == cf.domain {
		return "@"
	}
	return strings.TrimSuffix(name, "."+cf.domain)
}

// wrap maps cloudflare-go errors onto the package error kinds.
// Anything that isn't a transport failure is an API error from Cloudflare.
func (cf *cloudflareRegistrar) wrap(op string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: cloudflare %s %s: %w", ErrNetwork, op, cf.domain, err)
	}
	return &RegistrarError{Op: op, Domain: cf.domain, Message: err.Error()}
}
