package ddns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

// DefaultPDDBaseURL is the Yandex PDD admin DNS endpoint.
const DefaultPDDBaseURL = "https://pddimp.yandex.ru/api2/admin/dns"

// PDD implements ddns.Registrar for the Yandex PDD admin DNS API.
//
// The token is only ever sent in the PddToken request header.
type PDD struct {
	BaseURL    string
	HTTPClient *http.Client

	domain string
	token  Token
	logger logr.Logger
}

// NewPDD returns a PDD registrar for domain.
func NewPDD(domain string, token Token) *PDD {
	return &PDD{
		BaseURL: DefaultPDDBaseURL,
		domain:  domain,
		token:   token,
		logger:  logr.Discard(),
	}
}

func (p *PDD) Domain() string { return p.domain }

func (p *PDD) SetHTTPClient(c *http.Client) { p.HTTPClient = c }

func (p *PDD) SetLogger(l logr.Logger) { p.logger = l }

// pddResponse covers the fields shared by every PDD response.
// Success is a pointer so that a missing field can be told apart from a failure.
type pddResponse struct {
	Success *string `json:"success"`
	Error   string  `json:"error"`
}

type pddListResponse struct {
	pddResponse
	Records []pddRecord `json:"records"`
}

type pddRecord struct {
	RecordID  recordID `json:"record_id"`
	Domain    string   `json:"domain"`
	Subdomain string   `json:"subdomain"`
	Type      string   `json:"type"`
	Content   string   `json:"content"`
	TTL       int      `json:"ttl"`
}

func (r pddRecord) toRecord() Record {
	return Record{
		ID:        string(r.RecordID),
		Domain:    r.Domain,
		Subdomain: r.Subdomain,
		Type:      r.Type,
		Content:   r.Content,
		TTL:       r.TTL,
	}
}

// recordID accepts both the numeric ids PDD sends and quoted strings.
type recordID string

func (id *recordID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = recordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("record_id: %w", err)
	}
	*id = recordID(n.String())
	return nil
}

// ListRecords returns every record of the domain in the order the registrar lists them.
func (p *PDD) ListRecords(ctx context.Context) ([]Record, error) {
	params := url.Values{}
	params.Set("domain", p.domain)

	var resp pddListResponse
	if err := p.do(ctx, "list", http.MethodGet, "/list?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(resp.Records))
	for _, r := range resp.Records {
		records = append(records, r.toRecord())
	}
	p.logger.V(1).Info("listed records", "domain", p.domain, "count", len(records))
	return records, nil
}

// UpdateRecord points an existing record at ip.
// PDD wants the domain and subdomain repeated alongside the record id.
func (p *PDD) UpdateRecord(ctx context.Context, record Record, ip string, ttl int) error {
	domain := record.Domain
	if domain == "" {
		domain = p.domain
	}
	form := url.Values{}
	form.Set("domain", domain)
	form.Set("record_id", record.ID)
	form.Set("subdomain", record.Subdomain)
	form.Set("ttl", strconv.Itoa(ttl))
	form.Set("content", ip)

	var resp pddResponse
	return p.do(ctx, "edit", http.MethodPost, "/edit", form, &resp)
}

// CreateRecord adds a new A record for subdomain.
func (p *PDD) CreateRecord(ctx context.Context, subdomain, ip string, ttl int) error {
	form := url.Values{}
	form.Set("domain", p.domain)
	form.Set("type", "A")
	form.Set("subdomain", subdomain)
	form.Set("ttl", strconv.Itoa(ttl))
	form.Set("content", ip)

	var resp pddResponse
	return p.do(ctx, "add", http.MethodPost, "/add", form, &resp)
}

type pddResult interface {
	status() pddResponse
}

func (r *pddResponse) status() pddResponse { return *r }

func (p *PDD) do(ctx context.Context, op, method, path string, form url.Values, out pddResult) error {
	var body io.Reader
	if form != nil {
		body = bytes.NewBufferString(form.Encode())
	}

	fullURL := strings.TrimRight(p.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("pdd: build %s request: %w", op, err)
	}
	req.Header.Set("PddToken", string(p.token))
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpclient := p.HTTPClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: pdd %s %s: %w", ErrNetwork, op, p.domain, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: pdd %s %s: reading response: %w", ErrNetwork, op, p.domain, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &RegistrarError{Op: op, Domain: p.domain, Message: resp.Status}
		}
		return fmt.Errorf("%w: pdd %s %s: %w", ErrFormat, op, p.domain, err)
	}

	st := out.status()
	if st.Success == nil {
		return fmt.Errorf("%w: pdd %s %s: response has no \"success\" field", ErrFormat, op, p.domain)
	}
	if *st.Success != "ok" {
		return &RegistrarError{Op: op, Domain: p.domain, Message: st.Error}
	}
	return nil
}
