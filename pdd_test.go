package ddns_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ddns "github.com/Travis-Britz/pddns"
)

func newTestPDD(srv *httptest.Server, domain string, token ddns.Token) *ddns.PDD {
	p := ddns.NewPDD(domain, token)
	p.BaseURL = srv.URL
	p.HTTPClient = srv.Client()
	return p
}

func TestPDDListRecords(t *testing.T) {
	_, srv := newFakePDD(t, "example.com", "secret",
		fakeRecord{RecordID: 1, Subdomain: "home", Content: "10.0.0.1", TTL: 300},
		fakeRecord{RecordID: 2, Subdomain: "mail", Type: "MX", Content: "mx.example.com", TTL: 21600},
	)
	p := newTestPDD(srv, "example.com", "secret")

	records, err := p.ListRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ddns.Record{
		ID:        "1",
		Domain:    "example.com",
		Subdomain: "home",
		Type:      "A",
		Content:   "10.0.0.1",
		TTL:       300,
	}, records[0])
	assert.Equal(t, "MX", records[1].Type)
}

func TestPDDRequestShape(t *testing.T) {
	type seen struct {
		method, path, query, token, contentType string
		form                                    url.Values
	}
	var (
		mu  sync.Mutex
		got []seen
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		mu.Lock()
		defer mu.Unlock()
		got = append(got, seen{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			token:       r.Header.Get("PddToken"),
			contentType: r.Header.Get("Content-Type"),
			form:        form,
		})
		io.WriteString(w, `{"success": "ok", "records": []}`)
	}))
	defer srv.Close()

	p := newTestPDD(srv, "example.com", "s3cr3t")
	ctx := context.Background()

	_, err := p.ListRecords(ctx)
	require.NoError(t, err)
	require.NoError(t, p.UpdateRecord(ctx, ddns.Record{ID: "42", Domain: "example.com", Subdomain: "home"}, "1.2.3.4", 600))
	require.NoError(t, p.CreateRecord(ctx, "nas", "1.2.3.4", 900))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)

	list := got[0]
	assert.Equal(t, http.MethodGet, list.method)
	assert.Equal(t, "/list", list.path)
	assert.Equal(t, "domain=example.com", list.query)
	assert.Equal(t, "s3cr3t", list.token)

	edit := got[1]
	assert.Equal(t, http.MethodPost, edit.method)
	assert.Equal(t, "/edit", edit.path)
	assert.Equal(t, "application/x-www-form-urlencoded", edit.contentType)
	assert.Equal(t, url.Values{
		"domain":    {"example.com"},
		"record_id": {"42"},
		"subdomain": {"home"},
		"ttl":       {"600"},
		"content":   {"1.2.3.4"},
	}, edit.form)

	add := got[2]
	assert.Equal(t, http.MethodPost, add.method)
	assert.Equal(t, "/add", add.path)
	assert.Equal(t, url.Values{
		"domain":    {"example.com"},
		"type":      {"A"},
		"subdomain": {"nas"},
		"ttl":       {"900"},
		"content":   {"1.2.3.4"},
	}, add.form)

	for _, s := range got {
		assert.NotContains(t, s.query, "s3cr3t", "token must never be sent in the URL")
		assert.NotContains(t, s.form.Encode(), "s3cr3t", "token must never be sent in the body")
		assert.Equal(t, "s3cr3t", s.token)
	}
}

func TestPDDRegistrarError(t *testing.T) {
	f, srv := newFakePDD(t, "example.com", "secret")
	f.failOn("list", "not_allowed")
	p := newTestPDD(srv, "example.com", "secret")

	_, err := p.ListRecords(context.Background())
	var re *ddns.RegistrarError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "not_allowed", re.Message)
	assert.Equal(t, "list", re.Op)
	assert.False(t, errors.Is(err, ddns.ErrAuth))
}

func TestPDDBadToken(t *testing.T) {
	_, srv := newFakePDD(t, "example.com", "secret")
	p := newTestPDD(srv, "example.com", "wrong")

	_, err := p.ListRecords(context.Background())
	var re *ddns.RegistrarError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "no_auth", re.Message)
	assert.ErrorIs(t, err, ddns.ErrAuth)
}

func TestPDDFormatErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"missing success", `{"records": []}`},
		{"records wrong shape", `{"success": "ok", "records": {"a": 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestPDD(srv, "example.com", "secret").ListRecords(context.Background())
			assert.ErrorIs(t, err, ddns.ErrFormat)
		})
	}
}

func TestPDDHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestPDD(srv, "example.com", "secret").ListRecords(context.Background())
	var re *ddns.RegistrarError
	require.ErrorAs(t, err, &re)
	assert.True(t, strings.HasPrefix(re.Message, "502"), "got %q", re.Message)
}

func TestPDDNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	p := ddns.NewPDD("example.com", "secret")
	p.BaseURL = base
	err := p.CreateRecord(context.Background(), "www", "1.2.3.4", 600)
	assert.ErrorIs(t, err, ddns.ErrNetwork)
}

func TestPDDStringRecordID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": "ok", "records": [{"record_id": "abc", "subdomain": "www", "type": "A", "content": "1.1.1.1", "ttl": 60}]}`)
	}))
	defer srv.Close()

	records, err := newTestPDD(srv, "example.com", "secret").ListRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "abc", records[0].ID)
}
