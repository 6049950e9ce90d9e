package ddns_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// fakePDD is a minimal in-memory PDD admin DNS API.
type fakePDD struct {
	mu      sync.Mutex
	token   string
	domain  string
	records []fakeRecord
	nextID  int
	calls   []string // "list", "edit <subdomain>", "add <subdomain>" in order
	queries []string // raw query strings of every request
	fail    map[string]string
}

type fakeRecord struct {
	RecordID  int    `json:"record_id"`
	Domain    string `json:"domain"`
	Subdomain string `json:"subdomain"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	TTL       int    `json:"ttl"`
}

func newFakePDD(t *testing.T, domain, token string, records ...fakeRecord) (*fakePDD, *httptest.Server) {
	t.Helper()
	f := &fakePDD{
		token:  token,
		domain: domain,
		nextID: 1000,
		fail:   map[string]string{},
	}
	for _, r := range records {
		f.add(r)
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakePDD) add(r fakeRecord) {
	if r.RecordID == 0 {
		f.nextID++
		r.RecordID = f.nextID
	}
	if r.Domain == "" {
		r.Domain = f.domain
	}
	if r.Type == "" {
		r.Type = "A"
	}
	f.records = append(f.records, r)
}

// failOn makes the given operation ("list", "edit", "add") answer with message.
func (f *fakePDD) failOn(op, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = message
}

func (f *fakePDD) snapshot() []fakeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeRecord(nil), f.records...)
}

func (f *fakePDD) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePDD) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, r.URL.RawQuery)

	if r.Header.Get("PddToken") != f.token {
		writeJSON(w, map[string]any{"success": "error", "error": "no_auth"})
		return
	}

	switch r.URL.Path {
	case "/list":
		f.calls = append(f.calls, "list")
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if msg, ok := f.fail["list"]; ok {
			writeJSON(w, map[string]any{"success": "error", "error": msg})
			return
		}
		writeJSON(w, map[string]any{
			"domain":  r.URL.Query().Get("domain"),
			"records": f.records,
			"success": "ok",
		})
	case "/edit":
		f.handleEdit(w, r)
	case "/add":
		f.handleAdd(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakePDD) handleEdit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.Method != http.MethodPost {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.calls = append(f.calls, "edit "+r.PostForm.Get("subdomain"))
	if msg, ok := f.fail["edit"]; ok {
		writeJSON(w, map[string]any{"success": "error", "error": msg})
		return
	}
	id, _ := strconv.Atoi(r.PostForm.Get("record_id"))
	ttl, _ := strconv.Atoi(r.PostForm.Get("ttl"))
	for i := range f.records {
		if f.records[i].RecordID == id {
			f.records[i].Content = r.PostForm.Get("content")
			f.records[i].TTL = ttl
			writeJSON(w, map[string]any{"success": "ok", "record_id": id})
			return
		}
	}
	writeJSON(w, map[string]any{"success": "error", "error": "no_such_record"})
}

func (f *fakePDD) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.Method != http.MethodPost {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.calls = append(f.calls, "add "+r.PostForm.Get("subdomain"))
	if msg, ok := f.fail["add"]; ok {
		writeJSON(w, map[string]any{"success": "error", "error": msg})
		return
	}
	ttl, _ := strconv.Atoi(r.PostForm.Get("ttl"))
	f.add(fakeRecord{
		Domain:    r.PostForm.Get("domain"),
		Subdomain: r.PostForm.Get("subdomain"),
		Type:      r.PostForm.Get("type"),
		Content:   r.PostForm.Get("content"),
		TTL:       ttl,
	})
	writeJSON(w, map[string]any{"success": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
