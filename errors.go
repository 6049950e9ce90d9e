package ddns

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNetwork is wrapped by every error caused by a failed HTTP round trip.
	ErrNetwork = errors.New("network error")

	// ErrFormat is wrapped when a response body is not the JSON shape we expect.
	ErrFormat = errors.New("unexpected response format")

	// ErrAuth matches registrar errors that report a missing or rejected token.
	ErrAuth = errors.New("registrar rejected credentials")
)

// authCodes are the PDD error strings that mean the token was refused.
var authCodes = map[string]bool{
	"no_auth":       true,
	"no_token":      true,
	"bad_token":     true,
	"bad_oauth":     true,
	"token_expired": true,
	"bad_login":     true,
}

// RegistrarError is returned when the registrar answered but did not report success.
// Message is the registrar's own error text, verbatim.
type RegistrarError struct {
	Op      string
	Domain  string
	Message string
}

func (e *RegistrarError) Error() string {
	return fmt.Sprintf("registrar %s %s: %s", e.Op, e.Domain, e.Message)
}

func (e *RegistrarError) Is(target error) bool {
	return target == ErrAuth && authCodes[strings.ToLower(e.Message)]
}

// MultipleRecordsError is returned by FailOnDuplicates when a subdomain has more than one A record.
type MultipleRecordsError struct {
	Domain    string
	Subdomain string
	Count     int
}

func (e *MultipleRecordsError) Error() string {
	return fmt.Sprintf("%s: subdomain %q has %d A records", e.Domain, e.Subdomain, e.Count)
}
