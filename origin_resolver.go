package ddns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultOriginURL answers with {"origin": "<caller ip>"}.
const DefaultOriginURL = "http://httpbin.org/ip"

var DefaultResolver Resolver = OriginResolver(DefaultOriginURL)

// OriginResolver constructs a resolver that asks a single web service for our public IP.
//
// The service must answer with a JSON object of the form {"origin": "<ip>"}.
// The origin value is returned verbatim;
// some services report a comma-separated list when the request went through proxies
// and that list is not split or validated here.
// A single failed request is an error; there is no retry.
func OriginResolver(serviceURL string) Resolver {
	return &originResolver{serviceURL: serviceURL}
}

type originResolver struct {
	httpClient *http.Client
	serviceURL string
}

func (r *originResolver) SetHTTPClient(c *http.Client) { r.httpClient = c }

// Resolve implements ddns.Resolver.
func (r *originResolver) Resolve(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.serviceURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := r.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: ip lookup failed: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: ip lookup returned %s", ErrNetwork, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading ip lookup response: %w", ErrNetwork, err)
	}

	var result struct {
		Origin *string `json:"origin"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decoding ip lookup response: %w", ErrFormat, err)
	}
	if result.Origin == nil {
		return "", fmt.Errorf("%w: ip lookup response has no \"origin\" field", ErrFormat)
	}
	return *result.Origin, nil
}
