package netatmo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Vendor endpoints. The base URL is configurable for tests only.
const (
	defaultBaseURL = "https://api.netatmo.com"

	authorizePath    = "/oauth2/authorize"
	tokenPath        = "/oauth2/token"
	stationsDataPath = "/api/getstationsdata"
)

// requestTimeout bounds individual API calls independently of the caller's
// context.
const requestTimeout = 30 * time.Second

// maxErrorBody caps how much of a vendor error response is read.
const maxErrorBody = 4 << 10

// apiClient performs authenticated calls against the Netatmo data API.
// Token handling lives in Session; this type only speaks HTTP.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient builds a client for the given base URL ("" for production).
func newAPIClient(baseURL string) *apiClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// vendorError mirrors the error envelope Netatmo returns on failures.
type vendorError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// fetchStations calls getstationsdata and returns the flattened module list.
//
// Parameters:
//   - ctx: Context for cancellation
//   - accessToken: Bearer token for the call
//
// Returns:
//   - []Module: Stations and attached modules, flattened
//   - error: errUnauthorized on 401/403, wrapped transport/decode errors otherwise
func (c *apiClient) fetchStations(ctx context.Context, accessToken string) ([]Module, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+stationsDataPath, nil)
	if err != nil {
		return nil, fmt.Errorf("netatmo: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netatmo: getstationsdata: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", errUnauthorized, resp.StatusCode)
	default:
		return nil, fmt.Errorf("netatmo: getstationsdata: status %d: %s",
			resp.StatusCode, readVendorError(resp.Body))
	}

	var parsed stationsDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("netatmo: decoding getstationsdata response: %w", err)
	}

	return flattenStations(parsed), nil
}

// readVendorError extracts the vendor's error message from a failed
// response body, falling back to a generic marker. Never includes
// credentials — the vendor echoes only its own diagnostics.
func readVendorError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var ve vendorError
	if err := json.Unmarshal(data, &ve); err != nil || ve.Error.Message == "" {
		return "unparseable error detail"
	}

	return fmt.Sprintf("%s (code %d)", ve.Error.Message, ve.Error.Code)
}
