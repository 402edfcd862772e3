package providers

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
	"time"

	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/metrics"
)

// PostgRESTProvider implements RecordStore against a PostgREST (Supabase) endpoint
type PostgRESTProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	metrics *metrics.MetricsRegistry
}

// PostgRESTOptions tunes the HTTP client behind the provider.
type PostgRESTOptions struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
}

var _ RecordStore = (*PostgRESTProvider)(nil)

// NewPostgRESTProvider creates a new record store client for baseURL
func NewPostgRESTProvider(baseURL, apiKey string, opts PostgRESTOptions, m *metrics.MetricsRegistry) *PostgRESTProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.MaxConnsPerHost > 0 {
		transport.MaxConnsPerHost = opts.MaxConnsPerHost
		transport.MaxIdleConnsPerHost = opts.MaxConnsPerHost
	}
	if opts.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = opts.IdleConnTimeout
	}

	return &PostgRESTProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		metrics: m,
	}
}

// GetProviderType returns the provider type identifier
func (p *PostgRESTProvider) GetProviderType() string {
	return "postgrest"
}

// Create inserts a record and returns the stored representation
func (p *PostgRESTProvider) Create(ctx context.Context, collection constants.Collection, record Record) (Record, error) {
	start := time.Now()
	var rows []Record
	_, err := p.do(ctx, http.MethodPost, p.endpoint(collection, nil), record, &rows)
	p.observe(collection, "create", start, err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// return=representation was ignored; fall back to what was sent
		return record, nil
	}
	return rows[0], nil
}

// Query fetches every record matching filter
func (p *PostgRESTProvider) Query(ctx context.Context, collection constants.Collection, filter Filter) ([]Record, error) {
	start := time.Now()
	params := filterParams(filter)
	params.Set("select", "*")

	rows := []Record{}
	_, err := p.do(ctx, http.MethodGet, p.endpoint(collection, params), nil, &rows)
	p.observe(collection, "query", start, err)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows, nil
}

// Update patches every record matching filter
func (p *PostgRESTProvider) Update(ctx context.Context, collection constants.Collection, filter Filter, patch Record) ([]Record, error) {
	if len(filter) == 0 {
		return nil, &StoreError{
			Code:    constants.ErrCodeStoreBadRequest,
			Message: "Refusing unfiltered update of " + collection.String(),
		}
	}

	start := time.Now()
	rows := []Record{}
	_, err := p.do(ctx, http.MethodPatch, p.endpoint(collection, filterParams(filter)), patch, &rows)
	p.observe(collection, "update", start, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Ping performs the cheapest possible read against the memberships collection
func (p *PostgRESTProvider) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("select", "membership_code")
	params.Set("limit", "1")

	var rows []Record
	_, err := p.do(ctx, http.MethodGet, p.endpoint(constants.CollectionMemberships, params), nil, &rows)
	return err
}

// ============================================================================
// HTTP Helper Methods
// ============================================================================

func (p *PostgRESTProvider) endpoint(collection constants.Collection, params url.Values) string {
	u := p.BaseURL + "/rest/v1/" + url.PathEscape(collection.String())
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// filterParams renders equality predicates in PostgREST syntax (field=eq.value)
func filterParams(filter Filter) url.Values {
	params := url.Values{}
	for field, value := range filter {
		params.Set(field, "eq."+formatFilterValue(value))
	}
	return params
}

func formatFilterValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// do performs a request with authentication and an optional JSON body
func (p *PostgRESTProvider) do(ctx context.Context, method, endpoint string, payload any, result any) (int, error) {
	if p.APIKey == "" {
		return 0, &StoreError{
			Code:    constants.ErrCodeStoreUnauthorized,
			Message: "record store API key is not set",
		}
	}

	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return 0, &StoreError{
				Code:    constants.ErrCodeStoreBadRequest,
				Message: "Failed to marshal request body",
				Err:     err,
			}
		}
		body = bytes.NewReader(payloadBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, &StoreError{
			Code:    constants.ErrCodeStoreNetwork,
			Message: "Failed to create request",
			Err:     err,
		}
	}

	req.Header.Set("apikey", p.APIKey)
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost || method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, &StoreError{
			Code:    constants.ErrCodeStoreNetwork,
			Message: constants.GetErrorMessage(constants.ErrCodeStoreNetwork),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return resp.StatusCode, &StoreError{
			Status:  resp.StatusCode,
			Code:    constants.ErrCodeStoreNetwork,
			Message: "Failed to read response body",
			Err:     readErr,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, p.buildHTTPError(resp.StatusCode, method, endpoint, string(bodyBytes))
	}

	if result == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return resp.StatusCode, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(bodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(result); err != nil {
		return resp.StatusCode, &StoreError{
			Status:  resp.StatusCode,
			Code:    constants.ErrCodeStoreDecode,
			Message: constants.GetErrorMessage(constants.ErrCodeStoreDecode),
			Details: string(bodyBytes),
			Err:     err,
		}
	}

	return resp.StatusCode, nil
}

// buildHTTPError creates appropriate error based on status code
func (p *PostgRESTProvider) buildHTTPError(statusCode int, method, endpoint, body string) error {
	code := constants.ErrCodeStoreInternal
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = constants.ErrCodeStoreUnauthorized
	case http.StatusNotFound:
		code = constants.ErrCodeStoreNotFound
	case http.StatusConflict:
		code = constants.ErrCodeStoreConflict
	case http.StatusBadRequest:
		code = constants.ErrCodeStoreBadRequest
	}

	return &StoreError{
		Status:  statusCode,
		Code:    code,
		Message: fmt.Sprintf("%s %s: %s", method, redactQuery(endpoint), upstreamMessage(body, code)),
		Details: body,
	}
}

// upstreamMessage extracts PostgREST's {"message": ...} when present
func upstreamMessage(body, code string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return constants.GetErrorMessage(code)
}

// redactQuery strips the query string, which may carry PINs or keys
func redactQuery(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

func (p *PostgRESTProvider) observe(collection constants.Collection, op string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.StoreRequestsTotal.WithLabelValues(collection.String(), op, outcome).Inc()
	p.metrics.StoreRequestDuration.WithLabelValues(collection.String(), op).Observe(time.Since(start).Seconds())
}
