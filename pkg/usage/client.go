package usage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/model"
	"github.com/ogulcanaydogan/bandwidth-guardian/pkg/units"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the KiwiVM API endpoint.
const DefaultBaseURL = "https://api.64clouds.com"

const maxBodySize = 1 << 20

// FetchError reports a failed attempt to read usage from the provider.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch usage: %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client reads transfer counters from the provider's service-info endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a provider client. A zero timeout falls back to 15 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchSnapshot issues one request for the account's service info and parses the
// plan size, transfer counter and next reset time. It never retries.
func (c *Client) FetchSnapshot(ctx context.Context, accountID, apiKey string) (*model.UsageSnapshot, error) {
	q := url.Values{}
	q.Set("veid", accountID)
	q.Set("api_key", apiKey)
	endpoint := c.baseURL + "/v1/getServiceInfo?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Op: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Bandwidth-Guardian/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Op: "request", Err: redactKey(err, apiKey)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Op: "read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Op: "request", Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}

	return ParseSnapshot(body)
}

// ParseSnapshot decodes a service-info response body.
func ParseSnapshot(body []byte) (*model.UsageSnapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, &FetchError{Op: "parse", Err: fmt.Errorf("invalid JSON response")}
	}
	res := gjson.ParseBytes(body)

	if code := res.Get("error"); code.Exists() && code.Int() != 0 {
		msg := res.Get("message").String()
		if msg == "" {
			msg = "no message"
		}
		return nil, &FetchError{Op: "provider", Err: fmt.Errorf("error %d: %s", code.Int(), msg)}
	}

	plan, err := numericField(res, "plan_monthly_data")
	if err != nil {
		return nil, err
	}
	used, err := numericField(res, "data_counter")
	if err != nil {
		return nil, err
	}
	reset, err := numericField(res, "data_next_reset")
	if err != nil {
		return nil, err
	}

	return &model.UsageSnapshot{
		PlanBytes:   plan,
		UsedBytes:   used,
		ResetAt:     reset,
		UsedDisplay: units.Bytes(used),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func numericField(res gjson.Result, name string) (int64, error) {
	v := res.Get(name)
	if !v.Exists() {
		return 0, &FetchError{Op: "parse", Err: fmt.Errorf("missing field %q", name)}
	}
	if v.Type != gjson.Number {
		return 0, &FetchError{Op: "parse", Err: fmt.Errorf("field %q is not a number", name)}
	}
	return v.Int(), nil
}

// redactKey keeps the API key out of transport errors, which embed the request URL.
func redactKey(err error, apiKey string) error {
	var uerr *url.Error
	if apiKey != "" && errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, url.QueryEscape(apiKey), "REDACTED")
	}
	return err
}

// Account binds a client to one set of provider credentials.
type Account struct {
	client *Client
	id     string
	apiKey string
}

// NewAccount creates a snapshot source for a single account.
func NewAccount(client *Client, accountID, apiKey string) *Account {
	return &Account{client: client, id: accountID, apiKey: apiKey}
}

// Snapshot fetches the account's current usage.
func (a *Account) Snapshot(ctx context.Context) (*model.UsageSnapshot, error) {
	return a.client.FetchSnapshot(ctx, a.id, a.apiKey)
}
