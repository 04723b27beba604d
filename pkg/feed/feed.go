package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptick/pkg/models"

	"github.com/shopspring/decimal"
)

// BaseURL can be overridden in tests.
var BaseURL = "https://api.geckoterminal.com/api/v2"

var (
	BatchTimeout = 15 * time.Second
	InfoTimeout  = 10 * time.Second
)

// ErrorKind classifies a failed feed call.
type ErrorKind int

const (
	ErrTransport ErrorKind = iota
	ErrTimeout
	ErrHTTPStatus
	ErrParse
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrHTTPStatus:
		return "http-status"
	case ErrParse:
		return "parse"
	default:
		return "transport"
	}
}

// Error is the per-call failure type consumed by the scheduler.
type Error struct {
	Kind   ErrorKind
	Status int
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == ErrHTTPStatus {
		return fmt.Sprintf("feed: %s %d %s", e.Kind, e.Status, e.URL)
	}
	return fmt.Sprintf("feed: %s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func classify(err error) ErrorKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrTransport
}

// Client talks to the price feed. It is safe for reuse across rounds; Reset
// replaces the underlying session after a crashed round.
type Client struct {
	http *http.Client
	now  func() time.Time
}

func NewClient() *Client {
	return &Client{
		http: &http.Client{},
		now:  time.Now,
	}
}

// Reset drops the current session and its idle connections.
func (c *Client) Reset() {
	c.http.CloseIdleConnections()
	c.http = &http.Client{}
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	return c.http.Do(req)
}

// flexFloat decodes a JSON number or decimal string. Malformed or missing
// values stay nil; absence is never an error.
type flexFloat struct {
	val *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	v := d.InexactFloat64()
	f.val = &v
	return nil
}

type batchPayload struct {
	Data []struct {
		Attributes struct {
			Address  string    `json:"address"`
			Name     string    `json:"name"`
			ImageURL string    `json:"image_url"`
			PriceUSD flexFloat `json:"price_usd"`
		} `json:"attributes"`
		Relationships struct {
			TopPools struct {
				Data []struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"top_pools"`
		} `json:"relationships"`
	} `json:"data"`
	Included []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			PriceChangePercentage struct {
				M5  flexFloat `json:"m5"`
				H24 flexFloat `json:"h24"`
			} `json:"price_change_percentage"`
		} `json:"attributes"`
	} `json:"included"`
}

// FetchTokenBatch issues one batched lookup for all addresses on one network.
// The returned result carries per-token samples keyed by canonical token key,
// plus any display names and icon URLs the response revealed. A non-nil Err
// means the whole batch is to be skipped for this round.
func (c *Client) FetchTokenBatch(ctx context.Context, networkID string, addrs []string) models.BatchResult {
	res := models.BatchResult{
		NetworkID: networkID,
		Samples:   map[string]models.PriceSample{},
		Names:     map[string]string{},
		IconURLs:  map[string]string{},
	}

	canon := make([]string, len(addrs))
	for i, a := range addrs {
		canon[i] = models.NormalizeAddress(a)
	}
	csv := url.PathEscape(strings.Join(canon, ","))
	rawURL := fmt.Sprintf("%s/networks/%s/tokens/multi/%s?include=top_pools&include_composition=false&_ts=%d",
		BaseURL, networkID, csv, c.now().Unix())

	ctx, cancel := context.WithTimeout(ctx, BatchTimeout)
	defer cancel()
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		res.Err = &Error{Kind: classify(err), URL: rawURL, Err: err}
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		res.Err = &Error{Kind: ErrHTTPStatus, Status: resp.StatusCode, URL: rawURL}
		return res
	}

	var payload batchPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		res.Err = &Error{Kind: ErrParse, URL: rawURL, Err: err}
		return res
	}

	pools := map[string]*struct{ m5, h24 *float64 }{}
	for _, inc := range payload.Included {
		if inc.Type != "pool" {
			continue
		}
		pools[inc.ID] = &struct{ m5, h24 *float64 }{
			m5:  inc.Attributes.PriceChangePercentage.M5.val,
			h24: inc.Attributes.PriceChangePercentage.H24.val,
		}
	}

	for _, tok := range payload.Data {
		key := models.KeyFor(networkID, tok.Attributes.Address)
		sample := models.PriceSample{Price: tok.Attributes.PriceUSD.val}
		if rel := tok.Relationships.TopPools.Data; len(rel) > 0 {
			if pool, ok := pools[rel[0].ID]; ok {
				sample.Change5m = pool.m5
				sample.Change24h = pool.h24
			}
		}
		res.Samples[key] = sample
		if tok.Attributes.Name != "" {
			res.Names[key] = tok.Attributes.Name
		}
		if tok.Attributes.ImageURL != "" {
			res.IconURLs[key] = tok.Attributes.ImageURL
		}
	}
	return res
}

// FetchTokenInfo resolves a token's display name via the single-token info
// endpoint, used once when a token is first added.
func (c *Client) FetchTokenInfo(ctx context.Context, networkID, addr string) models.TokenInfo {
	rawURL := fmt.Sprintf("%s/networks/%s/tokens/%s/info", BaseURL, networkID, models.NormalizeAddress(addr))

	ctx, cancel := context.WithTimeout(ctx, InfoTimeout)
	defer cancel()
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return models.TokenInfo{Err: &Error{Kind: classify(err), URL: rawURL, Err: err}}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return models.TokenInfo{Err: &Error{Kind: ErrHTTPStatus, Status: resp.StatusCode, URL: rawURL}}
	}

	var payload struct {
		Data struct {
			Attributes struct {
				Name string `json:"name"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.TokenInfo{Err: &Error{Kind: ErrParse, URL: rawURL, Err: err}}
	}
	return models.TokenInfo{Name: payload.Data.Attributes.Name}
}
