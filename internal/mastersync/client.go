// Package mastersync pulls customer master data from the external OData
// feed and reconciles it into the customer store.
package mastersync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/sells-group/emla-tracker/internal/resilience"
)

// Feed defaults.
const (
	DefaultEntityPath = "customerMaster/CustomerMaster"
	DefaultFilter     = "btpOnboardingAdvisor_userId ne null"
	DefaultPageSize   = 1000

	// maxPages stops paging a feed that never returns a short page.
	maxPages = 10_000
)

var (
	selectFields = "ID,btpOnboardingAdvisor_userId,customerId,customerName,onboardingAdvisor_userId,startDate"
	expandFields = "country($select=ID,name),emLAType($select=ID,name),region($select=ID,name)"
)

// ClientConfig configures the feed client. Credentials are optional; without
// a token URL requests go out unauthenticated.
type ClientConfig struct {
	BaseURL           string
	EntityPath        string
	Filter            string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	Scopes            []string
	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration
	Retry             resilience.RetryConfig
}

// Client fetches CustomerMaster pages with $skip/$top paging.
type Client struct {
	http     *http.Client
	cfg      ClientConfig
	limiter  *rate.Limiter
	endpoint string
}

// NewClient builds a Client. The OAuth2 token source is bound to ctx.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, eris.New("mastersync: base url is required")
	}
	if cfg.EntityPath == "" {
		cfg.EntityPath = DefaultEntityPath
	}
	if cfg.Filter == "" {
		cfg.Filter = DefaultFilter
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	base := &http.Client{Timeout: cfg.Timeout}
	hc := base
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		hc = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
		hc.Timeout = cfg.Timeout
	}

	return &Client{
		http:     hc,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.EntityPath, "/"),
	}, nil
}

type page struct {
	Value []Record `json:"value"`
	Count *int     `json:"@odata.count"`
}

// FetchAll reads every page of the feed.
func (c *Client) FetchAll(ctx context.Context) ([]Record, error) {
	log := zap.L().With(zap.String("component", "mastersync"))
	retry := c.cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("mastersync", "fetch page")
	}

	var all []Record
	for n := 0; n < maxPages; n++ {
		skip := n * c.cfg.PageSize
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "mastersync: rate limit wait")
		}
		p, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*page, error) {
			return c.fetchPage(ctx, skip)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "mastersync: fetch page at skip %d", skip)
		}
		all = append(all, p.Value...)
		log.Debug("mastersync: page fetched", zap.Int("skip", skip), zap.Int("records", len(p.Value)))

		if len(p.Value) < c.cfg.PageSize || (p.Count != nil && len(all) >= *p.Count) {
			break
		}
	}
	log.Info("mastersync: feed read", zap.Int("records", len(all)))
	return all, nil
}

func (c *Client) pageURL(skip int) string {
	// $-prefixed option names stay unescaped.
	params := []string{
		"$count=true",
		"$select=" + escape(selectFields),
		"$expand=" + escape(expandFields),
		"$filter=" + escape(c.cfg.Filter),
		fmt.Sprintf("$skip=%d", skip),
		fmt.Sprintf("$top=%d", c.cfg.PageSize),
	}
	return c.endpoint + "?" + strings.Join(params, "&")
}

func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

func (c *Client) fetchPage(ctx context.Context, skip int) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(skip), nil)
	if err != nil {
		return nil, eris.Wrap(err, "mastersync: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(resp.StatusCode, truncate(string(body), 512))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "mastersync: decode response")
	}
	if _, ok := raw["value"]; !ok {
		return nil, eris.New("mastersync: invalid OData response structure")
	}
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(err, "mastersync: decode records")
	}
	return &p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
