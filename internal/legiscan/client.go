// Package legiscan is a client for the LegiScan legislative-data API.
// Requests are rate limited per client instance and retried with
// exponential backoff on HTTP 429; every other fault surfaces
// immediately as a ProviderError.
package legiscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/policypulse/billsync/internal/resilience"
)

// DefaultBaseURL is the production LegiScan API endpoint.
const DefaultBaseURL = "https://api.legiscan.com"

// DefaultAIQuery is the full-text search query used to surface
// AI-related legislation across jurisdictions.
const DefaultAIQuery = "(digital NEAR replica) OR (computer-generated) OR (digital NEAR forger) OR " +
	"(artificial NEAR intelligence) OR (automated NEAR decision NEAR making) OR " +
	"(automatic NEAR decision NEAR making) OR (decision NEAR making NEAR tool) OR " +
	"(automated NEAR decision NEAR tool) OR (automatic NEAR decision NEAR tool) OR " +
	"(automated NEAR decision NEAR system) OR (automatic NEAR decision NEAR system) OR " +
	"(automated NEAR final NEAR decision) OR (automatic NEAR final NEAR decision) OR " +
	"(face NEAR recog) OR (facial NEAR recog) OR (voice NEAR recog) OR " +
	"(iris NEAR recog) OR (gait NEAR recog) OR (genAI) OR (gen-AI) OR " +
	"(generative NEAR AI) OR (generative NEAR tech) OR (generative NEAR model) OR " +
	"(generative NEAR artificial) OR (machine NEAR learning) OR (deep NEAR learning) OR " +
	"(chat NEAR bot) OR (virtual NEAR assistant) OR (ChatGPT) OR (Chat-GPT) OR " +
	"(language NEAR model) OR (AI NEAR task NEAR force) OR (AI NEAR advis) OR " +
	"(AI NEAR audit) OR (AI NEAR generate) OR (AI NEAR snoop) OR (deep NEAR fake) OR " +
	"(synthetic NEAR media) OR (digital NEAR assistant) OR (natural NEAR language NEAR process) OR " +
	"(computer NEAR vision) OR (frontier NEAR model) OR (software NEAR agent) OR " +
	"(embodied NEAR robot) OR (foundation NEAR model) OR (LLM) OR (LLMs) OR " +
	"(Information NEAR Technology NEAR Act)"

// Client issues rate-limited, retrying requests to LegiScan. Requests
// are strictly serial per instance; the limiter enforces a minimum
// interval between them.
type Client struct {
	apiKey      string
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration

	// Informational only; mutated on every successful request.
	requestCount  int
	lastRequestAt time.Time
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom API endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMinInterval sets the minimum spacing between requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithMaxRetries sets how many times a 429 response is retried before
// the client gives up with ErrRateLimitExceeded.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseBackoff sets the wait before the first 429 retry; each
// subsequent retry doubles it.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) { c.baseBackoff = d }
}

// New creates a LegiScan client. Defaults: 100ms between requests,
// 3 retries on 429 with a 60s base backoff.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		maxRetries:  3,
		baseBackoff: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestCount returns the number of successful requests issued.
func (c *Client) RequestCount() int {
	return c.requestCount
}

type alert struct {
	Message string `json:"message"`
}

type searchPayload struct {
	Summary SearchSummary  `json:"summary"`
	Results []SearchResult `json:"results"`
}

type envelope struct {
	Status       string         `json:"status"`
	Alert        alert          `json:"alert"`
	SearchResult *searchPayload `json:"searchresult"`
	Bill         *RawBill       `json:"bill"`
	Text         *RawText       `json:"text"`
}

// request performs one API operation, retrying only on 429.
func (c *Client) request(ctx context.Context, op string, params map[string]string) (*envelope, error) {
	cfg := resilience.RetryConfig{
		MaxRetries:  c.maxRetries,
		BaseBackoff: c.baseBackoff,
		OnRetry:     resilience.RetryLogger("legiscan", op),
	}

	env, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*envelope, error) {
		return c.do(ctx, op, params)
	})
	if err != nil {
		if resilience.IsRateLimited(err) {
			return nil, eris.Wrapf(ErrRateLimitExceeded, "legiscan: %s", op)
		}
		return nil, err
	}
	return env, nil
}

// do issues a single request. The limiter wait enforces the minimum
// inter-request spacing for this client instance.
func (c *Client) do(ctx context.Context, op string, params map[string]string) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Op: op, Err: eris.Wrap(err, "rate limiter wait")}
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("op", op)
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, &ProviderError{Op: op, Err: eris.Wrap(err, "create request")}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: op, Err: eris.Wrap(err, "http get")}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.NewRateLimitedError(eris.Errorf("legiscan: %s: http 429", op))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Op: op, Err: eris.Errorf("http %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &ProviderError{Op: op, Err: eris.Wrap(err, "decode response")}
	}
	if env.Status != "OK" {
		return nil, &ProviderError{Op: op, Message: env.Alert.Message}
	}

	c.requestCount++
	c.lastRequestAt = time.Now()
	return &env, nil
}

// Search issues one bulk search request and filters the results to
// those with relevance >= minRelevance. raw selects getSearchRaw (bulk,
// loosely structured, no state/bill_number fields) over getSearch.
// state is a region code or "ALL". The search never paginates.
func (c *Client) Search(ctx context.Context, query, state string, minRelevance int, raw bool) ([]SearchResult, SearchSummary, error) {
	op := "getSearch"
	if raw {
		op = "getSearchRaw"
	}

	log := zap.L().With(zap.String("op", op), zap.String("state", state))
	log.Info("searching provider")

	env, err := c.request(ctx, op, map[string]string{
		"query": query,
		"state": state,
	})
	if err != nil {
		return nil, SearchSummary{}, err
	}

	var results []SearchResult
	var summary SearchSummary
	if env.SearchResult != nil {
		results = env.SearchResult.Results
		summary = env.SearchResult.Summary
	}

	filtered := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Relevance >= minRelevance {
			filtered = append(filtered, r)
		}
	}

	log.Info("search complete",
		zap.Int("total", summary.Count),
		zap.Int("returned", len(results)),
		zap.Int("min_relevance", minRelevance),
		zap.Int("filtered", len(filtered)),
	)
	return filtered, summary, nil
}

// FetchBill fetches one full bill record by its provider id.
func (c *Client) FetchBill(ctx context.Context, billID int) (RawBill, error) {
	env, err := c.request(ctx, "getBill", map[string]string{"id": strconv.Itoa(billID)})
	if err != nil {
		return RawBill{}, err
	}
	if env.Bill == nil {
		return RawBill{}, &ProviderError{Op: "getBill", Message: "empty bill payload"}
	}
	return *env.Bill, nil
}

// FetchBillText fetches one bill text document by its provider doc id.
// The document body is base64-encoded by the provider.
func (c *Client) FetchBillText(ctx context.Context, textID int) (RawText, error) {
	env, err := c.request(ctx, "getBillText", map[string]string{"id": strconv.Itoa(textID)})
	if err != nil {
		return RawText{}, err
	}
	if env.Text == nil {
		return RawText{}, &ProviderError{Op: "getBillText", Message: "empty text payload"}
	}
	return *env.Text, nil
}
