// Package atlas is the HTTP client for the Atlas Academy game-data API.
//
// The client covers the five endpoints the bot consumes: the bulk servant
// export, the single-entity detail lookup, the dataset version info, the
// name search and the noble phantasm lookup. It never retries. An optional
// [resilience.CircuitBreaker] fails calls fast while the API is down and an
// optional token-bucket limiter caps the outbound request rate.
//
// Client is safe for concurrent use.
package atlas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/MrWong99/atlasbot/internal/entity"
	"github.com/MrWong99/atlasbot/internal/observe"
	"github.com/MrWong99/atlasbot/internal/resilience"
)

const (
	// DefaultBaseURL is the public Atlas Academy API.
	DefaultBaseURL = "https://api.atlasacademy.io"

	// DefaultRegion is the game region whose dataset is served.
	DefaultRegion = "JP"

	// DefaultLanguage requests English names where available.
	DefaultLanguage = "en"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second
)

// Endpoint labels used for spans, metrics and errors.
const (
	EndpointCatalog = "catalog"
	EndpointEntity  = "entity"
	EndpointInfo    = "info"
	EndpointSearch  = "search"
	EndpointNP      = "np"
)

// maxErrorBody caps how much of a non-2xx body is read for diagnostics.
const maxErrorBody = 4 << 10

// Client talks to the Atlas Academy API.
type Client struct {
	baseURL    string
	region     string
	language   string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	limiter    *rate.Limiter
	metrics    *observe.Metrics
}

// Option configures a [Client].
type Option func(*Client)

// WithRegion sets the game region (JP, NA, ...). Default: [DefaultRegion].
func WithRegion(region string) Option {
	return func(c *Client) {
		if region != "" {
			c.region = region
		}
	}
}

// WithLanguage sets the lang query parameter. Default: [DefaultLanguage].
func WithLanguage(lang string) Option {
	return func(c *Client) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
// Ignored when [WithHTTPClient] is also given.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBreaker guards every request with cb. Only [NetworkError] outcomes
// count as breaker failures; 404s and malformed payloads do not.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithRateLimit caps outbound requests at rps per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records request metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client for baseURL. An empty baseURL selects
// [DefaultBaseURL]; a trailing slash is stripped.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("atlas: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("atlas: base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		region:     DefaultRegion,
		language:   DefaultLanguage,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Region returns the configured game region.
func (c *Client) Region() string { return c.region }

// remoteEntity is the wire shape of a servant or enemy record. The flat
// fields map straight onto [entity.Entity]; the portrait lives in a nested
// asset map on detail responses and at the top level on search results.
type remoteEntity struct {
	entity.Entity
	ExtraAssets struct {
		Faces struct {
			Ascension map[string]string `json:"ascension"`
		} `json:"faces"`
	} `json:"extraAssets"`
}

func (r remoteEntity) toEntity() entity.Entity {
	e := r.Entity
	e.Kind = entity.KindOf(e.Type)
	if e.Face == "" {
		e.Face = r.ExtraAssets.Faces.Ascension["1"]
	}
	return e
}

// FetchCatalog downloads the full servant export for the configured region.
// Records are returned in remote order.
func (c *Client) FetchCatalog(ctx context.Context) ([]entity.Entity, error) {
	file := "nice_servant_lang_en.json"
	if c.language == "jp" {
		file = "nice_servant.json"
	}
	var raw []remoteEntity
	if err := c.get(ctx, EndpointCatalog, "/export/"+c.region+"/"+file, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]entity.Entity, len(raw))
	for i, r := range raw {
		out[i] = r.toEntity()
	}
	return out, nil
}

// FetchEntity fetches the full detail of the servant or enemy with internal
// identifier id. Returns an error matching [ErrNotFound] for unknown IDs.
func (c *Client) FetchEntity(ctx context.Context, id int) (entity.Entity, error) {
	path := "/nice/" + c.region + "/svt/" + strconv.Itoa(id)
	var raw remoteEntity
	if err := c.get(ctx, EndpointEntity, path, c.langQuery(), &raw); err != nil {
		return entity.Entity{}, err
	}
	if raw.ID == 0 {
		return entity.Entity{}, &RemoteFormatError{
			Endpoint: EndpointEntity,
			URL:      c.baseURL + path,
			Err:      errors.New("record has no id"),
		}
	}
	return raw.toEntity(), nil
}

// FetchFingerprint fetches the dataset version info of every region.
func (c *Client) FetchFingerprint(ctx context.Context) (entity.Fingerprint, error) {
	var fp entity.Fingerprint
	if err := c.get(ctx, EndpointInfo, "/info", nil, &fp); err != nil {
		return nil, err
	}
	if len(fp) == 0 {
		return nil, &RemoteFormatError{
			Endpoint: EndpointInfo,
			URL:      c.baseURL + "/info",
			Err:      errors.New("empty version info"),
		}
	}
	return fp, nil
}

// SearchByName runs the remote name search. Results carry basic fields only
// (no noble phantasms); callers needing detail follow up with
// [Client.FetchEntity]. An empty result is not an error.
func (c *Client) SearchByName(ctx context.Context, name string) ([]entity.Entity, error) {
	q := c.langQuery()
	q.Set("name", name)
	var raw []remoteEntity
	if err := c.get(ctx, EndpointSearch, "/basic/"+c.region+"/svt/search", q, &raw); err != nil {
		return nil, err
	}
	out := make([]entity.Entity, len(raw))
	for i, r := range raw {
		out[i] = r.toEntity()
	}
	return out, nil
}

// FetchNoblePhantasm fetches the noble phantasm with identifier id.
func (c *Client) FetchNoblePhantasm(ctx context.Context, id int) (entity.NoblePhantasm, error) {
	path := "/nice/" + c.region + "/NP/" + strconv.Itoa(id)
	var np entity.NoblePhantasm
	if err := c.get(ctx, EndpointNP, path, c.langQuery(), &np); err != nil {
		return entity.NoblePhantasm{}, err
	}
	if np.ID == 0 {
		return entity.NoblePhantasm{}, &RemoteFormatError{
			Endpoint: EndpointNP,
			URL:      c.baseURL + path,
			Err:      errors.New("record has no id"),
		}
	}
	return np, nil
}

func (c *Client) langQuery() url.Values {
	return url.Values{"lang": {c.language}}
}

// get performs one GET and decodes the JSON body into out. It applies the
// rate limiter and circuit breaker and records a span and metrics.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) (err error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	ctx, span := observe.StartSpan(ctx, "atlas."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("atlas.endpoint", endpoint),
			attribute.String("atlas.region", c.region),
		),
	)
	start := time.Now()
	defer func() {
		status := observe.StatusOK
		switch {
		case errors.Is(err, ErrNotFound):
			status = observe.StatusNotFound
		case err != nil:
			status = observe.StatusError
		}
		c.metrics.RecordRemoteRequest(ctx, endpoint, status, time.Since(start).Seconds())
		if status == observe.StatusNotFound {
			// A 404 is an answer, not a failure of the span.
			observe.EndSpan(span, nil)
			return
		}
		observe.EndSpan(span, err)
	}()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return &NetworkError{Endpoint: endpoint, URL: reqURL, Err: werr}
		}
	}

	if c.breaker == nil {
		return c.do(ctx, endpoint, reqURL, out)
	}

	var callErr error
	berr := c.breaker.Execute(ctx, func(ctx context.Context) error {
		callErr = c.do(ctx, endpoint, reqURL, out)
		var ne *NetworkError
		if errors.As(callErr, &ne) {
			return callErr
		}
		return nil
	})
	if errors.Is(berr, resilience.ErrCircuitOpen) {
		return &NetworkError{Endpoint: endpoint, URL: reqURL, Err: berr}
	}
	return callErr
}

// do issues the request and classifies the outcome.
func (c *Client) do(ctx context.Context, endpoint, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, URL: reqURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return notFound(resp.Body, reqURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var cause error
		if msg := strings.TrimSpace(string(body)); msg != "" {
			cause = errors.New(msg)
		}
		return &NetworkError{Endpoint: endpoint, URL: reqURL, StatusCode: resp.StatusCode, Err: cause}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &NetworkError{Endpoint: endpoint, URL: reqURL, Err: ctx.Err()}
		}
		return &RemoteFormatError{Endpoint: endpoint, URL: reqURL, Err: err}
	}
	return nil
}

// notFound builds the error for a 404, keeping the remote detail message
// when the body carries one.
func notFound(body io.Reader, reqURL string) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if json.Unmarshal(data, &payload) == nil && payload.Detail != "" {
		return fmt.Errorf("%w: %s", ErrNotFound, payload.Detail)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, reqURL)
}
