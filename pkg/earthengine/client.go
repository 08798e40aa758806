package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://rasterengine.googleapis.com/v1"

// TokenSource supplies a bearer token for engine requests. Credential
// negotiation lives with the caller; the client only attaches what it is
// given.
type TokenSource func(ctx context.Context) (string, error)

// Option configures the REST client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTokenSource sets the bearer token supplier.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		// Fractional rates would truncate to a zero burst, which makes the
		// limiter reject every request.
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Client talks to the raster engine's REST API. It implements Engine.
type Client struct {
	project string
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
}

// NewClient creates an engine client scoped to a cloud project.
func NewClient(project string, opts ...Option) *Client {
	c := &Client{
		project: project,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Engine = (*Client)(nil)

// FilterCollection implements Engine. Filtering is encoded into the
// expression graph; no request is issued until the collection is consumed.
func (c *Client) FilterCollection(ctx context.Context, id string, region *geom.Polygon, start, end time.Time) (Collection, error) {
	if id == "" {
		return Collection{}, eris.New("earthengine: collection id is empty")
	}
	if region == nil {
		return Collection{}, eris.New("earthengine: filter region is nil")
	}
	return NewCollection(id, region, start, end), nil
}

type sizeRequest struct {
	Expression *Op `json:"expression"`
}

type sizeResponse struct {
	Size int `json:"size"`
}

// Size implements Engine.
func (c *Client) Size(ctx context.Context, col Collection) (int, error) {
	if col.IsZero() {
		return 0, eris.New("earthengine: size of undefined collection")
	}
	var out sizeResponse
	if err := c.post(ctx, "collection:size", sizeRequest{Expression: col.Op()}, &out); err != nil {
		return 0, eris.Wrap(err, "earthengine: collection size")
	}
	return out.Size, nil
}

type reduceRequest struct {
	Expression *Op           `json:"expression"`
	Region     [][][]float64 `json:"region"`
	Reducer    Reducer       `json:"reducer"`
	Scale      float64       `json:"scale"`
	MaxPixels  int64         `json:"maxPixels"`
}

type reduceResponse struct {
	Value float64 `json:"value"`
}

// ReduceRegion implements Engine.
func (c *Client) ReduceRegion(ctx context.Context, img Image, region *geom.Polygon, r Reducer, scale float64, maxPixels int64) (float64, error) {
	if img.IsZero() {
		return 0, eris.New("earthengine: reduce of undefined image")
	}
	req := reduceRequest{
		Expression: img.Op(),
		Region:     PolygonCoordinates(region),
		Reducer:    r,
		Scale:      scale,
		MaxPixels:  maxPixels,
	}
	var out reduceResponse
	if err := c.post(ctx, "value:compute", req, &out); err != nil {
		return 0, eris.Wrapf(err, "earthengine: reduce region (%s)", r)
	}
	return out.Value, nil
}

type mapRequest struct {
	Expression    *Op       `json:"expression"`
	Visualization VisParams `json:"visualization"`
}

type mapResponse struct {
	Name    string `json:"name"`
	TileURL string `json:"tileUrl"`
}

// MapTiles implements Engine.
func (c *Client) MapTiles(ctx context.Context, img Image, vis VisParams) (string, error) {
	if img.IsZero() {
		return "", eris.New("earthengine: map tiles of undefined image")
	}
	var out mapResponse
	if err := c.post(ctx, "maps", mapRequest{Expression: img.Op(), Visualization: vis}, &out); err != nil {
		return "", eris.Wrap(err, "earthengine: create map")
	}
	if out.TileURL != "" {
		return out.TileURL, nil
	}
	if out.Name == "" {
		return "", eris.New("earthengine: map response missing tile url")
	}
	return fmt.Sprintf("%s/%s/tiles/{z}/{x}/{y}", c.baseURL, out.Name), nil
}

// apiError is the engine's structured error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *Client) retryDo(ctx context.Context, req *http.Request, body []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)
		retryReq.Body = io.NopCloser(bytes.NewReader(body))

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("engine returned status %d: %s", resp.StatusCode, string(respBody))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// post issues one JSON request against a project-scoped endpoint.
func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "encode request")
	}

	reqURL := fmt.Sprintf("%s/projects/%s/%s", c.baseURL, c.project, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, tokenErr := c.tokens(ctx)
		if tokenErr != nil {
			return eris.Wrap(tokenErr, "fetch token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	respBody, status, err := c.retryDo(ctx, req, body)
	if err != nil {
		return eris.Wrap(err, "request")
	}

	if status != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		if budgetFault(status, apiErr.Error.Message) {
			return ErrBudgetExceeded
		}
		if apiErr.Error.Message != "" {
			return eris.Errorf("engine returned status %d: %s", status, apiErr.Error.Message)
		}
		return eris.Errorf("engine returned status %d", status)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "parse response")
	}
	return nil
}

// budgetFault recognizes the engine's pixel-budget refusal, which arrives
// either as 413 or as a 400 whose message names maxPixels.
func budgetFault(status int, message string) bool {
	if status == http.StatusRequestEntityTooLarge {
		return true
	}
	return status == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "maxpixels")
}
