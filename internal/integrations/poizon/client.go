// Package poizon is a client for the POIZON product lookup service: one
// endpoint resolves a share link to an SPU id, the other returns the
// product card with its size variants.
package poizon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/integrations/paramstore"
)

const (
	userAgent      = "SQUARE-Bot/1.0"
	defaultTimeout = 30 * time.Second
	noSizeLabel    = "N/A"
)

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	Success bool   `json:"success"`
	SPUID   string `json:"spu_id"`
	Error   string `json:"error"`
}

type productRequest struct {
	SPUID string `json:"spu_id"`
}

type productResponse struct {
	Success bool         `json:"success"`
	Product *productCard `json:"product"`
	Error   string       `json:"error"`
}

type productCard struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	SPU   string `json:"spu"`
	Image struct {
		Src string `json:"src"`
	} `json:"image"`
	Variants []productVariant `json:"variants"`
}

type productVariant struct {
	ID                string `json:"id"`
	Price             string `json:"price"`
	Available         bool   `json:"available"`
	InventoryQuantity *int   `json:"inventory_quantity"`
	Option2           string `json:"option2"`
	Options           []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"options"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("poizon: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls the lookup service over HTTP.
type Client struct {
	extractURL string
	productURL string
	httpClient *http.Client

	getter  paramstore.Getter
	keyName string
	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout replaces the default 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithAPIKey sends the {"token": ...} secret stored at name as X-Api-Key.
// A missing parameter disables the header.
func WithAPIKey(g paramstore.Getter, name string) Option {
	return func(c *Client) {
		c.getter = g
		c.keyName = strings.TrimSpace(name)
	}
}

// NewClient creates a Client for the two lookup endpoints.
func NewClient(extractURL, productURL string, opts ...Option) (*Client, error) {
	extractURL = strings.TrimSpace(extractURL)
	productURL = strings.TrimSpace(productURL)
	if extractURL == "" || productURL == "" {
		return nil, errors.New("poizon: endpoint URLs must not be empty")
	}
	c := &Client{
		extractURL: extractURL,
		productURL: productURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	if c.getter == nil || c.keyName == "" {
		return "", nil
	}
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = paramstore.OptionalToken(ctx, c.getter, c.keyName)
	})
	return c.apiKey, c.keyErr
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// ResolveReference turns a share link into the product's SPU id.
func (c *Client) ResolveReference(ctx context.Context, link string) (string, error) {
	var payload extractResponse
	if err := c.post(ctx, c.extractURL, extractRequest{URL: link}, &payload); err != nil {
		return "", fmt.Errorf("poizon: extract spu: %w", err)
	}
	if !payload.Success || strings.TrimSpace(payload.SPUID) == "" {
		slog.Warn("poizon spu extraction rejected", "error", payload.Error, "url", truncate(link, 50))
		return "", fmt.Errorf("poizon: extract spu: %w", domain.ErrNotFound)
	}
	return payload.SPUID, nil
}

// FetchDetails returns a validated product snapshot for ref.
func (c *Client) FetchDetails(ctx context.Context, ref string) (domain.ProductSnapshot, error) {
	var payload productResponse
	if err := c.post(ctx, c.productURL, productRequest{SPUID: ref}, &payload); err != nil {
		return domain.ProductSnapshot{}, fmt.Errorf("poizon: product data: %w", err)
	}
	if !payload.Success || payload.Product == nil {
		slog.Warn("poizon product lookup rejected", "error", payload.Error, "spu_id", ref)
		return domain.ProductSnapshot{}, fmt.Errorf("poizon: product data: %w", domain.ErrNotFound)
	}
	snap, err := toSnapshot(*payload.Product)
	if err != nil {
		return domain.ProductSnapshot{}, fmt.Errorf("poizon: product %s: %w", ref, err)
	}
	if err := snap.Validate(); err != nil {
		return domain.ProductSnapshot{}, fmt.Errorf("poizon: product %s: %w", ref, err)
	}
	return snap, nil
}

// Health calls the service's /health endpoint next to extract-spu.
func (c *Client) Health(ctx context.Context) error {
	url := strings.TrimSuffix(c.extractURL, "/extract-spu") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("poizon: create health request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if _, err := c.doJSONRequest(req, url); err != nil {
		return fmt.Errorf("poizon: health: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func toSnapshot(p productCard) (domain.ProductSnapshot, error) {
	snap := domain.ProductSnapshot{
		ID:       p.ID,
		SPU:      p.SPU,
		Title:    strings.TrimSpace(p.Title),
		ImageURL: NormalizeImageURL(p.Image.Src),
		Variants: make([]domain.Variant, 0, len(p.Variants)),
	}
	for _, v := range p.Variants {
		price, err := strconv.ParseFloat(strings.TrimSpace(v.Price), 64)
		if err != nil {
			return domain.ProductSnapshot{}, fmt.Errorf("%w: variant %s price %q", domain.ErrMalformedProduct, v.ID, v.Price)
		}
		inStock := v.Available && (v.InventoryQuantity == nil || *v.InventoryQuantity > 0)
		snap.Variants = append(snap.Variants, domain.Variant{
			ID:        v.ID,
			Price:     price,
			Available: inStock,
			SizeLabel: sizeLabel(v),
		})
	}
	return snap, nil
}

func sizeLabel(v productVariant) string {
	if s := strings.TrimSpace(v.Option2); s != "" {
		return s
	}
	for _, o := range v.Options {
		if o.Name == "Size" && strings.TrimSpace(o.Value) != "" {
			return strings.TrimSpace(o.Value)
		}
	}
	return noSizeLabel
}

// NormalizeImageURL turns protocol-relative links into https links.
func NormalizeImageURL(src string) string {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
