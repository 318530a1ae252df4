package poizon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/integrations/paramstore"
)

type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	c, err := NewClient(srv.URL+"/extract-spu", srv.URL+"/get-product-data", opts...)
	require.NoError(t, err)
	return c
}

const productJSON = `{
  "success": true,
  "product": {
    "id": "p-1",
    "title": " Nike Dunk Low ",
    "spu": "1234",
    "image": {"src": "//cdn.poizon.com/a.jpg"},
    "variants": [
      {"id": "v1", "price": "699", "available": true, "inventory_quantity": 3, "option2": "42"},
      {"id": "v2", "price": "710.50", "available": true, "options": [{"name": "Color", "value": "red"}, {"name": "Size", "value": "43"}]},
      {"id": "v3", "price": "720", "available": true, "inventory_quantity": 0, "option2": "44"},
      {"id": "v4", "price": "730", "available": false}
    ]
  }
}`

func TestNewClient_RequiresURLs(t *testing.T) {
	_, err := NewClient("", "http://x")
	require.Error(t, err)
	_, err = NewClient("http://x", " ")
	require.Error(t, err)
}

func TestResolveReference_HappyPath(t *testing.T) {
	var gotPath, gotMethod, gotAgent string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod, gotAgent = r.URL.Path, r.Method, r.Header.Get("User-Agent")
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"success":true,"spu_id":"1234"}`)
	}))
	defer srv.Close()

	ref, err := newTestClient(t, srv).ResolveReference(context.Background(), "https://dw4.co/t/A/abc")
	require.NoError(t, err)
	require.Equal(t, "1234", ref)
	require.Equal(t, "/extract-spu", gotPath)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, userAgent, gotAgent)
	require.Equal(t, "https://dw4.co/t/A/abc", body["url"])
}

func TestResolveReference_Unsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"unsupported link"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).ResolveReference(context.Background(), "https://dw4.co/x")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveReference_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).ResolveReference(context.Background(), "https://dw4.co/x")
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.HTTPStatusCode())
	require.Contains(t, statusErr.Body, "upstream down")
}

func TestFetchDetails_MapsProductCard(t *testing.T) {
	var gotPath string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, productJSON)
	}))
	defer srv.Close()

	p, err := newTestClient(t, srv).FetchDetails(context.Background(), "1234")
	require.NoError(t, err)
	require.Equal(t, "/get-product-data", gotPath)
	require.Equal(t, "1234", body["spu_id"])
	require.Equal(t, "p-1", p.ID)
	require.Equal(t, "Nike Dunk Low", p.Title)
	require.Equal(t, "https://cdn.poizon.com/a.jpg", p.ImageURL)
	require.Len(t, p.Variants, 4)
	require.Equal(t, domain.Variant{ID: "v1", Price: 699, Available: true, SizeLabel: "42"}, p.Variants[0])
	require.Equal(t, "43", p.Variants[1].SizeLabel)
	require.Equal(t, 710.5, p.Variants[1].Price)
	require.False(t, p.Variants[2].Available)
	require.Equal(t, noSizeLabel, p.Variants[3].SizeLabel)

	avail := p.AvailableVariants()
	require.Len(t, avail, 2)
	require.Equal(t, "v1", avail[0].ID)
	require.Equal(t, "v2", avail[1].ID)
}

func TestFetchDetails_Malformed(t *testing.T) {
	cases := map[string]string{
		"bad price":   `{"success":true,"product":{"id":"p","title":"t","variants":[{"id":"v","price":"abc"}]}}`,
		"zero price":  `{"success":true,"product":{"id":"p","title":"t","variants":[{"id":"v","price":"0"}]}}`,
		"no variants": `{"success":true,"product":{"id":"p","title":"t","variants":[]}}`,
		"no title":    `{"success":true,"product":{"id":"p","variants":[{"id":"v","price":"1"}]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()
			_, err := newTestClient(t, srv).FetchDetails(context.Background(), "1")
			require.ErrorIs(t, err, domain.ErrMalformedProduct)
		})
	}
}

func TestFetchDetails_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"no such spu"}`)
	}))
	defer srv.Close()
	_, err := newTestClient(t, srv).FetchDetails(context.Background(), "1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchDetails_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}))
	defer srv.Close()
	_, err := newTestClient(t, srv).FetchDetails(context.Background(), "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestAPIKey_SentAndFetchedOnce(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("X-Api-Key"))
		_, _ = io.WriteString(w, `{"success":true,"spu_id":"1"}`)
	}))
	defer srv.Close()

	g := &fakeGetter{val: `{"token":"k-123"}`}
	c := newTestClient(t, srv, WithAPIKey(g, "/bot/poizon-api-key"))
	for i := 0; i < 3; i++ {
		_, err := c.ResolveReference(context.Background(), "https://dw4.co/x")
		require.NoError(t, err)
	}
	require.Equal(t, []string{"k-123", "k-123", "k-123"}, keys)
	require.Equal(t, 1, g.calls)
}

func TestAPIKey_MissingParameterOmitsHeader(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Values("X-Api-Key")
		_, _ = io.WriteString(w, `{"success":true,"spu_id":"1"}`)
	}))
	defer srv.Close()

	g := &fakeGetter{err: paramstore.ErrNotFound}
	_, err := newTestClient(t, srv, WithAPIKey(g, "/bot/poizon-api-key")).ResolveReference(context.Background(), "https://dw4.co/x")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	require.NoError(t, newTestClient(t, srv).Health(context.Background()))
}

func TestNormalizeImageURL(t *testing.T) {
	require.Equal(t, "https://a/b.png", NormalizeImageURL("//a/b.png"))
	require.Equal(t, "http://a/b.png", NormalizeImageURL("http://a/b.png"))
	require.Empty(t, NormalizeImageURL(""))
}
