package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susutoys/storefront/cartstore"
	"github.com/susutoys/storefront/cartview"
	"github.com/susutoys/storefront/checkout"
	"github.com/susutoys/storefront/config"
	"github.com/susutoys/storefront/events"
	"github.com/susutoys/storefront/render"
)

var genRe = regexp.MustCompile(`id="cart-form"[^>]*>\s*<input type="hidden" name="container" value="cart-container">\s*<input type="hidden" name="gen" value="(\d+)">`)

type testEnv struct {
	ts     *httptest.Server
	client *http.Client
	sched  *checkout.ManualScheduler
	store  *cartstore.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.FromEnv()
	cfg.ViewCacheSize = 16
	cfg.Checkout = checkout.DefaultConfig()

	r, err := render.New(zerolog.Nop())
	require.NoError(t, err)
	sched := checkout.NewManualScheduler()
	store := cartstore.New(cartstore.NewMemoryKV(), zerolog.Nop())
	srv, err := NewServer(cfg, zerolog.Nop(), store, cartview.Deps{
		Renderer:  r,
		Scheduler: sched,
		Publisher: events.Nop{},
		Checkout:  cfg.Checkout,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{ts: ts, client: &http.Client{Jar: jar}, sched: sched, store: store}
}

func (e *testEnv) visitor(t *testing.T) string {
	u, _ := url.Parse(e.ts.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == visitorCookie {
			return c.Value
		}
	}
	t.Fatal("no visitor cookie")
	return ""
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.ts.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.ts.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func currentGen(t *testing.T, body string) string {
	t.Helper()
	m := genRe.FindStringSubmatch(body)
	require.Len(t, m, 2, "cart form not found")
	return m[1]
}

func addProduct(t *testing.T, e *testEnv) (string, string) {
	t.Helper()
	resp, body := e.postForm(t, "/cart/add", url.Values{
		"id": {"1"}, "name": {"Gấu bông"}, "price": {"100000"}, "image": {"images/bear.png"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Request.URL.Path, "/cart/v/"), resp.Request.URL.Path)
	return resp.Request.URL.Path, body
}

func TestServer_Health(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.get(t, "/_healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestServer_AddAndRenderCart(t *testing.T) {
	e := newTestEnv(t)
	_, body := addProduct(t, e)

	assert.Contains(t, body, "Đã thêm vào giỏ hàng")
	assert.Contains(t, body, "Gấu bông")
	assert.Contains(t, body, `src="../images/bear.png"`)
	assert.Contains(t, body, "150.000 ₫")

	_, body = e.postForm(t, "/cart/buy", url.Values{"id": {"1"}, "name": {"Gấu bông"}, "price": {"100000"}})
	assert.Contains(t, body, "250.000 ₫")

	entries, err := e.store.Load(context.Background(), e.visitor(t))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Quantity)
}

func TestServer_AddRejectsBadProduct(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.postForm(t, "/cart/add", url.Values{"id": {"x"}, "price": {"10"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "<pre>")
}

func TestServer_ActionsAndStaleSubmit(t *testing.T) {
	e := newTestEnv(t)
	path, body := addProduct(t, e)
	gen := currentGen(t, body)

	form := url.Values{"container": {"cart-container"}, "gen": {gen}, "control": {"inc-0"}, "payment": {"cod"}}
	resp, body := e.postForm(t, path+"/action", form)
	assert.Equal(t, path, resp.Request.URL.Path)
	assert.Contains(t, body, "Tổng: <span>200.000 ₫</span>")

	// Double submit of the same paint.
	_, body = e.postForm(t, path+"/action", form)
	assert.Contains(t, body, "Tổng: <span>200.000 ₫</span>")

	_, raw := e.get(t, path+"/status")
	var st cartview.Status
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	assert.Equal(t, 2, st.Cart.Lines[0].Quantity)
	assert.Equal(t, "IDLE", st.State)
}

func TestServer_CashOnDeliveryNavigatesHome(t *testing.T) {
	e := newTestEnv(t)
	path, body := addProduct(t, e)

	_, body = e.postForm(t, path+"/action", url.Values{
		"container": {"cart-container"}, "gen": {currentGen(t, body)}, "control": {"checkout"}, "payment": {"cod"},
	})
	assert.Contains(t, body, checkout.MsgOrderPlaced)
	assert.Contains(t, body, `http-equiv="refresh"`)

	e.sched.Advance(1500 * time.Millisecond)
	resp, _ := e.get(t, path)
	assert.NotEqual(t, path, resp.Request.URL.Path)
	assert.True(t, strings.HasPrefix(resp.Request.URL.Path, "/cart/v/"))

	assert.Eventually(t, func() bool {
		entries, err := e.store.Load(context.Background(), e.visitor(t))
		return err == nil && len(entries) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestServer_QRCountdownAndCancel(t *testing.T) {
	e := newTestEnv(t)
	path, body := addProduct(t, e)

	_, body = e.postForm(t, path+"/action", url.Values{
		"container": {"cart-container"}, "gen": {currentGen(t, body)}, "control": {"checkout"}, "payment": {"momo"},
	})
	assert.Contains(t, body, "Quét mã QR để thanh toán")
	assert.Contains(t, body, "Đang xử lý... 10s")

	e.sched.Advance(4 * time.Second)
	_, body = e.get(t, path)
	assert.Contains(t, body, "Đang xử lý... 6s")

	m := regexp.MustCompile(`id="qr-form"[^>]*>\s*<input type="hidden" name="container" value="qr-modal">\s*<input type="hidden" name="gen" value="(\d+)">`).FindStringSubmatch(body)
	require.Len(t, m, 2)
	_, body = e.postForm(t, path+"/action", url.Values{"container": {"qr-modal"}, "gen": {m[1]}, "control": {"qr-close"}})
	assert.NotContains(t, body, "Quét mã QR để thanh toán")

	e.sched.Advance(time.Minute)
	resp, _ := e.get(t, path)
	assert.Equal(t, path, resp.Request.URL.Path)

	entries, err := e.store.Load(context.Background(), e.visitor(t))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestServer_UnknownViewRedirectsToCart(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.get(t, "/cart/v/does-not-exist")
	assert.True(t, strings.HasPrefix(resp.Request.URL.Path, "/cart/v/"))
	assert.NotEqual(t, "/cart/v/does-not-exist", resp.Request.URL.Path)

	st, err := http.Get(e.ts.URL + "/cart/v/nope/status")
	require.NoError(t, err)
	st.Body.Close()
	assert.Equal(t, http.StatusNotFound, st.StatusCode)
}

func TestHomeURL(t *testing.T) {
	assert.Equal(t, "/index.html", homeURL("index.html"))
	assert.Equal(t, "/", homeURL("/"))
	assert.Equal(t, "https://susutoys.vn/", homeURL("https://susutoys.vn/"))
}
