package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/susutoys/storefront/cart"
	"github.com/susutoys/storefront/cartstore"
	"github.com/susutoys/storefront/cartview"
	"github.com/susutoys/storefront/config"
	"github.com/susutoys/storefront/notify"
	"github.com/susutoys/storefront/render"
)

const (
	visitorCookie = "susu_visitor"
	msgAdded      = "Đã thêm vào giỏ hàng"
)

// Store is the persisted cart used by the add-to-cart endpoints and views.
type Store interface {
	cartview.CartStore
	Add(ctx context.Context, visitor string, e cart.Entry) ([]cart.Entry, error)
}

type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	store    Store
	renderer *render.Renderer
	views    *cartview.Registry
	deps     cartview.Deps
}

func NewServer(cfg config.Config, log zerolog.Logger, store Store, deps cartview.Deps) (*Server, error) {
	views, err := cartview.NewRegistry(cfg.ViewCacheSize)
	if err != nil {
		return nil, err
	}
	deps.Store = store
	return &Server{cfg: cfg, log: log, store: store, renderer: deps.Renderer, views: views, deps: deps}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/_healthz", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/cart", s.handleCart)
	r.Post("/cart/add", s.handleAdd)
	r.Post("/cart/buy", s.handleBuy)
	r.Route("/cart/v/{id}", func(r chi.Router) {
		r.Get("/", s.handleView)
		r.Post("/action", s.handleAction)
		r.Get("/status", s.handleStatus)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return otelhttp.NewHandler(c.Handler(r), "storefront-cart")
}

// Close drops every open view and its timers.
func (s *Server) Close() { s.views.Purge() }

func (s *Server) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

// visitorID identifies the browser; there is no login on the storefront.
func (s *Server) visitorID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(visitorCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func viewPath(id string) string { return "/cart/v/" + id }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// El listado de productos vive fuera de este servicio; la raíz abre el carrito.
	s.handleCart(w, r)
}

// handleCart opens a fresh view from the persisted cart.
func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	visitor := s.visitorID(w, r)
	ctx, cancel := s.ctx(r)
	defer cancel()

	view, err := cartview.Open(ctx, visitor, s.deps)
	if err != nil {
		s.log.Error().Err(err).Str("visitor", visitor).Msg("open cart view")
		httpError(w, "no se pudo cargar el carrito: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if msg := r.URL.Query().Get("msg"); msg != "" {
		view.Notify(msg, severity(r.URL.Query().Get("sev")))
	}
	s.views.Add(view)
	http.Redirect(w, r, viewPath(view.ID), http.StatusSeeOther)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*cartview.View, bool) {
	visitor := s.visitorID(w, r)
	view, ok := s.views.Get(chi.URLParam(r, "id"))
	if !ok || view.Visitor != visitor {
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return nil, false
	}
	return view, true
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if dest := view.Navigated(); dest != "" {
		s.views.Remove(view.ID)
		http.Redirect(w, r, homeURL(dest), http.StatusSeeOther)
		return
	}

	var buf bytes.Buffer
	if err := s.renderer.Page(&buf, view.Page(viewPath(view.ID)+"/action")); err != nil {
		s.log.Error().Err(err).Str("view", view.ID).Msg("template render error")
		httpError(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// handleAction dispatches a posted control and redirects back (PRG).
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	view, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	gen, err := strconv.ParseUint(r.PostForm.Get("gen"), 10, 64)
	if err != nil {
		httpError(w, "generación inválida", http.StatusBadRequest)
		return
	}
	err = view.Act(r.PostForm.Get("container"), gen, r.PostForm.Get("control"), r.PostForm.Get("payment"))
	switch {
	case err == nil:
	case errors.Is(err, render.ErrStaleControl), errors.Is(err, render.ErrMissingContainer):
		s.log.Debug().Err(err).Str("view", view.ID).Msg("stale submit ignored")
	default:
		s.log.Info().Err(err).Str("view", view.ID).Msg("action rejected")
	}
	http.Redirect(w, r, viewPath(view.ID), http.StatusSeeOther)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, ok := s.views.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, `{"error":"view not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view.Status())
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if !s.addFromForm(w, r) {
		return
	}
	from := r.PostForm.Get("from")
	if !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") {
		from = "/cart"
	}
	http.Redirect(w, r, withMsg(from, msgAdded), http.StatusSeeOther)
}

// handleBuy adds the product and goes straight to the cart.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	if !s.addFromForm(w, r) {
		return
	}
	http.Redirect(w, r, withMsg("/cart", msgAdded), http.StatusSeeOther)
}

func (s *Server) addFromForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		httpError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	id, _ := strconv.ParseInt(r.PostForm.Get("id"), 10, 64)
	price, err := strconv.ParseInt(r.PostForm.Get("price"), 10, 64)
	if id <= 0 || err != nil || price < 0 {
		httpError(w, "producto inválido", http.StatusBadRequest)
		return false
	}
	qty, _ := strconv.Atoi(r.PostForm.Get("quantity"))
	if qty <= 0 {
		qty = 1
	}
	visitor := s.visitorID(w, r)

	ctx, cancel := s.ctx(r)
	defer cancel()
	entries, err := s.store.Add(ctx, visitor, cart.Entry{
		ID:       id,
		Name:     r.PostForm.Get("name"),
		Price:    price,
		Quantity: qty,
		Image:    r.PostForm.Get("image"),
	})
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, cartstore.ErrMalformedEntry) {
			code = http.StatusBadRequest
		}
		s.log.Error().Err(err).Str("visitor", visitor).Int64("product", id).Msg("add to cart")
		httpError(w, err.Error(), code)
		return false
	}
	s.log.Info().Str("visitor", visitor).Int64("product", id).Int("lines", len(entries)).Msg("added to cart")
	return true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func withMsg(path, msg string) string {
	u, err := neturl.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set("msg", msg)
	q.Set("sev", string(notify.Success))
	u.RawQuery = q.Encode()
	return u.String()
}

// homeURL maps a navigation destination to a site path.
func homeURL(dest string) string {
	if strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "http") {
		return dest
	}
	return "/" + dest
}

func severity(v string) notify.Severity {
	switch notify.Severity(v) {
	case notify.Success, notify.Error, notify.Warning:
		return notify.Severity(v)
	}
	return notify.Info
}

func httpError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte("<pre>" + template.HTMLEscapeString(msg) + "</pre>"))
}
