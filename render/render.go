// Renderizado HTML del carrito, del modal QR y de la página completa.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/susutoys/storefront/cart"
	"github.com/susutoys/storefront/checkout"
	"github.com/susutoys/storefront/notify"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Control names bound by Paint.
const (
	ControlCheckout   = "checkout"
	ControlCloseModal = "qr-close"
)

func DecrementControl(i int) string { return fmt.Sprintf("dec-%d", i) }

func IncrementControl(i int) string { return fmt.Sprintf("inc-%d", i) }

func PaymentControl(m cart.PaymentMethod) string { return "pay-" + string(m) }

// FormatVND formats an amount the vi-VN way: 1500000 -> "1.500.000 ₫".
func FormatVND(amount int64) string {
	return humanize.FormatInteger("#.###,", int(amount)) + " ₫"
}

// ImageSrc resolves product images stored relative to the site root.
func ImageSrc(img string) string {
	if strings.HasPrefix(img, "http") {
		return img
	}
	return "../" + img
}

// CartActions receives the interactions bound into a painted cart.
type CartActions interface {
	Increment(index int) error
	Decrement(index int) error
	SetPaymentMethod(m cart.PaymentMethod) error
	Checkout() error
}

type Renderer struct {
	tpl *template.Template
	log zerolog.Logger
}

func New(log zerolog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"vnd":   FormatVND,
		"image": ImageSrc,
	}
	tpl, err := template.New("render").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &Renderer{tpl: tpl, log: log.With().Str("component", "render").Logger()}, nil
}

type methodVM struct {
	Value   string
	Label   string
	Checked bool
}

type cartVM struct {
	Lines    []cart.LineView
	Subtotal int64
	Discount int64
	Total    int64
	Methods  []methodVM
}

func toCartVM(snap cart.Snapshot) cartVM {
	vm := cartVM{
		Lines:    snap.Lines,
		Subtotal: snap.Subtotal,
		Discount: snap.Discount,
		Total:    snap.Total,
	}
	for _, m := range cart.PaymentMethods {
		vm.Methods = append(vm.Methods, methodVM{
			Value:   string(m),
			Label:   m.Label(),
			Checked: m == snap.PaymentMethod,
		})
	}
	return vm
}

// Cart renders the cart fragment. Equal snapshots give byte-identical output.
func (r *Renderer) Cart(snap cart.Snapshot) (template.HTML, error) {
	return r.execute("cart", toCartVM(snap))
}

type overlayVM struct {
	*checkout.QRPayment
	Remaining int
}

// Overlay renders the QR payment modal with remaining seconds on the timer.
func (r *Renderer) Overlay(p checkout.QRPayment, remaining int) (template.HTML, error) {
	return r.execute("overlay", overlayVM{QRPayment: &p, Remaining: remaining})
}

// CartControls binds every control of a painted cart to acts.
func CartControls(snap cart.Snapshot, acts CartActions) Controls {
	c := Controls{ControlCheckout: acts.Checkout}
	for _, l := range snap.Lines {
		i := l.Index
		c[DecrementControl(i)] = func() error { return acts.Decrement(i) }
		c[IncrementControl(i)] = func() error { return acts.Increment(i) }
	}
	for _, m := range cart.PaymentMethods {
		c[PaymentControl(m)] = func() error { return acts.SetPaymentMethod(m) }
	}
	return c
}

// Paint replaces the cart container with a fresh render of snap. A missing
// container is logged and the render is abandoned.
func (r *Renderer) Paint(doc *Document, id string, snap cart.Snapshot, acts CartActions) error {
	if !doc.Has(id) {
		err := fmt.Errorf("%w: %s", ErrMissingContainer, id)
		r.log.Error().Err(err).Msg("cart render aborted")
		return err
	}
	html, err := r.Cart(snap)
	if err != nil {
		r.log.Error().Err(err).Msg("cart render failed")
		return err
	}
	gen, err := doc.Replace(id, html, CartControls(snap, acts))
	if err != nil {
		return err
	}
	r.log.Debug().Str("container", id).Uint64("generation", gen).Int("lines", len(snap.Lines)).Msg("cart painted")
	return nil
}

// ShowOverlay appends the QR modal to the document body.
func (r *Renderer) ShowOverlay(doc *Document, id string, p checkout.QRPayment, remaining int, onClose Action) error {
	html, err := r.Overlay(p, remaining)
	if err != nil {
		return err
	}
	return doc.Append(id, html, Controls{ControlCloseModal: onClose})
}

// TickOverlay refreshes the modal timer without rebinding its close control.
func (r *Renderer) TickOverlay(doc *Document, id string, p checkout.QRPayment, remaining int) error {
	html, err := r.Overlay(p, remaining)
	if err != nil {
		return err
	}
	return doc.Update(id, html)
}

// Page is everything the full cart page needs.
type Page struct {
	Title     string
	ActionURL string
	Cart      Container
	Overlay   *Container
	Toasts    []notify.Toast
	// Refresh asks the browser to reload after this many seconds; zero disables.
	Refresh int
}

func (r *Renderer) Page(w io.Writer, p Page) error {
	return r.tpl.ExecuteTemplate(w, "page", p)
}

func (r *Renderer) execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
