// Controlador de una visita al carrito: sesión, documento y checkout bajo un único lock.
package cartview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/susutoys/storefront/cart"
	"github.com/susutoys/storefront/checkout"
	"github.com/susutoys/storefront/events"
	"github.com/susutoys/storefront/notify"
	"github.com/susutoys/storefront/render"
)

const (
	CartContainer    = "cart-container"
	OverlayContainer = "qr-modal"

	PageTitle = "Giỏ hàng - SuSu Toys"

	msgActionFailed = "Không thể thực hiện thao tác, vui lòng thử lại."
)

var ErrViewClosed = errors.New("cartview: view closed")

// CartStore is the persisted cart as seen by a view.
type CartStore interface {
	Load(ctx context.Context, visitor string) ([]cart.Entry, error)
	Clear(ctx context.Context, visitor string) error
}

type Deps struct {
	Store     CartStore
	Renderer  *render.Renderer
	Scheduler checkout.Scheduler
	Publisher events.Publisher
	Checkout  checkout.Config
	Log       zerolog.Logger
	// IOTimeout bounds the store clear and event publish after an attempt ends.
	IOTimeout time.Duration
}

// View is one visit to the cart page. Every interaction, render and timer
// callback runs while holding mu.
type View struct {
	ID      string
	Visitor string
	Opened  time.Time

	mu        sync.Mutex
	doc       *render.Document
	session   *cart.Session
	sim       *checkout.Simulator
	toasts    *notify.Center
	renderer  *render.Renderer
	store     CartStore
	pub       events.Publisher
	ioTimeout time.Duration
	log       zerolog.Logger
	navigated string
	closed    bool
}

// Open copies the visitor's persisted cart into a new view and paints it.
func Open(ctx context.Context, visitor string, deps Deps) (*View, error) {
	entries, err := deps.Store.Load(ctx, visitor)
	if err != nil {
		return nil, err
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.IOTimeout <= 0 {
		deps.IOTimeout = 5 * time.Second
	}
	id := uuid.NewString()
	log := deps.Log.With().Str("view", id).Str("visitor", visitor).Logger()
	v := &View{
		ID:        id,
		Visitor:   visitor,
		Opened:    time.Now(),
		doc:       render.NewDocument(CartContainer),
		toasts:    notify.NewCenter(log),
		renderer:  deps.Renderer,
		store:     deps.Store,
		pub:       deps.Publisher,
		ioTimeout: deps.IOTimeout,
		log:       log,
	}
	hooks := checkout.Hooks{Completed: v.onCompleted, Cancelled: v.onCancelled}
	v.sim = checkout.NewSimulator(deps.Checkout, checkout.Serialized(deps.Scheduler, &v.mu), v.toasts, v, v, hooks, log)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.session = cart.NewSession(entries, v.repaint)
	v.repaint(v.session.Snapshot())
	log.Info().Int("lines", len(entries)).Msg("cart view opened")
	return v, nil
}

// Act dispatches a control posted from the page. payment carries the radio
// selection submitted with the form; an empty control means only the
// selection changed.
func (v *View) Act(container string, generation uint64, control, payment string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.navigated != "" {
		return ErrViewClosed
	}
	if control == "" && payment != "" {
		control = render.PaymentControl(cart.PaymentMethod(payment))
	}
	action, err := v.doc.Bind(container, generation, control)
	if err != nil {
		v.log.Debug().Err(err).Str("control", control).Msg("control ignored")
		return err
	}
	if container == CartContainer && payment != "" && !strings.HasPrefix(control, "pay-") {
		if m, err := cart.ParsePaymentMethod(payment); err == nil && m != v.session.PaymentMethod() {
			if err := v.session.SetPaymentMethod(m); err != nil {
				return err
			}
		}
	}
	if err := action(); err != nil {
		if !errors.Is(err, checkout.ErrAttemptInProgress) && !errors.Is(err, checkout.ErrEmptyCart) {
			v.toasts.Notify(msgActionFailed, notify.Error)
		}
		v.log.Info().Err(err).Str("control", control).Msg("action rejected")
		return err
	}
	return nil
}

// Page assembles the full page and drains queued toasts into it.
func (v *View) Page(actionURL string) render.Page {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, _ := v.doc.Container(CartContainer)
	p := render.Page{
		Title:     PageTitle,
		ActionURL: actionURL,
		Cart:      c,
		Toasts:    v.toasts.Drain(),
	}
	if o, ok := v.doc.Container(OverlayContainer); ok {
		p.Overlay = &o
		p.Refresh = 1
	}
	if v.sim.RedirectPending() {
		p.Refresh = 1
	}
	return p
}

// Notify queues a toast for the next page.
func (v *View) Notify(message string, severity notify.Severity) {
	v.toasts.Notify(message, severity)
}

// Navigated returns where the view sent the visitor, or "".
func (v *View) Navigated() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.navigated
}

type Status struct {
	ViewID      string        `json:"viewId"`
	State       string        `json:"state"`
	Countdown   int           `json:"countdown,omitempty"`
	LastAttempt string        `json:"lastAttempt,omitempty"`
	LastState   string        `json:"lastState,omitempty"`
	Generation  uint64        `json:"generation"`
	Navigated   string        `json:"navigated,omitempty"`
	Cart        cart.Snapshot `json:"cart"`
}

func (v *View) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, _ := v.doc.Container(CartContainer)
	st := Status{
		ViewID:     v.ID,
		State:      v.sim.State().String(),
		Generation: c.Generation,
		Navigated:  v.navigated,
		Cart:       v.session.Snapshot(),
	}
	if a, ok := v.sim.Active(); ok {
		st.Countdown = a.Countdown
	}
	if a, ok := v.sim.Last(); ok {
		st.LastAttempt = a.ID
		st.LastState = a.State.String()
	}
	return st
}

// Close stops the view's timers. An unpaid QR attempt is dropped.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.sim.Shutdown()
	v.log.Debug().Msg("cart view closed")
}

// Increment, Decrement, SetPaymentMethod and Checkout are the actions bound
// into painted controls; they run under mu from Act.

func (v *View) Increment(i int) error { return v.session.Increment(i) }

func (v *View) Decrement(i int) error { return v.session.Decrement(i) }

func (v *View) SetPaymentMethod(m cart.PaymentMethod) error { return v.session.SetPaymentMethod(m) }

func (v *View) Checkout() error {
	_, err := v.sim.Checkout(v.session.Snapshot())
	return err
}

func (v *View) repaint(snap cart.Snapshot) {
	if err := v.renderer.Paint(v.doc, CartContainer, snap, v); err != nil {
		v.log.Error().Err(err).Msg("repaint failed")
	}
}

// Show, Tick and Dismiss drive the payment overlay for the simulator.

func (v *View) Show(a checkout.Attempt) error {
	if a.QR == nil {
		return errors.New("cartview: attempt has no qr payment")
	}
	return v.renderer.ShowOverlay(v.doc, OverlayContainer, *a.QR, a.Countdown, v.sim.Cancel)
}

func (v *View) Tick(a checkout.Attempt) {
	if a.QR == nil {
		return
	}
	if err := v.renderer.TickOverlay(v.doc, OverlayContainer, *a.QR, a.Countdown); err != nil {
		v.log.Warn().Err(err).Msg("overlay tick not shown")
	}
}

func (v *View) Dismiss() {
	if err := v.doc.Remove(OverlayContainer); err != nil {
		v.log.Debug().Err(err).Msg("overlay already gone")
	}
}

func (v *View) Navigate(dest string) {
	v.navigated = dest
	v.log.Info().Str("destination", dest).Msg("navigate")
}

func (v *View) onCompleted(a checkout.Attempt) {
	visitor := v.Visitor
	v.background(func(ctx context.Context) {
		if err := v.store.Clear(ctx, visitor); err != nil {
			v.log.Error().Err(err).Str("attempt", a.ID).Msg("clear cart after checkout")
		}
	})
	v.publish(events.RKCheckoutCompleted, a)
}

func (v *View) onCancelled(a checkout.Attempt) {
	v.publish(events.RKCheckoutCancelled, a)
}

func (v *View) publish(rk string, a checkout.Attempt) {
	payload := events.CheckoutPayload{
		AttemptID:   a.ID,
		VisitorID:   v.Visitor,
		Method:      a.Method.String(),
		AmountVND:   a.Amount,
		ShippingVND: a.ShippingFee,
		TotalVND:    a.Total,
		OccurredAt:  time.Now().UTC(),
	}
	for _, l := range a.Lines {
		payload.Items = append(payload.Items, events.ItemEvt{
			ProductID: l.ProductID,
			Name:      l.Name,
			Qty:       l.Quantity,
			UnitVND:   l.UnitPrice,
			LineVND:   l.LineTotal,
		})
	}
	v.background(func(ctx context.Context) {
		if err := v.pub.PublishJSON(ctx, rk, payload); err != nil {
			v.log.Warn().Err(err).Str("rk", rk).Str("attempt", a.ID).Msg("publish checkout event")
		}
	})
}

// background runs fn off the execution context so timer callbacks never
// wait on I/O.
func (v *View) background(fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.ioTimeout)
		defer cancel()
		fn(ctx)
	}()
}
