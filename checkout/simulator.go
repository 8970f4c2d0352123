// Checkout simulado: confirmación inmediata (COD) o pago QR con cuenta regresiva.
package checkout

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/susutoys/storefront/cart"
	"github.com/susutoys/storefront/notify"
)

var (
	ErrAttemptInProgress = errors.New("checkout: an attempt is already in progress")
	ErrNoActiveAttempt   = errors.New("checkout: no attempt awaiting payment")
	ErrEmptyCart         = errors.New("checkout: cart is empty")
	ErrNoAccount         = errors.New("checkout: no receiving account for method")
)

const (
	MsgOrderPlaced       = "Đặt hàng thành công! Cảm ơn bạn đã mua hàng."
	MsgAttemptInProgress = "Đang xử lý thanh toán, vui lòng đợi."
	MsgEmptyCart         = "Giỏ hàng của bạn đang trống."
)

type State int

const (
	StateIdle State = iota
	StateInstantConfirm
	StateAwaitingQRPayment
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInstantConfirm:
		return "INSTANT_CONFIRM"
	case StateAwaitingQRPayment:
		return "AWAITING_QR_PAYMENT"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "IDLE"
	}
}

func (s State) IsTerminal() bool { return s == StateCompleted || s == StateCancelled }

// Attempt is one press of the checkout button.
type Attempt struct {
	ID          string
	Method      cart.PaymentMethod
	Lines       []cart.LineView
	Amount      int64
	ShippingFee int64
	Discount    int64
	Total       int64
	Countdown   int
	State       State
	QR          *QRPayment
	StartedAt   time.Time
}

type Notifier interface {
	Notify(message string, severity notify.Severity)
}

type Navigator interface {
	Navigate(destination string)
}

// Overlay is the modal that shows a QR attempt while it counts down.
type Overlay interface {
	Show(a Attempt) error
	Tick(a Attempt)
	Dismiss()
}

// Hooks are told about attempts that reached a terminal state.
type Hooks struct {
	Completed func(a Attempt)
	Cancelled func(a Attempt)
}

// Simulator drives checkout attempts for one cart view. It is not safe for
// concurrent use: every call, and every callback of its Scheduler, must run
// on the view's execution context (see Serialized).
type Simulator struct {
	cfg      Config
	sched    Scheduler
	notifier Notifier
	nav      Navigator
	overlay  Overlay
	hooks    Hooks
	log      zerolog.Logger
	now      func() time.Time

	active   *Attempt
	last     *Attempt
	ticker   Handle
	redirect Handle
}

func NewSimulator(cfg Config, sched Scheduler, n Notifier, nav Navigator, o Overlay, hooks Hooks, log zerolog.Logger) *Simulator {
	return &Simulator{
		cfg:      cfg.withDefaults(),
		sched:    sched,
		notifier: n,
		nav:      nav,
		overlay:  o,
		hooks:    hooks,
		log:      log.With().Str("component", "checkout").Logger(),
		now:      time.Now,
	}
}

// State is the state of the attempt in flight, or StateIdle.
func (s *Simulator) State() State {
	if s.active != nil {
		return s.active.State
	}
	return StateIdle
}

// Active returns a copy of the attempt awaiting payment.
func (s *Simulator) Active() (Attempt, bool) {
	if s.active == nil {
		return Attempt{}, false
	}
	return *s.active, true
}

// Last returns the most recent attempt that reached a terminal state.
func (s *Simulator) Last() (Attempt, bool) {
	if s.last == nil {
		return Attempt{}, false
	}
	return *s.last, true
}

// RedirectPending reports a completed attempt still waiting to navigate.
func (s *Simulator) RedirectPending() bool { return s.redirect != nil }

// Checkout starts an attempt for snap using its payment method.
func (s *Simulator) Checkout(snap cart.Snapshot) (Attempt, error) {
	if s.active != nil || s.redirect != nil {
		s.notifier.Notify(MsgAttemptInProgress, notify.Warning)
		return Attempt{}, ErrAttemptInProgress
	}
	if snap.Empty() {
		s.notifier.Notify(MsgEmptyCart, notify.Warning)
		return Attempt{}, ErrEmptyCart
	}
	if !snap.PaymentMethod.Valid() {
		return Attempt{}, fmt.Errorf("%w: %q", cart.ErrInvalidPaymentMethod, string(snap.PaymentMethod))
	}

	a := &Attempt{
		ID:          uuid.NewString(),
		Method:      snap.PaymentMethod,
		Lines:       append([]cart.LineView(nil), snap.Lines...),
		Amount:      snap.Subtotal,
		ShippingFee: snap.ShippingFee,
		Discount:    snap.Discount,
		Total:       snap.Subtotal + snap.ShippingFee - snap.Discount,
		StartedAt:   s.now(),
	}
	if !a.Method.IsQR() {
		a.State = StateInstantConfirm
		s.log.Info().Str("attempt", a.ID).Str("method", a.Method.String()).Int64("total", a.Total).Msg("checkout confirmed")
		s.completeInstant(a)
		return *a, nil
	}

	acct, ok := s.cfg.Accounts[a.Method]
	if !ok {
		return Attempt{}, fmt.Errorf("%w: %s", ErrNoAccount, a.Method)
	}
	note := ASCIIFold(s.cfg.TransferNote)
	a.QR = &QRPayment{
		Method:      a.Method,
		Account:     acct,
		Template:    s.cfg.QRTemplate,
		Amount:      a.Amount,
		Note:        note,
		ShippingFee: a.ShippingFee,
		Discount:    a.Discount,
		Total:       a.Total,
		ImageURL:    VietQRImageURL(acct, s.cfg.QRTemplate, a.Amount, note),
	}
	a.Countdown = s.cfg.Countdown
	a.State = StateAwaitingQRPayment

	if err := s.overlay.Show(*a); err != nil {
		return Attempt{}, fmt.Errorf("checkout: show payment overlay: %w", err)
	}
	s.active = a
	s.ticker = s.sched.Every(s.cfg.TickInterval, func() { s.tick(a) })
	s.log.Info().Str("attempt", a.ID).Str("method", a.Method.String()).Int64("amount", a.Amount).Int("countdown", a.Countdown).Msg("awaiting qr payment")
	return *a, nil
}

// Cancel abandons the attempt awaiting payment. The cart is left untouched.
func (s *Simulator) Cancel() error {
	a := s.active
	if a == nil || a.State != StateAwaitingQRPayment {
		return ErrNoActiveAttempt
	}
	s.stopTicker()
	s.overlay.Dismiss()
	a.State = StateCancelled
	s.active = nil
	s.last = a
	s.log.Info().Str("attempt", a.ID).Int("remaining", a.Countdown).Msg("checkout cancelled")
	if s.hooks.Cancelled != nil {
		s.hooks.Cancelled(*a)
	}
	return nil
}

// Shutdown stops every pending callback. An attempt awaiting payment is
// dropped without completing.
func (s *Simulator) Shutdown() {
	s.stopTicker()
	if s.redirect != nil {
		s.redirect.Stop()
		s.redirect = nil
	}
	if s.active != nil {
		s.active.State = StateCancelled
		s.last = s.active
		s.active = nil
	}
}

func (s *Simulator) completeInstant(a *Attempt) {
	a.State = StateCompleted
	s.last = a
	s.notifier.Notify(MsgOrderPlaced, notify.Success)
	if s.hooks.Completed != nil {
		s.hooks.Completed(*a)
	}
	s.redirect = s.sched.AfterFunc(s.cfg.RedirectDelay, func() {
		s.redirect = nil
		s.nav.Navigate(s.cfg.Home)
	})
}

func (s *Simulator) tick(a *Attempt) {
	// A tick that lost the race against Cancel finds another (or no) attempt.
	if s.active != a || a.State != StateAwaitingQRPayment {
		return
	}
	a.Countdown--
	s.overlay.Tick(*a)
	if a.Countdown > 0 {
		return
	}
	s.stopTicker()
	s.overlay.Dismiss()
	a.State = StateCompleted
	s.active = nil
	s.last = a
	s.log.Info().Str("attempt", a.ID).Str("method", a.Method.String()).Msg("qr payment confirmed")
	if s.hooks.Completed != nil {
		s.hooks.Completed(*a)
	}
	s.nav.Navigate(s.cfg.Home)
}

func (s *Simulator) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
