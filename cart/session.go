package cart

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLineIndex     = errors.New("cart: invalid line index")
	ErrInvalidPaymentMethod = errors.New("cart: invalid payment method")
)

// Session is the working copy of a cart for one cart-page visit. It never
// writes durable storage. A Session is not safe for concurrent use; callers
// serialize access (see cartview.View).
type Session struct {
	lines    []Line
	method   PaymentMethod
	onChange func(Snapshot)
}

// NewSession copies entries into a fresh session with cash on delivery
// selected. onChange runs once after every accepted mutation.
func NewSession(entries []Entry, onChange func(Snapshot)) *Session {
	lines := make([]Line, 0, len(entries))
	for _, e := range entries {
		qty := e.Quantity
		if qty < 1 {
			qty = 1
		}
		lines = append(lines, Line{
			ProductID: e.ID,
			Name:      e.Name,
			Image:     e.Image,
			UnitPrice: e.Price,
			Quantity:  qty,
		})
	}
	return &Session{lines: lines, method: CashOnDelivery, onChange: onChange}
}

func (s *Session) Len() int { return len(s.lines) }

func (s *Session) PaymentMethod() PaymentMethod { return s.method }

func (s *Session) Increment(index int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.lines[index].Quantity++
	s.changed()
	return nil
}

// Decrement lowers the quantity by one. At quantity 1 the line is kept as is,
// but the view is still repainted.
func (s *Session) Decrement(index int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if s.lines[index].Quantity > 1 {
		s.lines[index].Quantity--
	}
	s.changed()
	return nil
}

func (s *Session) SetPaymentMethod(m PaymentMethod) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, string(m))
	}
	s.method = m
	s.changed()
	return nil
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Lines:         make([]LineView, 0, len(s.lines)),
		ShippingFee:   ShippingFee,
		PaymentMethod: s.method,
	}
	for i, l := range s.lines {
		lt := l.Total()
		snap.Lines = append(snap.Lines, LineView{
			Index:     i,
			ProductID: l.ProductID,
			Name:      l.Name,
			Image:     l.Image,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: lt,
		})
		snap.Subtotal += lt
	}
	snap.Total = snap.Subtotal + snap.ShippingFee - snap.Discount
	return snap
}

func (s *Session) checkIndex(i int) error {
	if i < 0 || i >= len(s.lines) {
		return fmt.Errorf("%w: %d (lines=%d)", ErrInvalidLineIndex, i, len(s.lines))
	}
	return nil
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}
