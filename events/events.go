// Eventos publicados por el checkout simulado.
package events

import (
	"context"
	"time"
)

const (
	RKCheckoutCompleted = "checkout.completed"
	RKCheckoutCancelled = "checkout.cancelled"
)

// Publisher sends one JSON encoded event under a routing key.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
	Close() error
}

type CheckoutPayload struct {
	AttemptID   string    `json:"attempt_id"`
	VisitorID   string    `json:"visitor_id"`
	Method      string    `json:"method"`
	Items       []ItemEvt `json:"items"`
	AmountVND   int64     `json:"amount_vnd"`
	ShippingVND int64     `json:"shipping_vnd"`
	TotalVND    int64     `json:"total_vnd"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type ItemEvt struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	UnitVND   int64  `json:"unit_vnd"`
	LineVND   int64  `json:"line_vnd"`
}

// Nop drops every event. Used when EVENTS_BACKEND is none.
type Nop struct{}

func (Nop) PublishJSON(context.Context, string, any) error { return nil }
func (Nop) Close() error                                   { return nil }
