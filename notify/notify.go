// Notificaciones tipo toast que se muestran en la siguiente pintura de la vista.
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// Icon is the bootstrap-icons class shown next to the message.
func (s Severity) Icon() string {
	switch s {
	case Error:
		return "bi-x-circle-fill"
	case Warning:
		return "bi-exclamation-triangle-fill"
	case Info:
		return "bi-info-circle-fill"
	default:
		return "bi-check-circle-fill"
	}
}

type Toast struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (t Toast) Icon() string { return t.Severity.Icon() }

// MaxPending bounds the queue; the oldest toast is dropped first.
const MaxPending = 8

// Center queues toasts for one view until they are drained into a page.
type Center struct {
	mu      sync.Mutex
	pending []Toast
	log     zerolog.Logger
}

func NewCenter(log zerolog.Logger) *Center { return &Center{log: log} }

func (c *Center) Notify(message string, severity Severity) {
	if severity == "" {
		severity = Success
	}
	c.log.Info().Str("severity", string(severity)).Str("message", message).Msg("toast")
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == MaxPending {
		c.pending = c.pending[1:]
	}
	c.pending = append(c.pending, Toast{Message: message, Severity: severity})
}

// Drain returns the queued toasts in order and empties the queue.
func (c *Center) Drain() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
