package screen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlertNotFound is returned when acknowledging an unknown alert.
var ErrAlertNotFound = errors.New("alert not found")

// Alert is a modal message that waits for acknowledgement.
type Alert struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Actions  []string  `json:"actions"`
	RaisedAt time.Time `json:"raised_at"`
}

// NewAlert builds an alert with a single OK action.
func NewAlert(title, message string) Alert {
	return Alert{
		ID:       uuid.NewString(),
		Title:    title,
		Message:  message,
		Actions:  []string{"OK"},
		RaisedAt: time.Now().UTC(),
	}
}

// Alerter shows alerts to the user.
type Alerter interface {
	Alert(ctx context.Context, alert Alert)
}

// AlertBoard keeps alerts until they are acknowledged.
type AlertBoard struct {
	mu       sync.Mutex
	alerts   []Alert
	onChange func([]Alert)
}

func NewAlertBoard() *AlertBoard {
	return &AlertBoard{}
}

// OnChange registers fn to receive the pending alerts after every change.
func (b *AlertBoard) OnChange(fn func([]Alert)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *AlertBoard) Alert(ctx context.Context, alert Alert) {
	b.mu.Lock()
	b.alerts = append(b.alerts, alert)
	pending, fn := b.pendingLocked(), b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn(pending)
	}
}

// Pending returns the unacknowledged alerts, oldest first.
func (b *AlertBoard) Pending() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingLocked()
}

// Acknowledge dismisses the alert with id.
func (b *AlertBoard) Acknowledge(id string) error {
	b.mu.Lock()
	found := false
	for i := range b.alerts {
		if b.alerts[i].ID == id {
			b.alerts = append(b.alerts[:i], b.alerts[i+1:]...)
			found = true
			break
		}
	}
	pending, fn := b.pendingLocked(), b.onChange
	b.mu.Unlock()

	if !found {
		return ErrAlertNotFound
	}
	if fn != nil {
		fn(pending)
	}
	return nil
}

func (b *AlertBoard) pendingLocked() []Alert {
	pending := make([]Alert, len(b.alerts))
	copy(pending, b.alerts)
	return pending
}
