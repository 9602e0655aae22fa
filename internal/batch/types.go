package batch

import (
	"time"

	"github.com/calebren/fieldcomm-core/internal/codec"
)

// Status is the lifecycle state of a batch operation.
type Status string

// Operation states. Completed, Failed and Canceled are terminal.
const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// ElementStatus is the delivery state of one target within an operation.
type ElementStatus string

// Element states. Acknowledged and Failed are terminal; Canceled marks
// elements never attempted because the operation was canceled.
const (
	ElementPending      ElementStatus = "pending"
	ElementSent         ElementStatus = "sent"
	ElementAcknowledged ElementStatus = "acknowledged"
	ElementFailed       ElementStatus = "failed"
	ElementCanceled     ElementStatus = "canceled"
)

// Operation is one batch command invocation against a list of devices.
type Operation struct {
	// ID is the operation identifier returned by Submit.
	ID string `json:"id"`

	// Command is the command delivered to every target.
	Command codec.Command `json:"command"`

	// Status is the operation lifecycle state.
	Status Status `json:"status"`

	// Error carries the failure detail for StatusFailed.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the operation was submitted.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the worker picked the operation up.
	StartedAt time.Time `json:"started_at,omitzero"`

	// FinishedAt is when the operation reached a terminal status.
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Element is one target device within an operation, processed in
// submission order.
type Element struct {
	OperationID string        `json:"operation_id"`
	Position    int           `json:"position"`
	HardwareID  string        `json:"hardware_id"`
	Status      ElementStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	ProcessedAt time.Time     `json:"processed_at,omitzero"`
}

// Progress is a point-in-time snapshot of an operation's element counts.
type Progress struct {
	OperationID  string `json:"operation_id"`
	Status       Status `json:"status"`
	Total        int    `json:"total"`
	Pending      int    `json:"pending"`
	Sent         int    `json:"sent"`
	Acknowledged int    `json:"acknowledged"`
	Failed       int    `json:"failed"`
	Canceled     int    `json:"canceled"`
}

// Done reports whether every element has reached a terminal state.
func (p Progress) Done() bool {
	return p.Pending == 0 && p.Sent == 0
}
