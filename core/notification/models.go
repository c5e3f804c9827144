package notification

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/bitacora/core"
)

// Recipient roles
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleLearner    = "learner"
)

// Notification is a message addressed to a role, and optionally to a specific member of that role.
// An empty RecipientID means a broadcast to every member of RecipientRole.
type Notification struct {
	ID            string    `json:"id"`
	SenderID      string    `json:"sender_id"`
	SenderRole    string    `json:"sender_role"`
	RecipientID   string    `json:"recipient_id,omitempty"`
	RecipientRole string    `json:"recipient_role"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	IsRead        bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
}

func (n Notification) IsBroadcast() bool { return n.RecipientID == "" }

type NewNotification struct {
	SenderID      string `json:"-"`
	SenderRole    string `json:"-" validate:"required,oneof=admin instructor learner system"`
	RecipientID   string `json:"recipient_id" validate:"omitempty,uuid"`
	RecipientRole string `json:"recipient_role" validate:"required,oneof=admin instructor learner"`
	Subject       string `json:"subject" validate:"required,max=200"`
	Body          string `json:"body" validate:"required,max=5000"`

	// Email also sends the notification by email to a direct recipient
	Email bool `json:"email"`
}

func (nn *NewNotification) Validate(validate *validator.Validate) error {
	nn.Subject = core.CleanString(nn.Subject)
	nn.Body = core.CleanString(nn.Body)
	nn.RecipientID = core.CleanString(nn.RecipientID)
	nn.RecipientRole = core.CleanString(nn.RecipientRole, true /* lower */)
	return validate.Struct(nn)
}

// Recipient identifies who reads an inbox.
type Recipient struct {
	ID   string
	Role string
}
