package model

import "encoding/json"

type NotificationType string

const (
	NotificationBookingCreated         NotificationType = "booking_created"
	NotificationBookingAccepted        NotificationType = "booking_accepted"
	NotificationBookingRejected        NotificationType = "booking_rejected"
	NotificationFirmInvitationReceived NotificationType = "firm_invitation_received"
	NotificationFirmInvitationAccepted NotificationType = "firm_invitation_accepted"
	NotificationFirmInvitationRejected NotificationType = "firm_invitation_rejected"
)

// Known reports whether t is one of the types the backend documents.
// Unknown types are still delivered.
func (t NotificationType) Known() bool {
	switch t {
	case NotificationBookingCreated, NotificationBookingAccepted, NotificationBookingRejected,
		NotificationFirmInvitationReceived, NotificationFirmInvitationAccepted, NotificationFirmInvitationRejected:
		return true
	}
	return false
}

type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type Notification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	EntityType string           `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	// Metadata is an object, a string or null depending on the type.
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	IsRead    bool            `json:"is_read"`
	CreatedAt string          `json:"created_at"`
	Actor     Actor           `json:"actor"`
}
