package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Task type constants
const (
	TaskRatingNeeded   = "email:rating_needed"
	TaskRatingReceived = "email:rating_received"
)

// Queue names
const (
	QueueEmails = "emails"
)

// Notification types
const (
	TypeRatingNeeded   = "rating_needed"
	TypeRatingReceived = "rating_received"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Rating needed payload (sent to the participant who still owes a rating)
type RatingNeededPayload struct {
	ServiceID int64         `json:"service_id"`
	UserID    int64         `json:"user_id"`
	Email     string        `json:"email"`
	Envelope  EmailEnvelope `json:"envelope"`
	SentAt    time.Time     `json:"sent_at"`
}

// Rating received payload (sent to the rated participant)
type RatingReceivedPayload struct {
	ServiceID int64         `json:"service_id"`
	UserID    int64         `json:"user_id"`
	Email     string        `json:"email"`
	Rating    int           `json:"rating"`
	Envelope  EmailEnvelope `json:"envelope"`
	SentAt    time.Time     `json:"sent_at"`
}

// Notification is an in-app alert.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    int64      `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference *int64     `json:"reference"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

// Contact is what the mail side needs to know about a user.
type Contact struct {
	Name  string
	Email string
}
