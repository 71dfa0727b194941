package rating

import (
	"errors"
	"time"
)

var (
	ErrInvalidRatingValue    = errors.New("rating must be an integer between 1 and 5")
	ErrInvalidComment        = errors.New("comment does not meet the length requirement")
	ErrDuplicateRating       = errors.New("service already rated by this user")
	ErrNotFound              = errors.New("not found")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrNotReadyForEvaluation = errors.New("service is not ready for evaluation")
	ErrNotParticipant        = errors.New("user is not a participant of this service")
	ErrInvalidCounterpart    = errors.New("rated user is not the counterpart of this service")
	ErrInvalidTransition     = errors.New("service cannot change to the requested state")
	ErrSameParticipant       = errors.New("store and assembler must be different users")
)

// Role is the side a user plays in a service. The values match the
// user_type column.
type Role string

const (
	RoleStore     Role = "lojista"
	RoleAssembler Role = "montador"
)

func (r Role) Valid() bool { return r == RoleStore || r == RoleAssembler }

type ServiceStatus string

const (
	StatusOpen               ServiceStatus = "open"
	StatusInProgress         ServiceStatus = "in-progress"
	StatusAwaitingEvaluation ServiceStatus = "awaiting-evaluation"
	StatusCompleted          ServiceStatus = "completed"
	StatusCancelled          ServiceStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending        PaymentStatus = "pending"
	PaymentProofSubmitted PaymentStatus = "proof-submitted"
	PaymentConfirmed      PaymentStatus = "confirmed"
	PaymentRejected       PaymentStatus = "rejected"
)

// Participant is a user as seen by the rating gate.
type Participant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Service is one assembly job between a store and an assembler. The
// assembler is zero until an application has been accepted.
type Service struct {
	ID                       int64         `json:"id"`
	Title                    string        `json:"title"`
	Status                   ServiceStatus `json:"status"`
	PaymentStatus            PaymentStatus `json:"paymentStatus"`
	Store                    Participant   `json:"store"`
	Assembler                Participant   `json:"assembler"`
	RatingRequired           bool          `json:"ratingRequired"`
	StoreRatingCompleted     bool          `json:"storeRatingCompleted"`
	AssemblerRatingCompleted bool          `json:"assemblerRatingCompleted"`
	PaymentConfirmedAt       *time.Time    `json:"paymentConfirmedAt,omitempty"`
	CompletedAt              *time.Time    `json:"completedAt,omitempty"`
	CreatedAt                time.Time     `json:"createdAt"`
}

// HasAssembler reports whether an application was accepted for the service.
func (s *Service) HasAssembler() bool { return s.Assembler.ID != 0 }

// DistinctParticipants is false when one user was recorded on both sides.
func (s *Service) DistinctParticipants() bool {
	return !s.HasAssembler() || s.Assembler.ID != s.Store.ID
}

// RoleOf returns the side userID plays in the service.
func (s *Service) RoleOf(userID int64) (Role, bool) {
	switch {
	case userID == 0:
		return "", false
	case userID == s.Store.ID:
		return RoleStore, true
	case s.HasAssembler() && userID == s.Assembler.ID:
		return RoleAssembler, true
	}
	return "", false
}

// Participant returns the user playing role.
func (s *Service) Participant(role Role) Participant {
	if role == RoleStore {
		return s.Store
	}
	return s.Assembler
}

// Counterpart returns the participant opposite to role.
func (s *Service) Counterpart(role Role) Participant {
	if role == RoleStore {
		return s.Assembler
	}
	return s.Store
}

// RatedBy reports the completion flag for role.
func (s *Service) RatedBy(role Role) bool {
	if role == RoleStore {
		return s.StoreRatingCompleted
	}
	return s.AssemblerRatingCompleted
}

// ReadyForEvaluation is true once payment is confirmed and the service was
// not cancelled.
func (s *Service) ReadyForEvaluation() bool {
	return s.PaymentStatus == PaymentConfirmed && s.Status != StatusCancelled && s.HasAssembler() && s.DistinctParticipants()
}

// SubScores are the optional detailed marks of a rating.
type SubScores struct {
	Punctuality *int `json:"punctualityRating,omitempty"`
	Quality     *int `json:"qualityRating,omitempty"`
	Compliance  *int `json:"complianceRating,omitempty"`
}

// Rating is one directed evaluation for one service. Immutable once stored.
type Rating struct {
	ID                int64     `json:"id"`
	ServiceID         int64     `json:"serviceId"`
	FromUserID        int64     `json:"fromUserId"`
	ToUserID          int64     `json:"toUserId"`
	FromUserType      Role      `json:"fromUserType"`
	ToUserType        Role      `json:"toUserType"`
	Score             int       `json:"rating"`
	Comment           *string   `json:"comment,omitempty"`
	PunctualityRating int       `json:"punctualityRating"`
	QualityRating     int       `json:"qualityRating"`
	ComplianceRating  int       `json:"complianceRating"`
	EmojiRating       string    `json:"emojiRating,omitempty"`
	IsLatest          bool      `json:"isLatest"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Trigger records how an obligation was discovered.
type Trigger string

const (
	TriggerPoll Trigger = "poll"
	TriggerPush Trigger = "push"
)

// Obligation is a rating a user still owes. Derived on demand, never stored.
type Obligation struct {
	ServiceID       int64      `json:"serviceId"`
	ServiceTitle    string     `json:"serviceName"`
	Role            Role       `json:"userType"`
	CounterpartID   int64      `json:"otherUserId"`
	CounterpartName string     `json:"otherUserName"`
	CounterpartRole Role       `json:"otherUserType"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Trigger         Trigger    `json:"trigger"`
}

var emojiByScore = map[int]string{
	5: "😊",
	4: "👍",
	3: "😐",
	2: "👎",
	1: "😞",
}

// EmojiFor maps a score to the sentiment shown next to it.
func EmojiFor(score int) string { return emojiByScore[score] }
