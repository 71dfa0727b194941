package rating

import "context"

// Repository is the storage the gate reads from. All writes go through
// WithinTx so a rating and the completion flags it implies are committed
// together.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Service(ctx context.Context, id int64) (*Service, error)
	User(ctx context.Context, id int64) (*Participant, error)
	// RatingsForService returns ratings newest first.
	RatingsForService(ctx context.Context, serviceID int64) ([]Rating, error)
	// ConfirmedServicesFor returns services where userID is a participant
	// and payment is confirmed.
	ConfirmedServicesFor(ctx context.Context, userID int64) ([]Service, error)
	// RatingsReceived returns ratings addressed to userID, newest first.
	RatingsReceived(ctx context.Context, userID int64) ([]Rating, error)
	// ListServices returns services in status, or all of them when status
	// is empty, newest first.
	ListServices(ctx context.Context, status ServiceStatus) ([]Service, error)
	Stats(ctx context.Context) (*Stats, error)
	// Ranking aggregates the latest ratings received by users of role,
	// best average first, at most limit entries.
	Ranking(ctx context.Context, role Role, limit int) ([]RankingEntry, error)
}

// Tx is the write side, valid only inside WithinTx.
type Tx interface {
	// LockService loads the service and holds it until the transaction ends.
	LockService(ctx context.Context, id int64) (*Service, error)
	HasRated(ctx context.Context, serviceID, fromUserID int64) (bool, error)
	// ClearLatest unsets is_latest on earlier ratings between the pair.
	ClearLatest(ctx context.Context, fromUserID, toUserID int64) error
	// InsertRating stores r and fills ID and CreatedAt.
	InsertRating(ctx context.Context, r *Rating) error
	// RatedRoles reads the ledger and reports which sides rated the service.
	RatedRoles(ctx context.Context, serviceID int64) (store, assembler bool, err error)
	SaveService(ctx context.Context, s *Service) error
}
