package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/amigo-montador/montador/internal/rating"
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"

	distinctParticipantsCheck = "services_distinct_participants"
)

// RatingRepo is the Postgres implementation of rating.Repository.
type RatingRepo struct {
	pool *pgxpool.Pool
}

func NewRatingRepo(pool *pgxpool.Pool) *RatingRepo {
	return &RatingRepo{pool: pool}
}

const serviceSelect = `
	SELECT s.id, s.title, s.status, s.payment_status,
	       s.store_user_id, su.name,
	       COALESCE(s.assembler_user_id, 0), COALESCE(au.name, ''),
	       s.rating_required, s.store_rating_completed, s.assembler_rating_completed,
	       s.payment_confirmed_at, s.completed_at, s.created_at
	FROM services s
	JOIN users su ON su.id = s.store_user_id
	LEFT JOIN users au ON au.id = s.assembler_user_id`

const ratingSelect = `
	SELECT id, service_id, from_user_id, to_user_id, from_user_type, to_user_type,
	       rating, comment, punctuality_rating, quality_rating, compliance_rating,
	       COALESCE(emoji_rating, ''), is_latest, created_at
	FROM ratings`

// mapError turns driver errors into the domain errors callers match on.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return rating.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return rating.ErrDuplicateRating
		case pgErr.Code == checkViolation && pgErr.ConstraintName == distinctParticipantsCheck:
			return rating.ErrSameParticipant
		}
	}
	return errors.Wrapf(rating.ErrStorageUnavailable, "%s: %v", op, err)
}

func (r *RatingRepo) WithinTx(ctx context.Context, fn func(tx rating.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapError(err, "begin")
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.WithError(rbErr).Warn("rollback failed")
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "commit")
	}
	return nil
}

func (r *RatingRepo) Service(ctx context.Context, id int64) (*rating.Service, error) {
	s, err := scanService(r.pool.QueryRow(ctx, serviceSelect+` WHERE s.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "load service")
	}
	return s, nil
}

func (r *RatingRepo) User(ctx context.Context, id int64) (*rating.Participant, error) {
	var (
		p    rating.Participant
		role string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, name, user_type FROM users WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &role)
	if err != nil {
		return nil, mapError(err, "load user")
	}
	p.Role = rating.Role(role)
	return &p, nil
}

func (r *RatingRepo) RatingsForService(ctx context.Context, serviceID int64) ([]rating.Rating, error) {
	return r.queryRatings(ctx, ratingSelect+` WHERE service_id = $1 ORDER BY created_at DESC, id DESC`, serviceID)
}

func (r *RatingRepo) RatingsReceived(ctx context.Context, userID int64) ([]rating.Rating, error) {
	return r.queryRatings(ctx, ratingSelect+` WHERE to_user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

func (r *RatingRepo) ConfirmedServicesFor(ctx context.Context, userID int64) ([]rating.Service, error) {
	rows, err := r.pool.Query(ctx, serviceSelect+`
		WHERE s.payment_status = 'confirmed'
		  AND (s.store_user_id = $1 OR s.assembler_user_id = $1)
		ORDER BY s.id`, userID)
	if err != nil {
		return nil, mapError(err, "list services")
	}
	defer rows.Close()

	var out []rating.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, mapError(err, "scan service")
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "list services")
	}
	return out, nil
}

func (r *RatingRepo) ListServices(ctx context.Context, status rating.ServiceStatus) ([]rating.Service, error) {
	rows, err := r.pool.Query(ctx, serviceSelect+`
		WHERE ($1 = '' OR s.status = $1)
		ORDER BY s.created_at DESC, s.id DESC`, string(status))
	if err != nil {
		return nil, mapError(err, "list services")
	}
	defer rows.Close()

	var out []rating.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, mapError(err, "scan service")
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "list services")
	}
	return out, nil
}

func (r *RatingRepo) Stats(ctx context.Context) (*rating.Stats, error) {
	st := &rating.Stats{Services: make(map[rating.ServiceStatus]int)}
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM services GROUP BY status`)
	if err != nil {
		return nil, mapError(err, "service stats")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapError(err, "scan service stats")
		}
		st.Services[rating.ServiceStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "service stats")
	}
	st.AwaitingEvaluation = st.Services[rating.StatusAwaitingEvaluation]

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM ratings`).
		Scan(&st.Ratings, &st.AverageRating)
	if err != nil {
		return nil, mapError(err, "rating stats")
	}
	return st, nil
}

func (r *RatingRepo) Ranking(ctx context.Context, role rating.Role, limit int) ([]rating.RankingEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.to_user_id, u.name, AVG(r.rating)::float8, COUNT(*)
		FROM ratings r
		JOIN users u ON u.id = r.to_user_id
		WHERE r.to_user_type = $1 AND r.is_latest
		GROUP BY r.to_user_id, u.name
		ORDER BY AVG(r.rating) DESC, COUNT(*) DESC, r.to_user_id
		LIMIT $2`, string(role), limit)
	if err != nil {
		return nil, mapError(err, "ranking")
	}
	defer rows.Close()

	var out []rating.RankingEntry
	for rows.Next() {
		e := rating.RankingEntry{UserType: role}
		if err := rows.Scan(&e.ID, &e.Name, &e.AverageRating, &e.TotalRatings); err != nil {
			return nil, mapError(err, "scan ranking")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "ranking")
	}
	return out, nil
}

func (r *RatingRepo) queryRatings(ctx context.Context, query string, arg int64) ([]rating.Rating, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, mapError(err, "list ratings")
	}
	defer rows.Close()

	var out []rating.Rating
	for rows.Next() {
		var rt rating.Rating
		if err := scanRating(rows, &rt); err != nil {
			return nil, mapError(err, "scan rating")
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "list ratings")
	}
	return out, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockService(ctx context.Context, id int64) (*rating.Service, error) {
	s, err := scanService(t.tx.QueryRow(ctx, serviceSelect+` WHERE s.id = $1 FOR UPDATE OF s`, id))
	if err != nil {
		return nil, mapError(err, "lock service")
	}
	return s, nil
}

func (t *pgTx) HasRated(ctx context.Context, serviceID, fromUserID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ratings WHERE service_id = $1 AND from_user_id = $2)`,
		serviceID, fromUserID,
	).Scan(&exists)
	if err != nil {
		return false, mapError(err, "check rating")
	}
	return exists, nil
}

func (t *pgTx) ClearLatest(ctx context.Context, fromUserID, toUserID int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE ratings SET is_latest = FALSE WHERE from_user_id = $1 AND to_user_id = $2 AND is_latest`,
		fromUserID, toUserID,
	)
	return mapError(err, "clear latest")
}

func (t *pgTx) InsertRating(ctx context.Context, r *rating.Rating) error {
	var emoji *string
	if r.EmojiRating != "" {
		emoji = &r.EmojiRating
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ratings (service_id, from_user_id, to_user_id, from_user_type, to_user_type,
		                     rating, comment, punctuality_rating, quality_rating, compliance_rating,
		                     emoji_rating, is_latest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		r.ServiceID, r.FromUserID, r.ToUserID, string(r.FromUserType), string(r.ToUserType),
		r.Score, r.Comment, r.PunctualityRating, r.QualityRating, r.ComplianceRating,
		emoji, r.IsLatest,
	).Scan(&r.ID, &r.CreatedAt)
	return mapError(err, "insert rating")
}

func (t *pgTx) RatedRoles(ctx context.Context, serviceID int64) (bool, bool, error) {
	var store, assembler bool
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(BOOL_OR(from_user_type = 'lojista'), FALSE),
		       COALESCE(BOOL_OR(from_user_type = 'montador'), FALSE)
		FROM ratings WHERE service_id = $1`, serviceID,
	).Scan(&store, &assembler)
	if err != nil {
		return false, false, mapError(err, "count ratings")
	}
	return store, assembler, nil
}

func (t *pgTx) SaveService(ctx context.Context, s *rating.Service) error {
	var assembler *int64
	if s.HasAssembler() {
		assembler = &s.Assembler.ID
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE services
		SET status = $2, payment_status = $3, assembler_user_id = $4,
		    rating_required = $5, store_rating_completed = $6, assembler_rating_completed = $7,
		    payment_confirmed_at = $8, completed_at = $9
		WHERE id = $1`,
		s.ID, string(s.Status), string(s.PaymentStatus), assembler,
		s.RatingRequired, s.StoreRatingCompleted, s.AssemblerRatingCompleted,
		s.PaymentConfirmedAt, s.CompletedAt,
	)
	if err != nil {
		return mapError(err, "save service")
	}
	if tag.RowsAffected() == 0 {
		return rating.ErrNotFound
	}
	return nil
}

func scanService(row pgx.Row) (*rating.Service, error) {
	var (
		s                        rating.Service
		status, payment          string
		storeName, assemblerName string
	)
	err := row.Scan(
		&s.ID, &s.Title, &status, &payment,
		&s.Store.ID, &storeName,
		&s.Assembler.ID, &assemblerName,
		&s.RatingRequired, &s.StoreRatingCompleted, &s.AssemblerRatingCompleted,
		&s.PaymentConfirmedAt, &s.CompletedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = rating.ServiceStatus(status)
	s.PaymentStatus = rating.PaymentStatus(payment)
	s.Store.Name, s.Store.Role = storeName, rating.RoleStore
	if s.Assembler.ID != 0 {
		s.Assembler.Name, s.Assembler.Role = assemblerName, rating.RoleAssembler
	}
	return &s, nil
}

func scanRating(row pgx.Row, r *rating.Rating) error {
	var from, to string
	err := row.Scan(
		&r.ID, &r.ServiceID, &r.FromUserID, &r.ToUserID, &from, &to,
		&r.Score, &r.Comment, &r.PunctualityRating, &r.QualityRating, &r.ComplianceRating,
		&r.EmojiRating, &r.IsLatest, &r.CreatedAt,
	)
	if err != nil {
		return err
	}
	r.FromUserType, r.ToUserType = rating.Role(from), rating.Role(to)
	return nil
}
