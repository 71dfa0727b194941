package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var (
	ErrNotificationNotFound = errors.New("not found or already read")
	ErrNoContact            = errors.New("no contact for user")
)

// Store persists in-app notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, userID int64) ([]Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID int64) error
}

// Directory resolves how to reach a user.
type Directory interface {
	Contact(ctx context.Context, userID int64) (Contact, error)
}

// PGStore keeps notifications in the notifications table and reads contacts
// from users.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Create inserts a notification item
func (s *PGStore) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, reference)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Reference,
	).Scan(&n.CreatedAt)
	return errors.Wrap(err, "insert notification")
}

func (s *PGStore) List(ctx context.Context, userID int64) ([]Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, title, COALESCE(body, ''), reference, created_at, read_at
		 FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	var items []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Reference, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		items = append(items, n)
	}
	return items, errors.Wrap(rows.Err(), "list notifications")
}

func (s *PGStore) MarkRead(ctx context.Context, id uuid.UUID, userID int64) error {
	res, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, id, userID,
	)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if res.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PGStore) Contact(ctx context.Context, userID int64) (Contact, error) {
	var c Contact
	err := s.pool.QueryRow(ctx, `SELECT name, email FROM users WHERE id = $1`, userID).Scan(&c.Name, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, ErrNoContact
	}
	return c, errors.Wrap(err, "load contact")
}

// MemoryStore is the in-process Store used with STORAGE=memory.
type MemoryStore struct {
	mu       sync.Mutex
	items    []Notification
	contacts map[int64]Contact
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contacts: make(map[int64]Contact), now: time.Now}
}

// SetContact registers the email of a user.
func (s *MemoryStore) SetContact(userID int64, c Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[userID] = c
}

func (s *MemoryStore) Create(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = s.now().UTC()
	s.items = append(s.items, *n)
	return nil
}

func (s *MemoryStore) List(_ context.Context, userID int64) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id uuid.UUID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		n := &s.items[i]
		if n.ID == id && n.UserID == userID && n.ReadAt == nil {
			t := s.now().UTC()
			n.ReadAt = &t
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (s *MemoryStore) Contact(_ context.Context, userID int64) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[userID]
	if !ok {
		return c, ErrNoContact
	}
	return c, nil
}
