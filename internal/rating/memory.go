package rating

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo keeps everything in process. Transactions run one at a time on
// a copy of the state that replaces the original only when fn succeeds.
type MemoryRepo struct {
	mu       sync.RWMutex
	state    memState
	now      func() time.Time
	failNext error
}

type memState struct {
	users    map[int64]Participant
	services map[int64]Service
	ratings  []Rating
	nextID   int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		state: memState{
			users:    make(map[int64]Participant),
			services: make(map[int64]Service),
		},
		now: time.Now,
	}
}

// AddUser registers a participant in the directory.
func (m *MemoryRepo) AddUser(p Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[p.ID] = p
}

// AddService stores s as is. Participants are looked up in the directory
// when their name or role is missing. A service whose store and assembler
// are the same user is refused.
func (m *MemoryRepo) AddService(s Service) error {
	if !s.DistinctParticipants() {
		return ErrSameParticipant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.state.users[s.Store.ID]; ok && s.Store.Name == "" {
		s.Store = u
	}
	if u, ok := m.state.users[s.Assembler.ID]; ok && s.Assembler.Name == "" {
		s.Assembler = u
	}
	s.Store.Role = RoleStore
	if s.Assembler.ID != 0 {
		s.Assembler.Role = RoleAssembler
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now().UTC()
	}
	m.state.services[s.ID] = s
	return nil
}

// FailNextTx makes the next transaction fail with err after fn ran, leaving
// the state untouched.
func (m *MemoryRepo) FailNextTx(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MemoryRepo) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{st: &work, now: m.now}); err != nil {
		return err
	}
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryRepo) Service(_ context.Context, id int64) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.state.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyService(s), nil
}

func (m *MemoryRepo) User(_ context.Context, id int64) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.state.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryRepo) RatingsForService(_ context.Context, serviceID int64) ([]Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Rating
	for _, r := range m.state.ratings {
		if r.ServiceID == serviceID {
			out = append(out, r)
		}
	}
	newestFirst(out)
	return out, nil
}

func (m *MemoryRepo) ConfirmedServicesFor(_ context.Context, userID int64) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Service
	for _, s := range m.state.services {
		if s.PaymentStatus != PaymentConfirmed {
			continue
		}
		if _, ok := s.RoleOf(userID); ok {
			out = append(out, *copyService(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepo) RatingsReceived(_ context.Context, userID int64) ([]Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Rating
	for _, r := range m.state.ratings {
		if r.ToUserID == userID {
			out = append(out, r)
		}
	}
	newestFirst(out)
	return out, nil
}

func (m *MemoryRepo) ListServices(_ context.Context, status ServiceStatus) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Service
	for _, s := range m.state.services {
		if status == "" || s.Status == status {
			out = append(out, *copyService(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := &Stats{Services: make(map[ServiceStatus]int)}
	for _, s := range m.state.services {
		st.Services[s.Status]++
		if s.Status == StatusAwaitingEvaluation {
			st.AwaitingEvaluation++
		}
	}
	var sum int
	for _, r := range m.state.ratings {
		sum += r.Score
	}
	st.Ratings = len(m.state.ratings)
	if st.Ratings > 0 {
		st.AverageRating = float64(sum) / float64(st.Ratings)
	}
	return st, nil
}

func (m *MemoryRepo) Ranking(_ context.Context, role Role, limit int) ([]RankingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sums := make(map[int64]int)
	counts := make(map[int64]int)
	for _, r := range m.state.ratings {
		if !r.IsLatest || r.ToUserType != role {
			continue
		}
		sums[r.ToUserID] += r.Score
		counts[r.ToUserID]++
	}
	out := make([]RankingEntry, 0, len(counts))
	for id, n := range counts {
		out = append(out, RankingEntry{
			ID:            id,
			Name:          m.state.users[id].Name,
			UserType:      role,
			AverageRating: float64(sums[id]) / float64(n),
			TotalRatings:  n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AverageRating != b.AverageRating {
			return a.AverageRating > b.AverageRating
		}
		if a.TotalRatings != b.TotalRatings {
			return a.TotalRatings > b.TotalRatings
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) LockService(_ context.Context, id int64) (*Service, error) {
	s, ok := t.st.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyService(s), nil
}

func (t *memTx) HasRated(_ context.Context, serviceID, fromUserID int64) (bool, error) {
	for _, r := range t.st.ratings {
		if r.ServiceID == serviceID && r.FromUserID == fromUserID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ClearLatest(_ context.Context, fromUserID, toUserID int64) error {
	for i := range t.st.ratings {
		r := &t.st.ratings[i]
		if r.FromUserID == fromUserID && r.ToUserID == toUserID {
			r.IsLatest = false
		}
	}
	return nil
}

func (t *memTx) InsertRating(ctx context.Context, r *Rating) error {
	if rated, _ := t.HasRated(ctx, r.ServiceID, r.FromUserID); rated {
		return ErrDuplicateRating
	}
	t.st.nextID++
	r.ID = t.st.nextID
	r.CreatedAt = t.now().UTC()
	t.st.ratings = append(t.st.ratings, *r)
	return nil
}

func (t *memTx) RatedRoles(_ context.Context, serviceID int64) (bool, bool, error) {
	var store, assembler bool
	for _, r := range t.st.ratings {
		if r.ServiceID != serviceID {
			continue
		}
		switch r.FromUserType {
		case RoleStore:
			store = true
		case RoleAssembler:
			assembler = true
		}
	}
	return store, assembler, nil
}

func (t *memTx) SaveService(_ context.Context, s *Service) error {
	if _, ok := t.st.services[s.ID]; !ok {
		return ErrNotFound
	}
	if !s.DistinctParticipants() {
		return ErrSameParticipant
	}
	t.st.services[s.ID] = *copyService(*s)
	return nil
}

func (st memState) clone() memState {
	out := memState{
		users:    make(map[int64]Participant, len(st.users)),
		services: make(map[int64]Service, len(st.services)),
		ratings:  make([]Rating, len(st.ratings)),
		nextID:   st.nextID,
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.services {
		out.services[k] = *copyService(v)
	}
	copy(out.ratings, st.ratings)
	return out
}

func copyService(s Service) *Service {
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	if s.PaymentConfirmedAt != nil {
		t := *s.PaymentConfirmedAt
		s.PaymentConfirmedAt = &t
	}
	return &s
}

func newestFirst(rs []Rating) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})
}
