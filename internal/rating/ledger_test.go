package rating_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amigo-montador/montador/internal/rating"
)

var fixedNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []rating.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e rating.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

func (d *recordingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, e := range d.events {
		out = append(out, e.Type())
	}
	return out
}

// setup seeds service #42 between store user 1 and assembler user 2 with
// payment confirmed.
func setup(t *testing.T, opts ...rating.Option) (*rating.Gate, *rating.MemoryRepo, *recordingDispatcher) {
	t.Helper()
	repo := rating.NewMemoryRepo()
	repo.AddUser(rating.Participant{ID: 1, Name: "store 1", Role: rating.RoleStore})
	repo.AddUser(rating.Participant{ID: 2, Name: "assembler 2", Role: rating.RoleAssembler})
	repo.AddUser(rating.Participant{ID: 3, Name: "outsider", Role: rating.RoleAssembler})
	confirmed := fixedNow.Add(-time.Hour)
	repo.AddService(rating.Service{
		ID:                 42,
		Title:              "Guarda-roupa 6 portas",
		Status:             rating.StatusAwaitingEvaluation,
		PaymentStatus:      rating.PaymentConfirmed,
		Store:              rating.Participant{ID: 1},
		Assembler:          rating.Participant{ID: 2},
		RatingRequired:     true,
		PaymentConfirmedAt: &confirmed,
	})
	dispatcher := &recordingDispatcher{}
	opts = append([]rating.Option{rating.WithDispatchers(dispatcher), rating.WithClock(func() time.Time { return fixedNow })}, opts...)
	return rating.NewGate(repo, opts...), repo, dispatcher
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestSubmitRating(t *testing.T) {
	ctx := context.Background()

	t.Run("first side rated keeps service awaiting evaluation", func(t *testing.T) {
		gate, repo, dispatcher := setup(t)

		pending, err := gate.ResolvePendingObligations(ctx, 1)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, int64(42), pending[0].ServiceID)
		assert.Equal(t, "assembler 2", pending[0].CounterpartName)

		sub, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, ToUserID: 2, Score: 5, Comment: strPtr("Great job")})
		require.NoError(t, err)
		assert.Equal(t, rating.RoleStore, sub.Rating.FromUserType)
		assert.Equal(t, rating.RoleAssembler, sub.Rating.ToUserType)
		assert.True(t, sub.Rating.IsLatest)
		assert.True(t, sub.Service.StoreRatingCompleted)
		assert.False(t, sub.Service.AssemblerRatingCompleted)
		assert.Equal(t, rating.OneSideRated, sub.Service.GateState())

		pending, err = gate.ResolvePendingObligations(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, pending)

		pending, err = gate.ResolvePendingObligations(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, int64(42), pending[0].ServiceID)
		assert.Equal(t, "store 1", pending[0].CounterpartName)

		svc, err := repo.Service(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, rating.StatusAwaitingEvaluation, svc.Status)
		assert.True(t, svc.RatingRequired)
		assert.Nil(t, svc.CompletedAt)

		assert.Equal(t, []string{rating.EventRatingSubmitted, rating.EventObligationsChanged, rating.EventRatingNeeded}, dispatcher.types())
	})

	t.Run("second side rating completes the service", func(t *testing.T) {
		gate, repo, dispatcher := setup(t)
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, ToUserID: 2, Score: 5, Comment: strPtr("Great job")})
		require.NoError(t, err)
		dispatcher.Reset()

		sub, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 2, ToUserID: 1, Score: 4})
		require.NoError(t, err)
		assert.Equal(t, rating.BothRated, sub.Service.GateState())

		svc, err := repo.Service(ctx, 42)
		require.NoError(t, err)
		assert.True(t, svc.StoreRatingCompleted)
		assert.True(t, svc.AssemblerRatingCompleted)
		assert.False(t, svc.RatingRequired)
		assert.Equal(t, rating.StatusCompleted, svc.Status)
		require.NotNil(t, svc.CompletedAt)
		assert.Equal(t, fixedNow, *svc.CompletedAt)

		assert.Contains(t, dispatcher.types(), rating.EventServiceCompleted)
		assert.NotContains(t, dispatcher.types(), rating.EventRatingNeeded)
	})

	t.Run("duplicate is rejected without side effects", func(t *testing.T) {
		gate, repo, dispatcher := setup(t)
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, ToUserID: 2, Score: 5, Comment: strPtr("Great job")})
		require.NoError(t, err)
		before, _ := repo.Service(ctx, 42)
		dispatcher.Reset()

		_, err = gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, ToUserID: 2, Score: 5})
		assert.ErrorIs(t, err, rating.ErrDuplicateRating)

		after, _ := repo.Service(ctx, 42)
		assert.Equal(t, before, after)
		ratings, err := gate.ListRatingsForService(ctx, 42)
		require.NoError(t, err)
		assert.Len(t, ratings, 1)
		assert.Empty(t, dispatcher.types())
	})

	t.Run("Counterpart is derived when not supplied", func(t *testing.T) {
		gate, _, _ := setup(t)
		sub, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 2, Score: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(1), sub.Rating.ToUserID)
	})

	t.Run("Sub-scores default to five", func(t *testing.T) {
		gate, _, _ := setup(t)
		sub, err := gate.SubmitRating(ctx, rating.SubmitRequest{
			ServiceID:  42,
			FromUserID: 1,
			Score:      2,
			SubScores:  rating.SubScores{Quality: intPtr(3)},
		})
		require.NoError(t, err)
		assert.Equal(t, 5, sub.Rating.PunctualityRating)
		assert.Equal(t, 3, sub.Rating.QualityRating)
		assert.Equal(t, 5, sub.Rating.ComplianceRating)
		assert.Equal(t, "👎", sub.Rating.EmojiRating)
		assert.Nil(t, sub.Rating.Comment)
	})
}

func TestSubmitRatingRejections(t *testing.T) {
	ctx := context.Background()

	for _, score := range []int{0, 6, -1} {
		gate, _, _ := setup(t)
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: score})
		assert.ErrorIs(t, err, rating.ErrInvalidRatingValue, "score %d", score)
		ratings, _ := gate.ListRatingsForService(ctx, 42)
		assert.Empty(t, ratings)
	}

	t.Run("Sub-score out of range", func(t *testing.T) {
		gate, _, _ := setup(t)
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: 4, SubScores: rating.SubScores{Compliance: intPtr(9)}})
		assert.ErrorIs(t, err, rating.ErrInvalidRatingValue)
	})

	t.Run("Comment below the required length", func(t *testing.T) {
		gate, _, _ := setup(t, rating.WithMinCommentLength(10))
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: 4, Comment: strPtr("  ok  ")})
		assert.ErrorIs(t, err, rating.ErrInvalidComment)
		_, err = gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: 4})
		assert.ErrorIs(t, err, rating.ErrInvalidComment)
		_, err = gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: 4, Comment: strPtr("Montagem impecável")})
		assert.NoError(t, err)
	})

	t.Run("Unknown service", func(t *testing.T) {
		gate, _, _ := setup(t)
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 99, FromUserID: 1, Score: 4})
		assert.ErrorIs(t, err, rating.ErrNotFound)
		_, err = gate.ListRatingsForService(ctx, 99)
		assert.ErrorIs(t, err, rating.ErrNotFound)
	})

	t.Run("Not a participant", func(t *testing.T) {
		gate, _, _ := setup(t)
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 3, Score: 4})
		assert.ErrorIs(t, err, rating.ErrNotParticipant)
	})

	t.Run("Wrong counterpart", func(t *testing.T) {
		gate, _, _ := setup(t)
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, ToUserID: 3, Score: 4})
		assert.ErrorIs(t, err, rating.ErrInvalidCounterpart)
		_, err = gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, ToUserID: 1, Score: 4})
		assert.ErrorIs(t, err, rating.ErrInvalidCounterpart)
	})

	t.Run("Payment not confirmed", func(t *testing.T) {
		gate, repo, _ := setup(t)
		repo.AddService(rating.Service{ID: 7, Title: "Cozinha", Status: rating.StatusInProgress, PaymentStatus: rating.PaymentProofSubmitted,
			Store: rating.Participant{ID: 1}, Assembler: rating.Participant{ID: 2}})
		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 7, FromUserID: 1, Score: 4})
		assert.ErrorIs(t, err, rating.ErrNotReadyForEvaluation)
	})

	t.Run("Storage failure keeps the obligation", func(t *testing.T) {
		gate, repo, dispatcher := setup(t)
		storageErr := errors.New("connection reset")
		repo.FailNextTx(storageErr)

		_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: 5})
		assert.ErrorIs(t, err, storageErr)
		assert.Empty(t, dispatcher.types())

		pending, err := gate.ResolvePendingObligations(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
		ratings, _ := gate.ListRatingsForService(ctx, 42)
		assert.Empty(t, ratings)

		_, err = gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: 5})
		assert.NoError(t, err)
	})
}

func TestScoreFromFloat(t *testing.T) {
	n, err := rating.ScoreFromFloat(4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	for _, v := range []float64{0, 6, 4.5, -2} {
		_, err := rating.ScoreFromFloat(v)
		assert.ErrorIs(t, err, rating.ErrInvalidRatingValue, "value %v", v)
	}
}

func TestListRatingsForServiceNewestFirst(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := setup(t)

	ratings, err := gate.ListRatingsForService(ctx, 42)
	require.NoError(t, err)
	assert.NotNil(t, ratings)
	assert.Empty(t, ratings)

	_, err = gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: 5})
	require.NoError(t, err)
	_, err = gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 2, Score: 4})
	require.NoError(t, err)

	ratings, err = gate.ListRatingsForService(ctx, 42)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
	assert.Equal(t, int64(2), ratings[0].FromUserID)
	assert.Equal(t, int64(1), ratings[1].FromUserID)
}

func TestSubmitRatingClearsEarlierLatest(t *testing.T) {
	ctx := context.Background()
	gate, repo, _ := setup(t)
	confirmed := fixedNow
	repo.AddService(rating.Service{ID: 43, Title: "Estante", Status: rating.StatusAwaitingEvaluation, PaymentStatus: rating.PaymentConfirmed,
		Store: rating.Participant{ID: 1}, Assembler: rating.Participant{ID: 2}, RatingRequired: true, PaymentConfirmedAt: &confirmed})

	_, err := gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 42, FromUserID: 1, Score: 2})
	require.NoError(t, err)
	_, err = gate.SubmitRating(ctx, rating.SubmitRequest{ServiceID: 43, FromUserID: 1, Score: 5})
	require.NoError(t, err)

	received, err := repo.RatingsReceived(ctx, 2)
	require.NoError(t, err)
	require.Len(t, received, 2)
	latest := 0
	for _, r := range received {
		if r.IsLatest {
			latest++
			assert.Equal(t, int64(43), r.ServiceID)
		}
	}
	assert.Equal(t, 1, latest)
}
