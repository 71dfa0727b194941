package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/amigo-montador/montador/internal/middleware"
	"github.com/amigo-montador/montador/internal/rating"
)

var secret = []byte("test-secret")

type fixture struct {
	e    *echo.Echo
	repo *rating.MemoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := rating.NewMemoryRepo()
	repo.AddUser(rating.Participant{ID: 1, Name: "store 1", Role: rating.RoleStore})
	repo.AddUser(rating.Participant{ID: 2, Name: "assembler 2", Role: rating.RoleAssembler})
	repo.AddUser(rating.Participant{ID: 3, Name: "outsider", Role: rating.RoleAssembler})
	confirmed := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo.AddService(rating.Service{
		ID: 42, Title: "Guarda-roupa 6 portas",
		Status: rating.StatusAwaitingEvaluation, PaymentStatus: rating.PaymentConfirmed, RatingRequired: true,
		Store: rating.Participant{ID: 1}, Assembler: rating.Participant{ID: 2}, PaymentConfirmedAt: &confirmed,
	})
	repo.AddService(rating.Service{
		ID: 7, Title: "Cozinha", Status: rating.StatusInProgress, PaymentStatus: rating.PaymentProofSubmitted,
		Store: rating.Participant{ID: 1}, Assembler: rating.Participant{ID: 3},
	})

	e := echo.New()
	Routes(e, NewHandler(rating.NewGate(repo)), secret)
	return &fixture{e: e, repo: repo}
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := mw.SignToken(secret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) call(t *testing.T, method, target, tok, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestRateServiceFlow(t *testing.T) {
	f := newFixture(t)
	store := token(t, 1, "lojista")
	assembler := token(t, 2, "montador")

	rec, body := f.call(t, http.MethodGet, "/mandatory-ratings", store, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["hasPendingRatings"])
	pending := body["pendingRatings"].([]any)
	require.Len(t, pending, 1)
	first := pending[0].(map[string]any)
	assert.EqualValues(t, 42, first["serviceId"])
	assert.Equal(t, "Guarda-roupa 6 portas", first["serviceName"])
	assert.Equal(t, "assembler 2", first["otherUserName"])
	assert.Equal(t, "montador", first["otherUserType"])

	rec, body = f.call(t, http.MethodPost, "/services/42/rate", store, `{"rating": 5, "comment": "Great job", "qualityRating": 4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["hasPendingRatings"])
	assert.Equal(t, string(rating.OneSideRated), body["state"])
	r := body["rating"].(map[string]any)
	assert.EqualValues(t, 2, r["toUserId"])
	assert.EqualValues(t, 4, r["qualityRating"])
	assert.EqualValues(t, 5, r["punctualityRating"])

	rec, body = f.call(t, http.MethodGet, "/mandatory-ratings/block", store, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["mustBlock"])

	rec, body = f.call(t, http.MethodGet, "/services/pending-evaluations", assembler, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["pendingRatings"], 1)

	rec, body = f.call(t, http.MethodPost, "/services/42/rate", assembler, `{"rating": 4.0}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, string(rating.BothRated), body["state"])
	svc := body["service"].(map[string]any)
	assert.Equal(t, "completed", svc["status"])
	assert.Equal(t, false, svc["ratingRequired"])
	assert.NotEmpty(t, svc["completedAt"])

	rec, body = f.call(t, http.MethodGet, "/services/42/ratings", assembler, "")
	require.Equal(t, http.StatusOK, rec.Code)
	ratings := body["ratings"].([]any)
	require.Len(t, ratings, 2)
	assert.EqualValues(t, 2, ratings[0].(map[string]any)["fromUserId"])
}

func TestRateServiceDuplicate(t *testing.T) {
	f := newFixture(t)
	store := token(t, 1, "lojista")

	rec, _ := f.call(t, http.MethodPost, "/services/42/rate", store, `{"rating": 5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := f.call(t, http.MethodPost, "/services/42/rate", store, `{"rating": 5}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_RATING", body["code"])
	assert.Equal(t, false, body["hasPendingRatings"])
	assert.Empty(t, body["pendingRatings"])
}

func TestRateServiceRejections(t *testing.T) {
	f := newFixture(t)
	store := token(t, 1, "lojista")
	outsider := token(t, 3, "montador")

	cases := []struct {
		name   string
		target string
		tok    string
		body   string
		status int
		code   string
	}{
		{"zero", "/services/42/rate", store, `{"rating": 0}`, http.StatusBadRequest, "INVALID_RATING_VALUE"},
		{"six", "/services/42/rate", store, `{"rating": 6}`, http.StatusBadRequest, "INVALID_RATING_VALUE"},
		{"fraction", "/services/42/rate", store, `{"rating": 4.5}`, http.StatusBadRequest, "INVALID_RATING_VALUE"},
		{"missing", "/services/42/rate", store, `{"comment": "hi"}`, http.StatusBadRequest, "INVALID_RATING_VALUE"},
		{"bad sub-score", "/services/42/rate", store, `{"rating": 5, "complianceRating": 7}`, http.StatusBadRequest, "INVALID_RATING_VALUE"},
		{"long comment", "/services/42/rate", store, `{"rating": 5, "comment": "` + strings.Repeat("a", 1001) + `"}`, http.StatusBadRequest, "INVALID_COMMENT"},
		{"wrong counterpart", "/services/42/rate", store, `{"rating": 5, "toUserId": 3}`, http.StatusBadRequest, "INVALID_COUNTERPART"},
		{"not participant", "/services/42/rate", outsider, `{"rating": 5}`, http.StatusForbidden, "NOT_PARTICIPANT"},
		{"not ready", "/services/7/rate", store, `{"rating": 5}`, http.StatusBadRequest, "NOT_READY_FOR_EVALUATION"},
		{"unknown", "/services/999/rate", store, `{"rating": 5}`, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := f.call(t, http.MethodPost, tc.target, tc.tok, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, body["code"])
		})
	}

	rec, _ := f.call(t, http.MethodPost, "/services/42/rate", store, `{"rating": "five"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.call(t, http.MethodPost, "/services/abc/rate", store, `{"rating": 5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.call(t, http.MethodPost, "/services/42/rate", "", `{"rating": 5}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = f.call(t, http.MethodPost, "/services/42/rate", token(t, 9, mw.RoleAdmin), `{"rating": 5}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ratings, err := rating.NewGate(f.repo).ListRatingsForService(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, ratings)
}

func TestStorageUnavailableIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.repo.FailNextTx(rating.ErrStorageUnavailable)

	rec, body := f.call(t, http.MethodPost, "/services/42/rate", token(t, 1, "lojista"), `{"rating": 5}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, true, body["retryable"])

	rec, body = f.call(t, http.MethodGet, "/mandatory-ratings", token(t, 1, "lojista"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["hasPendingRatings"])
}

func TestGetServiceEnforcesRatings(t *testing.T) {
	f := newFixture(t)
	store := token(t, 1, "lojista")

	rec, body := f.call(t, http.MethodGet, "/services/7", store, "")
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Equal(t, "RATING_REQUIRED", body["code"])

	rec, body = f.call(t, http.MethodGet, "/services/42", store, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lojista", body["myRole"])
	assert.Equal(t, false, body["iRated"])

	rec, _ = f.call(t, http.MethodPost, "/services/42/rate", store, `{"rating": 3}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = f.call(t, http.MethodGet, "/services/7", store, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.call(t, http.MethodGet, "/services/42/ratings", token(t, 3, "montador"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminTransitions(t *testing.T) {
	f := newFixture(t)
	admin := token(t, 100, mw.RoleAdmin)

	rec, _ := f.call(t, http.MethodPost, "/admin/services/7/payment/confirm", token(t, 1, "lojista"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := f.call(t, http.MethodPost, "/admin/services/7/payment/confirm", admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	svc := body["service"].(map[string]any)
	assert.Equal(t, "confirmed", svc["paymentStatus"])
	assert.Equal(t, "awaiting-evaluation", svc["status"])

	rec, body = f.call(t, http.MethodGet, "/mandatory-ratings", token(t, 3, "montador"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["pendingRatings"], 1)

	rec, _ = f.call(t, http.MethodPost, "/admin/services/7/cancel", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body = f.call(t, http.MethodGet, "/mandatory-ratings", token(t, 3, "montador"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["hasPendingRatings"])

	rec, body = f.call(t, http.MethodPost, "/admin/services/42/reconcile", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(rating.AwaitingRatings), body["state"])

	rec, body = f.call(t, http.MethodPost, "/admin/services/999/cancel", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestUserRatingSummary(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.call(t, http.MethodPost, "/services/42/rate", token(t, 1, "lojista"), `{"rating": 4, "punctualityRating": 3}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := f.call(t, http.MethodGet, "/users/2/ratings/summary?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["totalRatings"])
	assert.EqualValues(t, 4, summary["averageRating"])
	assert.EqualValues(t, 3, summary["averagePunctuality"])
	assert.Len(t, body["ratings"], 1)

	rec, body = f.call(t, http.MethodGet, "/users/2/ratings/summary?page=3", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["ratings"])

	rec, _ = f.call(t, http.MethodGet, "/users/404/ratings/summary", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRanking(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.call(t, http.MethodPost, "/services/42/rate", token(t, 1, "lojista"), `{"rating": 4}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := f.call(t, http.MethodGet, "/ranking/montador?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "montador", body["userType"])
	assert.EqualValues(t, 1, body["totalUsers"])
	ranking := body["ranking"].([]any)
	require.Len(t, ranking, 1)
	first := ranking[0].(map[string]any)
	assert.EqualValues(t, 2, first["id"])
	assert.Equal(t, "assembler 2", first["name"])
	assert.Equal(t, "montador", first["userType"])
	assert.EqualValues(t, 4, first["averageRating"])
	assert.EqualValues(t, 1, first["totalRatings"])

	rec, body = f.call(t, http.MethodGet, "/ranking/lojista", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["totalUsers"])
	assert.Empty(t, body["ranking"])
	assert.NotNil(t, body["ranking"])

	rec, _ = f.call(t, http.MethodGet, "/ranking/admin", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
