package rating

import (
	"context"
	"sort"
	"time"
)

// ResolvePendingObligations lists the services userID still has to rate,
// most recently finished first. It only reads, so clients may poll it.
func (g *Gate) ResolvePendingObligations(ctx context.Context, userID int64) ([]Obligation, error) {
	if _, err := g.repo.User(ctx, userID); err != nil {
		return nil, err
	}
	services, err := g.repo.ConfirmedServicesFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return PendingFor(userID, services), nil
}

// MustBlock is true while userID owes at least one rating.
func (g *Gate) MustBlock(ctx context.Context, userID int64) (bool, error) {
	obligations, err := g.ResolvePendingObligations(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(obligations) > 0, nil
}

// PendingFor derives the obligations of userID from a set of services.
func PendingFor(userID int64, services []Service) []Obligation {
	out := make([]Obligation, 0, len(services))
	for i := range services {
		s := &services[i]
		if !s.ReadyForEvaluation() {
			continue
		}
		role, ok := s.RoleOf(userID)
		if !ok || s.RatedBy(role) {
			continue
		}
		cp := s.Counterpart(role)
		out = append(out, Obligation{
			ServiceID:       s.ID,
			ServiceTitle:    s.Title,
			Role:            role,
			CounterpartID:   cp.ID,
			CounterpartName: cp.Name,
			CounterpartRole: counterRole(role),
			CompletedAt:     finishedAt(s),
			Trigger:         TriggerPoll,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CompletedAt, out[j].CompletedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].ServiceID < out[j].ServiceID
	})
	return out
}

// finishedAt is when the work was considered done: the completion time if
// set, otherwise the payment confirmation that opened the evaluation.
func finishedAt(s *Service) *time.Time {
	if s.CompletedAt != nil {
		return s.CompletedAt
	}
	return s.PaymentConfirmedAt
}
