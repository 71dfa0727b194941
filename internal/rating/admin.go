package rating

import "context"

// Stats is the operator view of the gate.
type Stats struct {
	Services           map[ServiceStatus]int `json:"services"`
	AwaitingEvaluation int                   `json:"awaitingEvaluation"`
	Ratings            int                   `json:"ratings"`
	AverageRating      float64               `json:"averageRating"`
}

func (s ServiceStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusAwaitingEvaluation, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ListServices is the admin listing. An empty status lists everything.
func (g *Gate) ListServices(ctx context.Context, status ServiceStatus) ([]Service, error) {
	if status != "" && !status.Valid() {
		return nil, ErrNotFound
	}
	out, err := g.repo.ListServices(ctx, status)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Service{}
	}
	return out, nil
}

func (g *Gate) Stats(ctx context.Context) (*Stats, error) {
	st, err := g.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st.AverageRating = round1(st.AverageRating)
	return st, nil
}
