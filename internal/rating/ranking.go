package rating

import "context"

const (
	DefaultRankingLimit = 10
	MaxRankingLimit     = 50
)

// RankingEntry is one user's position in the public ranking of a role.
type RankingEntry struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	UserType      Role    `json:"userType"`
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int     `json:"totalRatings"`
}

// Ranking lists the best rated users of role, counting only the latest
// rating between each pair. Ties go to the user with more ratings, then to
// the lower id. limit is clamped to [1, MaxRankingLimit].
func (g *Gate) Ranking(ctx context.Context, role Role, limit int) ([]RankingEntry, error) {
	if !role.Valid() {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	if limit > MaxRankingLimit {
		limit = MaxRankingLimit
	}
	out, err := g.repo.Ranking(ctx, role, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []RankingEntry{}
	}
	for i := range out {
		out[i].UserType = role
		out[i].AverageRating = round1(out[i].AverageRating)
	}
	return out, nil
}
