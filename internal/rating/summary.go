package rating

import "context"

// Summary aggregates the ratings a user received. Averages only count the
// latest rating from each rater so repeat customers are not over-weighted.
type Summary struct {
	UserID         int64   `json:"userId"`
	UserName       string  `json:"userName"`
	UserType       Role    `json:"userType"`
	TotalRatings   int     `json:"totalRatings"`
	AverageRating  float64 `json:"averageRating"`
	AvgPunctuality float64 `json:"averagePunctuality"`
	AvgQuality     float64 `json:"averageQuality"`
	AvgCompliance  float64 `json:"averageCompliance"`
	RatingCounts   struct {
		FiveStar  int `json:"fiveStar"`
		FourStar  int `json:"fourStar"`
		ThreeStar int `json:"threeStar"`
		TwoStar   int `json:"twoStar"`
		OneStar   int `json:"oneStar"`
	} `json:"ratingCounts"`
}

func (g *Gate) SummaryFor(ctx context.Context, userID int64) (*Summary, error) {
	user, err := g.repo.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	received, err := g.repo.RatingsReceived(ctx, userID)
	if err != nil {
		return nil, err
	}
	s := Summarize(received)
	s.UserID = user.ID
	s.UserName = user.Name
	s.UserType = user.Role
	return s, nil
}

// RatingsReceived lists the ratings addressed to userID, newest first.
func (g *Gate) RatingsReceived(ctx context.Context, userID int64) ([]Rating, error) {
	if _, err := g.repo.User(ctx, userID); err != nil {
		return nil, err
	}
	received, err := g.repo.RatingsReceived(ctx, userID)
	if err != nil {
		return nil, err
	}
	if received == nil {
		received = []Rating{}
	}
	return received, nil
}

// Summarize computes the aggregate over a set of received ratings.
func Summarize(received []Rating) *Summary {
	s := &Summary{TotalRatings: len(received)}
	var latest, sum, punct, qual, comp int
	for _, r := range received {
		switch r.Score {
		case 5:
			s.RatingCounts.FiveStar++
		case 4:
			s.RatingCounts.FourStar++
		case 3:
			s.RatingCounts.ThreeStar++
		case 2:
			s.RatingCounts.TwoStar++
		case 1:
			s.RatingCounts.OneStar++
		}
		if !r.IsLatest {
			continue
		}
		latest++
		sum += r.Score
		punct += r.PunctualityRating
		qual += r.QualityRating
		comp += r.ComplianceRating
	}
	if latest > 0 {
		n := float64(latest)
		s.AverageRating = round1(float64(sum) / n)
		s.AvgPunctuality = round1(float64(punct) / n)
		s.AvgQuality = round1(float64(qual) / n)
		s.AvgCompliance = round1(float64(comp) / n)
	}
	return s
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
