package advisor

import (
	"context"
	"fmt"
	"math"

	"volbot/internal/models"
)

// RuleAdvisor is a deterministic Advisor that fades large moves: a sharp
// drop sells a call spread above the market, a sharp rally sells a put
// spread below it. It exists so backtests are reproducible without a
// model in the loop.
type RuleAdvisor struct {
	// MinIVRank is the floor below which the advisor has no opinion.
	MinIVRank float64
}

// NewRuleAdvisor creates a RuleAdvisor with the given IV rank floor.
func NewRuleAdvisor(minIVRank float64) *RuleAdvisor {
	return &RuleAdvisor{MinIVRank: minIVRank}
}

// Analyze implements Advisor.
func (r *RuleAdvisor) Analyze(_ context.Context, snap *models.MarketSnapshot) (*models.AdvisorSignal, error) {
	if snap == nil {
		return nil, fmt.Errorf("advisor: nil snapshot")
	}
	if snap.IVRank < r.MinIVRank {
		return nil, nil
	}

	spreadType := models.PutCredit
	direction := "rally"
	if snap.PercentChange < 0 {
		spreadType = models.CallCredit
		direction = "selloff"
	}

	confidence := r.score(snap)
	return &models.AdvisorSignal{
		Confidence: confidence,
		SpreadType: spreadType,
		Reasoning: fmt.Sprintf("fading %.2f%% %s with IV rank %.0f, RSI %.0f",
			snap.PercentChange, direction, snap.IVRank, snap.RSI14),
	}, nil
}

// score builds a 0-100 confidence from IV richness, move size, and how
// stretched RSI is in the move's direction.
func (r *RuleAdvisor) score(snap *models.MarketSnapshot) int {
	score := 40.0

	score += snap.IVRank / 4 // up to 25 points for rich IV

	move := math.Min(math.Abs(snap.PercentChange), 5)
	score += move * 5 // up to 25 points for the size of the move

	// Stretched RSI against the move adds conviction for fading it.
	if snap.PercentChange < 0 && snap.RSI14 < 30 {
		score += 10
	}
	if snap.PercentChange > 0 && snap.RSI14 > 70 {
		score += 10
	}

	return int(math.Min(score, 100))
}
