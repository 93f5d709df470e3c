// Package sizing converts advisor confidence into contract counts under
// account-level risk limits.
package sizing

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"volbot/internal/models"
)

const (
	// MinConfidence is the floor below which no position is taken.
	MinConfidence = 70

	// maxDayRisk caps total open max-loss at 10% of the account.
	maxDayRisk = 0.10
	// incomePopRisk is the fixed allocation for income-pop trades.
	incomePopRisk = 0.01
	// minHeadroom rejects entries when under 1% of day risk remains.
	minHeadroom = 0.01
	// nearMissRatio allows a single contract when the risk budget covers
	// at least 80% of one contract's max loss.
	nearMissRatio = 0.8

	// symbolConcentrationLimit caps per-symbol exposure at 20%.
	symbolConcentrationLimit = 0.20
	// maxIncomePopPositions caps the income-pop book.
	maxIncomePopPositions = 5
)

// Result describes one sizing decision. Contracts is zero when the trade
// was rejected; ConfidenceTier says why.
type Result struct {
	Contracts          int             `json:"contracts"`
	RiskAmount         float64         `json:"risk_amount"`
	RiskPercentage     float64         `json:"risk_percentage"`
	ConfidenceTier     string          `json:"confidence_tier"`
	BookType           models.BookType `json:"book_type"`
	MaxLossPerContract float64         `json:"max_loss_per_contract"`
	TotalMaxLoss       float64         `json:"total_max_loss"`
}

// Sizer sizes positions from a confidence tier and tracks day-at-risk
// against the account balance.
type Sizer struct {
	accountBalance float64
	currentDayRisk float64
	logger         *logrus.Logger
}

// NewSizer creates a Sizer for the given starting balance.
func NewSizer(accountBalance float64, logger *logrus.Logger) (*Sizer, error) {
	if accountBalance <= 0 {
		return nil, fmt.Errorf("sizing: account balance must be positive, got %v", accountBalance)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Sizer{accountBalance: accountBalance, logger: logger}, nil
}

// CalculateSize returns the contract count for a trade with the given
// confidence and per-contract max loss. openPositions, when non-nil,
// refreshes the day-at-risk figure before the limit check. A rejected
// trade returns Contracts == 0 with a nil error; errors are reserved for
// invalid inputs.
func (s *Sizer) CalculateSize(confidence int, maxLossPerContract float64,
	bookType models.BookType, openPositions []*models.Trade) (Result, error) {
	if !bookType.Valid() {
		return Result{}, fmt.Errorf("sizing: invalid book type %q", bookType)
	}
	if maxLossPerContract <= 0 {
		return Result{}, fmt.Errorf("sizing: max loss per contract must be positive, got %v", maxLossPerContract)
	}

	if confidence < MinConfidence {
		s.logger.WithField("confidence", confidence).Warn("Confidence below minimum threshold")
		return Result{
			ConfidenceTier:     "Below threshold",
			BookType:           bookType,
			MaxLossPerContract: maxLossPerContract,
		}, nil
	}

	riskPct := s.riskPercentage(confidence, bookType)
	tier := ConfidenceTier(confidence)

	if openPositions != nil {
		s.currentDayRisk = s.dayRiskOf(openPositions)
	}

	if s.currentDayRisk+riskPct > maxDayRisk {
		headroom := maxDayRisk - s.currentDayRisk
		if headroom < minHeadroom {
			s.logger.WithFields(logrus.Fields{
				"current_day_risk": fmt.Sprintf("%.1f%%", s.currentDayRisk*100),
				"max_day_risk":     fmt.Sprintf("%.1f%%", maxDayRisk*100),
			}).Warn("Day risk limit reached")
			return Result{
				ConfidenceTier:     tier + " (Risk limit reached)",
				BookType:           bookType,
				MaxLossPerContract: maxLossPerContract,
			}, nil
		}
		riskPct = headroom
		s.logger.WithField("risk_pct", fmt.Sprintf("%.1f%%", riskPct*100)).
			Info("Adjusted risk to remaining day headroom")
	}

	riskAmount := s.accountBalance * riskPct
	contracts := int(riskAmount / maxLossPerContract)
	if contracts == 0 && riskAmount >= maxLossPerContract*nearMissRatio {
		contracts = 1
	}

	totalMaxLoss := float64(contracts) * maxLossPerContract

	s.logger.WithFields(logrus.Fields{
		"confidence":  confidence,
		"tier":        tier,
		"contracts":   contracts,
		"risk_amount": fmt.Sprintf("%.0f", riskAmount),
	}).Info("Position sized")

	return Result{
		Contracts:          contracts,
		RiskAmount:         riskAmount,
		RiskPercentage:     totalMaxLoss / s.accountBalance,
		ConfidenceTier:     tier,
		BookType:           bookType,
		MaxLossPerContract: maxLossPerContract,
		TotalMaxLoss:       totalMaxLoss,
	}, nil
}

func (s *Sizer) riskPercentage(confidence int, bookType models.BookType) float64 {
	if bookType == models.BookIncomePop {
		return incomePopRisk
	}
	switch {
	case confidence >= 90:
		return 0.08
	case confidence >= 80:
		return 0.05
	case confidence >= MinConfidence:
		return 0.03
	default:
		return 0
	}
}

// ConfidenceTier names the risk tier a confidence score falls in.
func ConfidenceTier(confidence int) string {
	switch {
	case confidence < MinConfidence:
		return "Below threshold"
	case confidence < 80:
		return "Standard (3%)"
	case confidence < 90:
		return "High (5%)"
	default:
		return "Very High (8%)"
	}
}

func (s *Sizer) dayRiskOf(positions []*models.Trade) float64 {
	total := 0.0
	for _, pos := range positions {
		total += pos.MaxLoss
	}
	return total / s.accountBalance
}

// ValidatePositionLimits checks per-symbol concentration and the
// income-pop position cap against the open book. Returns false with a
// reason when a limit blocks the trade.
func (s *Sizer) ValidatePositionLimits(symbol string, bookType models.BookType,
	openPositions []*models.Trade) (bool, string) {
	symbolExposure := 0.0
	incomePopCount := 0
	for _, pos := range openPositions {
		if pos.Symbol == symbol {
			symbolExposure += pos.MaxLoss / s.accountBalance
		}
		if pos.BookType == models.BookIncomePop {
			incomePopCount++
		}
	}

	if symbolExposure >= symbolConcentrationLimit {
		return false, fmt.Sprintf("symbol concentration limit reached for %s", symbol)
	}
	if bookType == models.BookIncomePop && incomePopCount >= maxIncomePopPositions {
		return false, fmt.Sprintf("income-pop book limit reached (max %d)", maxIncomePopPositions)
	}
	return true, "OK"
}

// UpdateBalance sets a new account balance for subsequent sizing.
func (s *Sizer) UpdateBalance(newBalance float64) {
	s.accountBalance = newBalance
}

// Balance returns the balance the Sizer is currently sizing against.
func (s *Sizer) Balance() float64 { return s.accountBalance }
