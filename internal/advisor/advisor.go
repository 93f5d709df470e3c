// Package advisor turns market snapshots into trade signals. The engine
// only depends on the Advisor interface; implementations range from a
// deterministic rule set to a remote model behind a circuit breaker.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"volbot/internal/models"
)

// Advisor analyzes one snapshot. A (nil, nil) return means "no opinion":
// the advisor ran fine and declined to trade. Errors are transport or
// parse failures; the engine skips the opportunity either way.
type Advisor interface {
	Analyze(ctx context.Context, snapshot *models.MarketSnapshot) (*models.AdvisorSignal, error)
}

// Func adapts a plain function to the Advisor interface.
type Func func(ctx context.Context, snapshot *models.MarketSnapshot) (*models.AdvisorSignal, error)

// Analyze implements Advisor.
func (f Func) Analyze(ctx context.Context, snapshot *models.MarketSnapshot) (*models.AdvisorSignal, error) {
	return f(ctx, snapshot)
}

// rawSignal is the wire shape an advisory model replies with. Fields
// beyond the ones we keep are accepted and dropped.
type rawSignal struct {
	ShouldTrade bool    `json:"should_trade"`
	SpreadType  string  `json:"spread_type"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// ParseSignal extracts a signal from free-form model output. The JSON
// body may be wrapped in a markdown fence or surrounded by prose; the
// text between the first '{' and the last '}' is parsed. A well-formed
// reply with should_trade=false yields (nil, nil).
func ParseSignal(content string) (*models.AdvisorSignal, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("advisor: no JSON object in response")
	}

	var raw rawSignal
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("advisor: decode response: %w", err)
	}
	if !raw.ShouldTrade {
		return nil, nil
	}

	spreadType := models.SpreadType(raw.SpreadType)
	if !spreadType.Valid() {
		return nil, fmt.Errorf("advisor: invalid spread type %q", raw.SpreadType)
	}
	if raw.Confidence < 0 || raw.Confidence > 100 {
		return nil, fmt.Errorf("advisor: confidence %v out of range", raw.Confidence)
	}

	return &models.AdvisorSignal{
		Confidence: int(raw.Confidence),
		SpreadType: spreadType,
		Reasoning:  raw.Reasoning,
	}, nil
}
