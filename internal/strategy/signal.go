// Package strategy implements the rule-based signal engine: three mandatory
// filters plus five confidence boosters scored on an 8-point scale.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"intraday-scanner/internal/models"
)

// Quality classifies a signal by its mandatory+booster score.
type Quality string

const (
	QualityValid    Quality = "VALID"     // score 3
	QualityStrong   Quality = "STRONG"    // score 4
	QualityHighProb Quality = "HIGH-PROB" // score 5..8
)

// QualityForScore maps a score to its tier. The mapping is total over the
// reachable range [3,8].
func QualityForScore(score int) Quality {
	switch {
	case score >= 5:
		return QualityHighProb
	case score >= 4:
		return QualityStrong
	default:
		return QualityValid
	}
}

// Signal is an immutable trading signal. It is created once per qualifying
// bar and consumed at most once by the execution controller.
type Signal struct {
	Symbol        string
	Direction     models.OrderSide
	Price         float64
	Strength      float64 // satisfied conditions / total conditions
	Score         int     // 3..8
	Quality       Quality
	StopLoss      float64
	TakeProfit    float64
	Reason        string
	Indicators    map[string]float64
	ConditionsMet []string
	Timestamp     time.Time
}

// RiskRewardRatio returns reward/risk for the configured stops, or 0 when
// undefined.
func (s *Signal) RiskRewardRatio() float64 {
	risk := s.Price - s.StopLoss
	if risk < 0 {
		risk = -risk
	}
	reward := s.TakeProfit - s.Price
	if reward < 0 {
		reward = -reward
	}
	if risk == 0 {
		return 0
	}
	return reward / risk
}

func (s *Signal) String() string {
	return fmt.Sprintf("Signal(%s, %s, %.2f, strength=%.2f)", s.Symbol, s.Direction, s.Price, s.Strength)
}

// DetailedExplanation renders a human-readable breakdown of why the signal
// triggered, for logs and alerts.
func (s *Signal) DetailedExplanation() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s SIGNAL for %s\n", s.Direction, s.Symbol)
	fmt.Fprintf(&b, "Price: %.2f\n", s.Price)
	fmt.Fprintf(&b, "Strength: %.0f%%\n", s.Strength*100)
	fmt.Fprintf(&b, "Time: %s\n\n", s.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Reason: %s\n", s.Reason)

	if len(s.ConditionsMet) > 0 {
		b.WriteString("\nConditions met:\n")
		for _, c := range s.ConditionsMet {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}

	if len(s.Indicators) > 0 {
		b.WriteString("\nIndicators:\n")
		for _, k := range []string{"RSI", "EMA_20", "EMA_50", "VWAP", "MACD", "MACD_Signal", "ATR", "Close", "Open", "High", "Low", "Volume"} {
			if v, ok := s.Indicators[k]; ok {
				fmt.Fprintf(&b, "  - %s: %.2f\n", k, v)
			}
		}
	}

	risk := s.Price - s.StopLoss
	if risk < 0 {
		risk = -risk
	}
	reward := s.TakeProfit - s.Price
	if reward < 0 {
		reward = -reward
	}
	b.WriteString("\nTrade setup:\n")
	fmt.Fprintf(&b, "  - Entry: %.2f\n", s.Price)
	fmt.Fprintf(&b, "  - Stop Loss: %.2f (risk %.2f)\n", s.StopLoss, risk)
	fmt.Fprintf(&b, "  - Take Profit: %.2f (reward %.2f)\n", s.TakeProfit, reward)
	if rr := s.RiskRewardRatio(); rr > 0 {
		fmt.Fprintf(&b, "  - Risk/Reward: 1:%.2f\n", rr)
	}

	return b.String()
}
