package strategy

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"intraday-scanner/internal/indicators"
	"intraday-scanner/internal/models"
)

// trendingCandles builds a steadily moving series with meaningful candle
// bodies and a volume spike on the final bar.
func trendingCandles(n int, start, step float64) []models.Candle {
	base := time.Date(2026, 1, 15, 9, 15, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		close := start + step*float64(i+1)
		open := close - step
		high := close + 0.3
		low := open - 0.3
		if step < 0 {
			high = open + 0.3
			low = close - 0.3
		}
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000,
		}
	}
	candles[n-1].Volume = 2000
	return candles
}

func TestEvaluateBarUptrendEmitsBuySignal(t *testing.T) {
	engine := NewEngine()
	candles := trendingCandles(60, 100, 0.2)

	sig, reason, err := engine.EvaluateBar("RELIANCE", candles)
	if err != nil {
		t.Fatalf("EvaluateBar: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected a signal, got none (reason: %s)", reason)
	}

	if sig.Direction != models.OrderSideBuy {
		t.Errorf("Direction = %s, want BUY", sig.Direction)
	}
	if sig.Score < 3 || sig.Score > 8 {
		t.Errorf("Score = %d, want within [3,8]", sig.Score)
	}
	// The final candle is bullish, so the reversal booster always fires.
	if sig.Score < 4 {
		t.Errorf("Score = %d, want >= 4 with bullish candle booster", sig.Score)
	}
	if sig.Quality != QualityForScore(sig.Score) {
		t.Errorf("Quality = %s, inconsistent with score %d", sig.Quality, sig.Score)
	}
	if want := float64(sig.Score) / 8; sig.Strength != want {
		t.Errorf("Strength = %f, want %f", sig.Strength, want)
	}

	price := candles[len(candles)-1].Close
	if want := price * 0.997; !closeTo(sig.StopLoss, want) {
		t.Errorf("StopLoss = %f, want %f", sig.StopLoss, want)
	}
	if want := price * 1.007; !closeTo(sig.TakeProfit, want) {
		t.Errorf("TakeProfit = %f, want %f", sig.TakeProfit, want)
	}
	if len(sig.ConditionsMet) < 3 {
		t.Errorf("ConditionsMet = %d entries, want at least the three mandatory filters", len(sig.ConditionsMet))
	}
}

func TestEvaluateBarDowntrendEmitsSellSignal(t *testing.T) {
	engine := NewEngine()
	candles := trendingCandles(60, 200, -0.2)

	sig, reason, err := engine.EvaluateBar("TCS", candles)
	if err != nil {
		t.Fatalf("EvaluateBar: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected a signal, got none (reason: %s)", reason)
	}

	if sig.Direction != models.OrderSideSell {
		t.Errorf("Direction = %s, want SELL", sig.Direction)
	}
	price := candles[len(candles)-1].Close
	if sig.StopLoss <= price {
		t.Errorf("SELL StopLoss = %f, want above entry %f", sig.StopLoss, price)
	}
	if sig.TakeProfit >= price {
		t.Errorf("SELL TakeProfit = %f, want below entry %f", sig.TakeProfit, price)
	}
}

// A sustained uptrend fires MACD, trend-strength and bullish-candle
// boosters on top of the mandatory three, so the tier is always HIGH-PROB.
func TestEvaluateBarHighProbabilitySignal(t *testing.T) {
	engine := NewEngine()
	candles := trendingCandles(60, 100, 0.5)

	sig, reason, err := engine.EvaluateBar("RELIANCE", candles)
	if err != nil {
		t.Fatalf("EvaluateBar: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected a signal, got none (reason: %s)", reason)
	}

	if sig.Score < 5 {
		t.Errorf("Score = %d, want >= 5 (MACD, trend strength and bullish candle all align)", sig.Score)
	}
	if sig.Quality != QualityHighProb {
		t.Errorf("Quality = %s, want %s", sig.Quality, QualityHighProb)
	}
	if len(sig.ConditionsMet) < 5 {
		t.Errorf("ConditionsMet = %d entries, want >= 5", len(sig.ConditionsMet))
	}
	if want := float64(sig.Score) / 8; sig.Strength != want {
		t.Errorf("Strength = %f, want %f", sig.Strength, want)
	}

	price := candles[len(candles)-1].Close
	if want := price * 0.997; !closeTo(sig.StopLoss, want) {
		t.Errorf("StopLoss = %f, want %f", sig.StopLoss, want)
	}
	if want := price * 1.007; !closeTo(sig.TakeProfit, want) {
		t.Errorf("TakeProfit = %f, want %f", sig.TakeProfit, want)
	}
}

// Flat closes pin the EMA50 exactly at the price, so the trend filter
// rejects even though volume and range both pass.
func TestEvaluateBarNoTrendBiasRejected(t *testing.T) {
	engine := NewEngine()

	base := time.Date(2026, 1, 15, 9, 15, 0, 0, time.UTC)
	candles := make([]models.Candle, 60)
	for i := range candles {
		candles[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100,
			High:      100.05,
			Low:       99.95,
			Close:     100,
			Volume:    1000,
		}
	}
	// Wide, busy final bar closing right on the average.
	candles[59].Open = 99.8
	candles[59].High = 100.3
	candles[59].Low = 99.6
	candles[59].Close = 100
	candles[59].Volume = 2000

	sig, reason, err := engine.EvaluateBar("RELIANCE", candles)
	if err != nil {
		t.Fatalf("EvaluateBar: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected rejection, got signal %+v", sig)
	}
	if !strings.Contains(reason, "No clear trend bias") {
		t.Errorf("reason = %q, want trend-bias rejection", reason)
	}
}

func TestDetailedExplanationRendersConditions(t *testing.T) {
	engine := NewEngine()
	sig, reason, err := engine.EvaluateBar("RELIANCE", trendingCandles(60, 100, 0.5))
	if err != nil {
		t.Fatalf("EvaluateBar: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected a signal, got none (reason: %s)", reason)
	}

	text := sig.DetailedExplanation()
	for _, want := range []string{"BUY SIGNAL for RELIANCE", "Conditions met:", "Stop Loss", "Take Profit"} {
		if !strings.Contains(text, want) {
			t.Errorf("explanation missing %q:\n%s", want, text)
		}
	}
	for _, c := range sig.ConditionsMet {
		if !strings.Contains(text, c) {
			t.Errorf("explanation missing condition %q", c)
		}
	}
}

func TestEvaluateBarLowVolumeRejected(t *testing.T) {
	engine := NewEngine()
	candles := trendingCandles(60, 100, 0.2)
	candles[len(candles)-1].Volume = 500

	sig, reason, err := engine.EvaluateBar("INFY", candles)
	if err != nil {
		t.Fatalf("EvaluateBar: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected no signal on weak volume, got %v", sig)
	}
	if !strings.Contains(reason, "Volume too low") {
		t.Errorf("reason = %q, want volume filter failure", reason)
	}
}

func TestEvaluateBarSmallCandleRejected(t *testing.T) {
	engine := NewEngine()
	candles := trendingCandles(60, 100, 0.2)
	last := &candles[len(candles)-1]
	last.High = last.Close + 0.01
	last.Low = last.Close - 0.01
	last.Open = last.Close

	sig, reason, err := engine.EvaluateBar("INFY", candles)
	if err != nil {
		t.Fatalf("EvaluateBar: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected no signal on insignificant candle, got %v", sig)
	}
	if !strings.Contains(reason, "Candle too small") {
		t.Errorf("reason = %q, want candle filter failure", reason)
	}
}

func TestEvaluateBarInsufficientHistory(t *testing.T) {
	engine := NewEngine()
	candles := trendingCandles(indicators.MinBars-1, 100, 0.2)

	if _, _, err := engine.EvaluateBar("SBIN", candles); err == nil {
		t.Fatal("expected an error for a short series")
	}
}

func TestEvaluateBarDeterministic(t *testing.T) {
	engine := NewEngine()
	candles := trendingCandles(60, 100, 0.2)

	first, _, err := engine.EvaluateBar("HDFC", candles)
	if err != nil || first == nil {
		t.Fatalf("first evaluation: sig=%v err=%v", first, err)
	}
	second, _, err := engine.EvaluateBar("HDFC", candles)
	if err != nil || second == nil {
		t.Fatalf("second evaluation: sig=%v err=%v", second, err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different signals")
	}
}

func TestEvaluateScansLookbackWindow(t *testing.T) {
	engine := NewEngine()
	candles := trendingCandles(60, 100, 0.2)

	signals, err := engine.Evaluate("RELIANCE", candles)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Earlier bars carry no volume spike, so at most the final bar fires.
	for _, sig := range signals {
		if sig.Symbol != "RELIANCE" {
			t.Errorf("Symbol = %s, want RELIANCE", sig.Symbol)
		}
	}
}

func closeTo(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
