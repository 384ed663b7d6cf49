package strategy

import (
	"fmt"
	"strings"
	"time"

	"intraday-scanner/internal/indicators"
	"intraday-scanner/internal/models"
)

// totalConditions is the full condition set: 3 mandatory filters plus 5
// boosters. Strength is the satisfied fraction of this set.
const totalConditions = 8

// EngineConfig holds the thresholds of the scoring rule.
type EngineConfig struct {
	MinVolumeMultiplier    float64 // volume vs rolling average
	MinCandleRange         float64 // (high-low)/close
	RSIOversold            float64
	RSIOverbought          float64
	VWAPBandThreshold      float64 // distance from VWAP
	TrendStrengthThreshold float64 // EMA20-EMA50 separation vs EMA50
	StopLossPercent        float64
	TakeProfitPercent      float64
	Lookback               int // recent bars examined per Evaluate
}

// DefaultEngineConfig returns the production thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinVolumeMultiplier:    1.2,
		MinCandleRange:         0.0015,
		RSIOversold:            30,
		RSIOverbought:          70,
		VWAPBandThreshold:      0.002,
		TrendStrengthThreshold: 0.005,
		StopLossPercent:        0.003,
		TakeProfitPercent:      0.007,
		Lookback:               10,
	}
}

// Engine is the pure, deterministic signal engine. It holds no mutable
// state; a signal's score is fully determined by its indicator snapshot.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates an engine with default thresholds.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates an engine with custom thresholds.
func NewEngineWithConfig(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate examines the most recent bars of the series and returns the
// signals found, newest bar first. The series must carry enough history for
// the indicator set.
func (e *Engine) Evaluate(symbol string, candles []models.Candle) ([]Signal, error) {
	if len(candles) < indicators.MinBars {
		return nil, indicators.ErrInsufficientData
	}

	var signals []Signal
	stop := len(candles) - e.cfg.Lookback
	if stop < indicators.MinBars-1 {
		stop = indicators.MinBars - 1
	}

	for i := len(candles) - 1; i >= stop; i-- {
		sig, _, err := e.EvaluateBar(symbol, candles[:i+1])
		if err != nil {
			continue
		}
		if sig != nil {
			signals = append(signals, *sig)
		}
	}

	return signals, nil
}

// EvaluateBar evaluates only the final bar of the series. When no signal is
// emitted, the returned reason states which mandatory filter failed.
func (e *Engine) EvaluateBar(symbol string, candles []models.Candle) (*Signal, string, error) {
	snap, err := indicators.ComputeSnapshot(candles)
	if err != nil {
		return nil, "", err
	}

	bar := candles[len(candles)-1]
	price := bar.Close

	// Mandatory #1: trend bias
	isUptrend := price > snap.EMA50
	isDowntrend := price < snap.EMA50
	if !isUptrend && !isDowntrend {
		return nil, "No clear trend bias", nil
	}

	// Mandatory #2: volume confirmation
	volumeRatio := 0.0
	if snap.VolumeAvg > 0 {
		volumeRatio = float64(bar.Volume) / snap.VolumeAvg
	}
	if volumeRatio < e.cfg.MinVolumeMultiplier {
		return nil, fmt.Sprintf("Volume too low (%.1fx < %.1fx)", volumeRatio, e.cfg.MinVolumeMultiplier), nil
	}

	// Mandatory #3: candle significance
	candleRange := 0.0
	if price > 0 {
		candleRange = (bar.High - bar.Low) / price
	}
	if candleRange < e.cfg.MinCandleRange {
		return nil, fmt.Sprintf("Candle too small (%.2f%% < %.2f%%)", candleRange*100, e.cfg.MinCandleRange*100), nil
	}

	// All three mandatory filters passed; score starts at 3.
	score := 3
	var boosters []string
	var conditionsMet []string

	direction := models.OrderSideBuy
	trendText := "UPTREND"
	if isDowntrend {
		direction = models.OrderSideSell
		trendText = "DOWNTREND"
	}

	conditionsMet = append(conditionsMet,
		fmt.Sprintf("In %s: price %.2f vs EMA50 %.2f", trendText, price, snap.EMA50),
		fmt.Sprintf("Volume confirmation: %.1fx average", volumeRatio),
		fmt.Sprintf("Candle range %.2f%% >= %.2f%%", candleRange*100, e.cfg.MinCandleRange*100),
	)

	// Booster #1: RSI extreme in the trend direction
	if isUptrend && snap.RSI < e.cfg.RSIOversold {
		score++
		boosters = append(boosters, fmt.Sprintf("RSI oversold (%.1f)", snap.RSI))
		conditionsMet = append(conditionsMet, fmt.Sprintf("RSI oversold: %.1f < %.0f", snap.RSI, e.cfg.RSIOversold))
	} else if isDowntrend && snap.RSI > e.cfg.RSIOverbought {
		score++
		boosters = append(boosters, fmt.Sprintf("RSI overbought (%.1f)", snap.RSI))
		conditionsMet = append(conditionsMet, fmt.Sprintf("RSI overbought: %.1f > %.0f", snap.RSI, e.cfg.RSIOverbought))
	}

	// Booster #2: MACD on the correct side of its signal line
	if isUptrend && snap.MACD > snap.MACDSignal {
		score++
		boosters = append(boosters, fmt.Sprintf("MACD bullish (%.2f>%.2f)", snap.MACD, snap.MACDSignal))
		conditionsMet = append(conditionsMet, fmt.Sprintf("MACD bullish: %.2f > signal %.2f", snap.MACD, snap.MACDSignal))
	} else if isDowntrend && snap.MACD < snap.MACDSignal {
		score++
		boosters = append(boosters, fmt.Sprintf("MACD bearish (%.2f<%.2f)", snap.MACD, snap.MACDSignal))
		conditionsMet = append(conditionsMet, fmt.Sprintf("MACD bearish: %.2f < signal %.2f", snap.MACD, snap.MACDSignal))
	}

	// Booster #3: VWAP confluence
	vwapDistance := 1.0
	if snap.VWAP > 0 {
		vwapDistance = absF(price-snap.VWAP) / snap.VWAP
	}
	if vwapDistance <= e.cfg.VWAPBandThreshold {
		score++
		boosters = append(boosters, fmt.Sprintf("Near VWAP (%.2f%%)", vwapDistance*100))
		conditionsMet = append(conditionsMet, fmt.Sprintf("VWAP confluence: %.2f within %.2f%% of %.2f", price, e.cfg.VWAPBandThreshold*100, snap.VWAP))
	}

	// Booster #4: EMA separation, filters sideways chop
	emaSeparation := 0.0
	if snap.EMA50 > 0 {
		emaSeparation = absF(snap.EMA20-snap.EMA50) / snap.EMA50
	}
	if emaSeparation >= e.cfg.TrendStrengthThreshold {
		score++
		boosters = append(boosters, fmt.Sprintf("Strong trend (%.2f%%)", emaSeparation*100))
		conditionsMet = append(conditionsMet, fmt.Sprintf("Trend strength: EMA separation %.2f%% >= %.1f%%", emaSeparation*100, e.cfg.TrendStrengthThreshold*100))
	}

	// Booster #5: candle body matches the trend direction
	if isUptrend && bar.IsBullish() {
		score++
		boosters = append(boosters, "Bullish candle")
		conditionsMet = append(conditionsMet, fmt.Sprintf("Bullish reversal: close %.2f > open %.2f", bar.Close, bar.Open))
	} else if isDowntrend && bar.IsBearish() {
		score++
		boosters = append(boosters, "Bearish candle")
		conditionsMet = append(conditionsMet, fmt.Sprintf("Bearish reversal: close %.2f < open %.2f", bar.Close, bar.Open))
	}

	quality := QualityForScore(score)
	strength := float64(score) / float64(totalConditions)

	var stopLoss, takeProfit float64
	if direction == models.OrderSideBuy {
		stopLoss = price * (1 - e.cfg.StopLossPercent)
		takeProfit = price * (1 + e.cfg.TakeProfitPercent)
	} else {
		stopLoss = price * (1 + e.cfg.StopLossPercent)
		takeProfit = price * (1 - e.cfg.TakeProfitPercent)
	}

	mustHave := fmt.Sprintf("%s + Vol %.1fx + Candle %.2f%%", trendText, volumeRatio, candleRange*100)
	boosterText := "no boosters"
	if len(boosters) > 0 {
		boosterText = strings.Join(boosters, " | ")
	}
	reason := fmt.Sprintf("%s [%s %d/%d]: %s | %s", direction, quality, score, totalConditions, mustHave, boosterText)

	ts := bar.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &Signal{
		Symbol:     symbol,
		Direction:  direction,
		Price:      price,
		Strength:   strength,
		Score:      score,
		Quality:    quality,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Reason:     reason,
		Indicators: map[string]float64{
			"RSI":         snap.RSI,
			"EMA_20":      snap.EMA20,
			"EMA_50":      snap.EMA50,
			"VWAP":        snap.VWAP,
			"MACD":        snap.MACD,
			"MACD_Signal": snap.MACDSignal,
			"ATR":         snap.ATR,
			"Volume_Avg":  snap.VolumeAvg,
			"Close":       bar.Close,
			"Open":        bar.Open,
			"High":        bar.High,
			"Low":         bar.Low,
			"Volume":      float64(bar.Volume),
		},
		ConditionsMet: conditionsMet,
		Timestamp:     ts,
	}, "", nil
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
