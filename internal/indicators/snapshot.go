package indicators

import (
	"intraday-scanner/internal/models"
)

// MinBars is the minimum history needed to fill a Snapshot: the EMA50 trend
// filter dominates every other lookback.
const MinBars = 50

// Snapshot holds the latest-bar value of every indicator the signal engine
// consumes.
type Snapshot struct {
	EMA20      float64
	EMA50      float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	VWAP       float64
	VolumeAvg  float64
	ATR        float64
	BollUpper  float64
	BollLower  float64
}

// ComputeSnapshot evaluates the full indicator set over the series and
// returns the values at the final bar.
func ComputeSnapshot(candles []models.Candle) (*Snapshot, error) {
	if len(candles) < MinBars {
		return nil, ErrInsufficientData
	}

	last := len(candles) - 1
	snap := &Snapshot{}

	ema20, err := NewEMA(20).Calculate(candles)
	if err != nil {
		return nil, err
	}
	snap.EMA20 = ema20[last]

	ema50, err := NewEMA(50).Calculate(candles)
	if err != nil {
		return nil, err
	}
	snap.EMA50 = ema50[last]

	rsi, err := NewRSI(14).Calculate(candles)
	if err != nil {
		return nil, err
	}
	snap.RSI = rsi[last]

	macdLine, signalLine, err := NewMACD(12, 26, 9).Lines(candles)
	if err != nil {
		return nil, err
	}
	snap.MACD = macdLine[last]
	snap.MACDSignal = signalLine[last]

	vwap, err := NewVWAP().Calculate(candles)
	if err != nil {
		return nil, err
	}
	snap.VWAP = vwap[last]

	volAvg, err := NewVolumeSMA(20).Calculate(candles)
	if err != nil {
		return nil, err
	}
	snap.VolumeAvg = volAvg[last]

	atr, err := NewATR(14).Calculate(candles)
	if err != nil {
		return nil, err
	}
	snap.ATR = atr[last]

	_, upper, lower, err := NewBollingerBands(20, 2.0).Bands(candles)
	if err != nil {
		return nil, err
	}
	snap.BollUpper = upper[last]
	snap.BollLower = lower[last]

	return snap, nil
}
