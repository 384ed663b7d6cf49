package indicators

import (
	"fmt"

	"intraday-scanner/internal/models"
)

// ATR calculates Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < a.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	tr := make([]float64, n)
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < n; i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}

	result := make([]float64, n)
	result[a.period] = mean(tr[1 : a.period+1])

	// Wilder smoothing
	for i := a.period + 1; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// BollingerBands calculates the middle band; Upper and Lower derive the
// envelope.
type BollingerBands struct {
	period int
	stddev float64
}

// NewBollingerBands creates Bollinger Bands with the given period and width.
func NewBollingerBands(period int, stddev float64) *BollingerBands {
	return &BollingerBands{period: period, stddev: stddev}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BB_%d_%.1f", b.period, b.stddev)
}

func (b *BollingerBands) Period() int {
	return b.period
}

func (b *BollingerBands) Calculate(candles []models.Candle) ([]float64, error) {
	middle, _, _, err := b.Bands(candles)
	return middle, err
}

// Bands returns the middle, upper and lower bands.
func (b *BollingerBands) Bands(candles []models.Candle) (middle, upper, lower []float64, err error) {
	if b.period <= 0 {
		return nil, nil, nil, ErrInvalidPeriod
	}
	if len(candles) < b.period {
		return nil, nil, nil, ErrInsufficientData
	}

	n := len(candles)
	closes := closePrices(candles)
	middle = make([]float64, n)
	upper = make([]float64, n)
	lower = make([]float64, n)

	for i := b.period - 1; i < n; i++ {
		window := closes[i-b.period+1 : i+1]
		m := mean(window)
		sd := stdDev(window)
		middle[i] = m
		upper[i] = m + b.stddev*sd
		lower[i] = m - b.stddev*sd
	}

	return middle, upper, lower, nil
}
