package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"intraday-scanner/internal/models"
)

// candleGen generates one candle with consistent OHLC ordering.
func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Open":   gen.Float64Range(50.0, 5000.0),
		"High":   gen.Float64Range(50.0, 5000.0),
		"Low":    gen.Float64Range(50.0, 5000.0),
		"Close":  gen.Float64Range(50.0, 5000.0),
		"Volume": gen.Int64Range(100, 10000000),
	}).Map(func(c models.Candle) models.Candle {
		c.High = math.Max(c.High, math.Max(c.Open, c.Close))
		c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
		if c.High <= c.Low {
			c.High = c.Low + 0.05
		}
		return c
	})
}

// candleSeriesGen generates an ordered series long enough for a Snapshot.
func candleSeriesGen(n int) gopter.Gen {
	return gen.SliceOfN(n, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		base := time.Date(2026, 1, 15, 9, 15, 0, 0, time.UTC)
		for i := range candles {
			candles[i].Timestamp = base.Add(time.Duration(i) * 5 * time.Minute)
		}
		return candles
	})
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("RSI stays within [0, 100]", prop.ForAll(
		func(candles []models.Candle) bool {
			values, err := NewRSI(14).Calculate(candles)
			if err != nil {
				return false
			}
			for _, v := range values {
				if math.IsNaN(v) || v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		candleSeriesGen(60),
	))

	properties.TestingRun(t)
}

func TestProperty_BollingerBandOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("upper band >= middle >= lower band", prop.ForAll(
		func(candles []models.Candle) bool {
			middle, upper, lower, err := NewBollingerBands(20, 2.0).Bands(candles)
			if err != nil {
				return false
			}
			for i := range middle {
				if upper[i] < middle[i] || middle[i] < lower[i] {
					return false
				}
			}
			return true
		},
		candleSeriesGen(60),
	))

	properties.TestingRun(t)
}

func TestProperty_ATRNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("ATR is never negative", prop.ForAll(
		func(candles []models.Candle) bool {
			values, err := NewATR(14).Calculate(candles)
			if err != nil {
				return false
			}
			for _, v := range values {
				if math.IsNaN(v) || v < 0 {
					return false
				}
			}
			return true
		},
		candleSeriesGen(60),
	))

	properties.TestingRun(t)
}

func TestProperty_VWAPWithinSessionRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("VWAP stays inside the session's typical-price range", prop.ForAll(
		func(candles []models.Candle) bool {
			values, err := NewVWAP().Calculate(candles)
			if err != nil {
				return false
			}

			lo, hi := math.Inf(1), math.Inf(-1)
			for i, c := range candles {
				tp := (c.High + c.Low + c.Close) / 3
				lo = math.Min(lo, tp)
				hi = math.Max(hi, tp)
				if values[i] < lo-1e-6 || values[i] > hi+1e-6 {
					return false
				}
			}
			return true
		},
		candleSeriesGen(60),
	))

	properties.TestingRun(t)
}

func TestProperty_SnapshotCompleteness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot fields are finite for any valid series", prop.ForAll(
		func(candles []models.Candle) bool {
			snap, err := ComputeSnapshot(candles)
			if err != nil {
				return false
			}
			for _, v := range []float64{
				snap.EMA20, snap.EMA50, snap.RSI, snap.MACD, snap.MACDSignal,
				snap.VWAP, snap.VolumeAvg, snap.ATR, snap.BollUpper, snap.BollLower,
			} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return false
				}
			}
			return snap.BollUpper >= snap.BollLower
		},
		candleSeriesGen(MinBars+10),
	))

	properties.TestingRun(t)
}

func TestSnapshotRejectsShortSeries(t *testing.T) {
	candles := make([]models.Candle, MinBars-1)
	if _, err := ComputeSnapshot(candles); err == nil {
		t.Fatal("short series accepted")
	}
}
