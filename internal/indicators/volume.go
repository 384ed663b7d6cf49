package indicators

import (
	"fmt"

	"intraday-scanner/internal/models"
)

// VWAP calculates Volume Weighted Average Price over the series to date.
type VWAP struct{}

// NewVWAP creates a new VWAP indicator.
func NewVWAP() *VWAP {
	return &VWAP{}
}

func (v *VWAP) Name() string {
	return "VWAP"
}

func (v *VWAP) Period() int {
	return 1
}

func (v *VWAP) Calculate(candles []models.Candle) ([]float64, error) {
	if len(candles) == 0 {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(candles))
	var cumPV, cumVol float64

	for i, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		cumPV += typical * float64(c.Volume)
		cumVol += float64(c.Volume)

		if cumVol > 0 {
			result[i] = cumPV / cumVol
		} else {
			result[i] = typical
		}
	}

	return result, nil
}

// VolumeSMA calculates the rolling average traded volume.
type VolumeSMA struct {
	period int
}

// NewVolumeSMA creates a new rolling volume average.
func NewVolumeSMA(period int) *VolumeSMA {
	return &VolumeSMA{period: period}
}

func (v *VolumeSMA) Name() string {
	return fmt.Sprintf("VolumeSMA_%d", v.period)
}

func (v *VolumeSMA) Period() int {
	return v.period
}

func (v *VolumeSMA) Calculate(candles []models.Candle) ([]float64, error) {
	if v.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < v.period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(candles))
	vols := volumes(candles)

	for i := v.period - 1; i < len(candles); i++ {
		result[i] = mean(vols[i-v.period+1 : i+1])
	}

	return result, nil
}
