package strategy

import (
	"testing"

	"intraday-scanner/internal/models"
)

func TestCheckExitStates(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name      string
		direction models.OrderSide
		entry     float64
		current   float64
		vwap      float64
		want      ExitState
	}{
		{"buy flat holds", models.OrderSideBuy, 100, 100.1, 99, ExitHold},
		{"buy stop at -0.3%", models.OrderSideBuy, 100, 99.7, 99, ExitStop},
		{"buy deep loss stops", models.OrderSideBuy, 100, 98.5, 99, ExitStop},
		{"buy target at +0.7%", models.OrderSideBuy, 100, 100.7, 99, ExitTarget},
		{"buy vwap revert in profit", models.OrderSideBuy, 100, 100.3, 100.32, ExitVWAPRevert},
		{"buy near vwap without profit holds", models.OrderSideBuy, 100, 100.05, 100.06, ExitHold},
		{"sell profit on fall", models.OrderSideSell, 100, 99.3, 101, ExitTarget},
		{"sell stop on rise", models.OrderSideSell, 100, 100.3, 101, ExitStop},
		{"sell holds in range", models.OrderSideSell, 100, 99.9, 101, ExitHold},
		{"zero entry holds", models.OrderSideBuy, 0, 100, 100, ExitHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := engine.CheckExit(tt.direction, tt.entry, tt.current, tt.vwap)
			if got != tt.want {
				t.Errorf("CheckExit() = %s (%s), want %s", got, reason, tt.want)
			}
		})
	}
}

func TestExitStateTerminal(t *testing.T) {
	if ExitHold.Terminal() {
		t.Error("HOLD must not be terminal")
	}
	for _, s := range []ExitState{ExitStop, ExitTarget, ExitVWAPRevert} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestCheckExitStopBeatsVWAPRevert(t *testing.T) {
	engine := NewEngine()

	// The stop check runs before the VWAP check even when the price also
	// sits near VWAP.
	state, _ := engine.CheckExit(models.OrderSideBuy, 100, 99.7, 99.71)
	if state != ExitStop {
		t.Errorf("CheckExit() = %s, want STOP to take priority", state)
	}
}
