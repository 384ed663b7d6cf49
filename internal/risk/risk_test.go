package risk

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"intraday-scanner/internal/config"
	ierrors "intraday-scanner/internal/errors"
	"intraday-scanner/internal/models"
)

func testConfig() config.RiskConfig {
	return config.RiskConfig{
		InitialCapital:   100000,
		MaxPortfolioRisk: 0.02,
		MaxPositionSize:  0.1,
		MaxOpenPositions: 5,
		MaxDailyLoss:     0.05,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(testConfig(), zerolog.Nop())
}

func TestSizePositionCappedByPositionFraction(t *testing.T) {
	m := newTestManager(t)

	// Full-strength signal with a tight stop: the risk budget would allow
	// thousands of shares, the 10% cost cap allows 100.
	qty := m.SizePosition(100, 99.7, 1.0)
	if qty != 100 {
		t.Fatalf("SizePosition = %d, want 100 (cost cap)", qty)
	}
}

func TestSizePositionScalesWithStrength(t *testing.T) {
	m := newTestManager(t)

	// Wide stop keeps the risk budget binding instead of the cost cap.
	full := m.SizePosition(100, 60, 1.0)
	half := m.SizePosition(100, 60, 0.5)
	if full == 0 || half == 0 {
		t.Fatalf("sizing returned zero: full=%d half=%d", full, half)
	}
	if half >= full {
		t.Errorf("half-strength qty %d not below full-strength %d", half, full)
	}
}

func TestSizePositionDegenerateInputs(t *testing.T) {
	m := newTestManager(t)

	if qty := m.SizePosition(0, 0, 1); qty != 0 {
		t.Errorf("zero entry price sized %d, want 0", qty)
	}
	if qty := m.SizePosition(100, 99.7, 0); qty != 0 {
		t.Errorf("zero strength sized %d, want 0", qty)
	}
	// Identical entry and stop falls back to 1% risk per share.
	if qty := m.SizePosition(100, 100, 1); qty == 0 {
		t.Error("degenerate stop sized 0, want fallback sizing")
	}
}

func TestSizePositionNeverExceedsCostCap(t *testing.T) {
	m := newTestManager(t)

	for _, entry := range []float64{0.5, 10, 99.7, 1234.5, 99999} {
		qty := m.SizePosition(entry, entry*0.997, 1.0)
		if cost := float64(qty) * entry; cost > m.Cash()*testConfig().MaxPositionSize {
			t.Errorf("entry %.2f: cost %.2f exceeds cap", entry, cost)
		}
	}
}

func TestOpenPositionLifecycle(t *testing.T) {
	m := newTestManager(t)

	if err := m.OpenPosition("RELIANCE", models.OrderSideBuy, 10, 100, 99.7, 100.7); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if got := m.Cash(); got != 99000 {
		t.Errorf("Cash after open = %.2f, want 99000", got)
	}

	pos, ok := m.Position("RELIANCE")
	if !ok {
		t.Fatal("position not found after open")
	}
	if pos.Side != models.OrderSideBuy || pos.Quantity != 10 {
		t.Errorf("position = %+v", pos)
	}

	closed, err := m.ClosePosition("RELIANCE", 105)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if pnl := closed.UnrealizedPnL(); pnl != 50 {
		t.Errorf("realized pnl = %.2f, want 50", pnl)
	}
	if got := m.Cash(); got != 100050 {
		t.Errorf("Cash after close = %.2f, want 100050", got)
	}
	if got := m.DailyPnL(); got != 50 {
		t.Errorf("DailyPnL = %.2f, want 50", got)
	}
	if _, ok := m.Position("RELIANCE"); ok {
		t.Error("position still present after close")
	}
}

func TestShortPositionPnL(t *testing.T) {
	m := newTestManager(t)

	if err := m.OpenPosition("TCS", models.OrderSideSell, 10, 100, 100.3, 99.3); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	closed, err := m.ClosePosition("TCS", 95)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if pnl := closed.UnrealizedPnL(); pnl != 50 {
		t.Errorf("short realized pnl = %.2f, want 50", pnl)
	}
	if got := m.Cash(); got != 100050 {
		t.Errorf("Cash after short close = %.2f, want 100050", got)
	}
}

func TestCanOpenDuplicateRejected(t *testing.T) {
	m := newTestManager(t)

	if err := m.OpenPosition("INFY", models.OrderSideBuy, 10, 100, 99.7, 100.7); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	err := m.CanOpen("INFY", 1000)
	var riskErr *ierrors.RiskError
	if !ierrors.As(err, &riskErr) {
		t.Fatalf("CanOpen duplicate = %v, want RiskError", err)
	}
	if riskErr.Rule != "duplicate_position" {
		t.Errorf("Rule = %s, want duplicate_position", riskErr.Rule)
	}
}

func TestCanOpenCostExceedsCashBuffer(t *testing.T) {
	m := newTestManager(t)

	if err := m.CanOpen("SBIN", 96000); err == nil {
		t.Error("cost above 95% of cash admitted")
	}
	if err := m.CanOpen("SBIN", 94000); err != nil {
		t.Errorf("cost below buffer rejected: %v", err)
	}
}

func TestCanOpenMaxPositions(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositions = 2
	m := NewManager(cfg, zerolog.Nop())

	for i, sym := range []string{"A", "B"} {
		if err := m.OpenPosition(sym, models.OrderSideBuy, 1, 100+float64(i), 99, 102); err != nil {
			t.Fatalf("open %s: %v", sym, err)
		}
	}

	err := m.CanOpen("C", 100)
	var riskErr *ierrors.RiskError
	if !ierrors.As(err, &riskErr) || riskErr.Rule != "max_open_positions" {
		t.Fatalf("CanOpen at capacity = %v, want max_open_positions", err)
	}
}

func TestCanOpenDailyLossLimit(t *testing.T) {
	m := newTestManager(t)

	if err := m.OpenPosition("YESBANK", models.OrderSideBuy, 100, 100, 99.7, 100.7); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	// Realize a 6000 loss against the 5000 limit.
	if _, err := m.ClosePosition("YESBANK", 40); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	err := m.CanOpen("SBIN", 100)
	var riskErr *ierrors.RiskError
	if !ierrors.As(err, &riskErr) || riskErr.Rule != "daily_loss_limit" {
		t.Fatalf("CanOpen after daily loss = %v, want daily_loss_limit", err)
	}

	m.ResetDailyPnL()
	if err := m.CanOpen("SBIN", 100); err != nil {
		t.Errorf("CanOpen after reset: %v", err)
	}
}

// One slot remaining and many concurrent openers: the serialized commit
// must admit exactly one.
func TestOpenPositionSerializedCommit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositions = 1
	m := NewManager(cfg, zerolog.Nop())

	const openers = 16
	var wg sync.WaitGroup
	results := make(chan error, openers)

	for i := 0; i < openers; i++ {
		symbol := fmt.Sprintf("SYM%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.OpenPosition(symbol, models.OrderSideBuy, 1, 100, 99.7, 100.7)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d commits succeeded with one slot, want exactly 1", succeeded)
	}
	if got := len(m.Positions()); got != 1 {
		t.Fatalf("positions = %d, want 1", got)
	}
}

func TestUpdatePricesAndStopChecks(t *testing.T) {
	m := newTestManager(t)

	if err := m.OpenPosition("RELIANCE", models.OrderSideBuy, 10, 100, 99.7, 100.7); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	m.UpdatePrices(map[string]float64{"RELIANCE": 99.5, "UNKNOWN": 1})
	if !m.CheckStopLoss("RELIANCE") {
		t.Error("stop not detected at 99.5")
	}
	if m.CheckTakeProfit("RELIANCE") {
		t.Error("target wrongly detected at 99.5")
	}

	m.UpdatePrices(map[string]float64{"RELIANCE": 101})
	if !m.CheckTakeProfit("RELIANCE") {
		t.Error("target not detected at 101")
	}
}

func TestSummarySnapshot(t *testing.T) {
	m := newTestManager(t)

	if err := m.OpenPosition("RELIANCE", models.OrderSideBuy, 10, 100, 99.7, 100.7); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	m.UpdatePrices(map[string]float64{"RELIANCE": 102})

	s := m.Summary()
	if s.NumPositions != 1 {
		t.Errorf("NumPositions = %d, want 1", s.NumPositions)
	}
	if s.UnrealizedPnL != 20 {
		t.Errorf("UnrealizedPnL = %.2f, want 20", s.UnrealizedPnL)
	}
	if want := 99000 + 1020.0; s.TotalValue != want {
		t.Errorf("TotalValue = %.2f, want %.2f", s.TotalValue, want)
	}
}
