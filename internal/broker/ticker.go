package broker

import (
	"context"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	apperrors "intraday-scanner/internal/errors"
	"intraday-scanner/internal/models"
)

// ZerodhaTicker implements the Ticker interface over the Kite WebSocket feed.
// Disconnects are reported through OnDisconnect; reconnection policy belongs
// to the caller.
type ZerodhaTicker struct {
	ticker      *kiteticker.Ticker
	apiKey      string
	accessToken string

	onTick       func(models.Tick)
	onError      func(error)
	onConnect    func()
	onDisconnect func()

	connected    bool
	symbolTokens map[string]uint32
	tokenSymbols map[uint32]string

	mu      sync.RWMutex
	writeMu sync.Mutex // protects websocket writes
}

// NewZerodhaTicker creates a new Zerodha ticker instance.
func NewZerodhaTicker(apiKey, accessToken string) *ZerodhaTicker {
	return &ZerodhaTicker{
		apiKey:       apiKey,
		accessToken:  accessToken,
		symbolTokens: make(map[string]uint32),
		tokenSymbols: make(map[uint32]string),
	}
}

// Connect establishes the WebSocket connection and blocks until the
// connection is confirmed, the context is cancelled, or a timeout elapses.
func (t *ZerodhaTicker) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.ticker = kiteticker.New(t.apiKey, t.accessToken)
	t.mu.Unlock()

	connectedCh := make(chan struct{}, 1)

	t.ticker.OnConnect(func() {
		t.mu.Lock()
		t.connected = true
		t.mu.Unlock()

		select {
		case connectedCh <- struct{}{}:
		default:
		}

		if t.onConnect != nil {
			go t.onConnect()
		}
	})

	t.ticker.OnTick(func(tick kitemodels.Tick) {
		if t.onTick != nil {
			t.onTick(t.convertTick(tick))
		}
	})

	t.ticker.OnError(func(err error) {
		if t.onError != nil {
			t.onError(apperrors.NewBrokerError("TICKER", "websocket error", err))
		}
	})

	t.ticker.OnClose(func(code int, reason string) {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()

		if t.onDisconnect != nil {
			t.onDisconnect()
		}
	})

	t.ticker.SetAutoReconnect(false)
	go t.ticker.Serve()

	select {
	case <-connectedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return apperrors.NewBrokerError("TICKER", "connection timed out", apperrors.ErrStreamDisconnected)
	}
}

// Disconnect closes the WebSocket connection.
func (t *ZerodhaTicker) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil {
		t.ticker.Stop()
	}
	t.connected = false
	return nil
}

// Subscribe subscribes to full-mode ticks for the given symbols. Symbols
// must have been registered with their instrument tokens first.
func (t *ZerodhaTicker) Subscribe(symbols []string) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return apperrors.ErrStreamDisconnected
	}
	tokens := make([]uint32, 0, len(symbols))
	for _, symbol := range symbols {
		token, ok := t.symbolTokens[symbol]
		if !ok {
			t.mu.RUnlock()
			return apperrors.NewDataError("ticker", symbol, "symbol not registered", apperrors.ErrSymbolNotFound)
		}
		tokens = append(tokens, token)
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.ticker.Subscribe(tokens); err != nil {
		return apperrors.NewBrokerError("TICKER", "subscribe failed", err)
	}
	if err := t.ticker.SetMode(kiteticker.ModeFull, tokens); err != nil {
		return apperrors.NewBrokerError("TICKER", "set mode failed", err)
	}
	return nil
}

// RegisterSymbol maps a trading symbol to its instrument token.
func (t *ZerodhaTicker) RegisterSymbol(symbol string, token uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.symbolTokens[symbol] = token
	t.tokenSymbols[token] = symbol
}

// OnTick sets the tick handler.
func (t *ZerodhaTicker) OnTick(handler func(models.Tick)) {
	t.onTick = handler
}

// OnError sets the error handler.
func (t *ZerodhaTicker) OnError(handler func(error)) {
	t.onError = handler
}

// OnConnect sets the connect handler.
func (t *ZerodhaTicker) OnConnect(handler func()) {
	t.onConnect = handler
}

// OnDisconnect sets the disconnect handler.
func (t *ZerodhaTicker) OnDisconnect(handler func()) {
	t.onDisconnect = handler
}

// IsConnected reports whether the WebSocket is live.
func (t *ZerodhaTicker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *ZerodhaTicker) convertTick(tick kitemodels.Tick) models.Tick {
	t.mu.RLock()
	symbol := t.tokenSymbols[tick.InstrumentToken]
	t.mu.RUnlock()

	ts := tick.Timestamp.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return models.Tick{
		Symbol:       symbol,
		LastPrice:    tick.LastPrice,
		VolumeTraded: int64(tick.VolumeTraded),
		Open:         tick.OHLC.Open,
		High:         tick.OHLC.High,
		Low:          tick.OHLC.Low,
		Close:        tick.OHLC.Close,
		Timestamp:    ts,
	}
}
