package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "intraday-scanner/internal/errors"
	"intraday-scanner/internal/models"
	"intraday-scanner/internal/resilience"
	"intraday-scanner/pkg/utils"
)

// ZerodhaBroker implements the Broker interface for Zerodha Kite Connect.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	tokenPath     string
	accessToken   string
	authenticated bool
	retry         utils.RetryConfig
	breaker       *resilience.Breaker

	// Instrument token cache, populated lazily from the instrument dump.
	tokens map[string]uint32

	mu sync.RWMutex
}

// ZerodhaConfig holds configuration for the Zerodha broker.
type ZerodhaConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	TokenPath string
}

// NewZerodhaBroker creates a new Zerodha broker instance.
// It automatically loads any saved session from disk.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "intraday-scanner", "session.json")
	}

	zb := &ZerodhaBroker{
		client:    kiteconnect.New(cfg.APIKey),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		userID:    cfg.UserID,
		tokenPath: tokenPath,
		retry:     utils.DefaultRetryConfig(),
		breaker:   resilience.NewBreaker("kite-data", resilience.DefaultConfig()),
		tokens:    make(map[string]uint32),
	}

	_ = zb.loadSession()

	return zb
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login authenticates with Zerodha. It first tries the persisted session,
// then falls back to the OAuth flow.
func (z *ZerodhaBroker) Login(ctx context.Context) error {
	if err := z.loadSession(); err == nil && z.IsAuthenticated() {
		if _, err := z.client.GetUserProfile(); err == nil {
			return nil
		}
	}

	loginURL := z.client.GetLoginURL()
	return apperrors.NewBrokerError("AUTH_REQUIRED",
		fmt.Sprintf("please visit %s and complete login, then call CompleteLogin with the request token", loginURL), nil)
}

// CompleteLogin completes the OAuth flow with the request token.
func (z *ZerodhaBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return apperrors.NewBrokerError("SESSION_FAILED", "failed to generate session", err)
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	if err := z.saveSession(session.AccessToken); err != nil {
		// Session is valid even if persistence fails.
		fmt.Printf("warning: failed to persist session: %v\n", err)
	}

	return nil
}

// Logout invalidates the session and clears stored credentials.
func (z *ZerodhaBroker) Logout(ctx context.Context) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.authenticated {
		if _, err := z.client.InvalidateAccessToken(); err != nil {
			fmt.Printf("warning: failed to invalidate token: %v\n", err)
		}
	}

	z.accessToken = ""
	z.authenticated = false

	if err := os.Remove(z.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	return nil
}

// IsAuthenticated returns whether the broker holds a live session.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

// AccessToken returns the current access token, used to open the ticker.
func (z *ZerodhaBroker) AccessToken() string {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.accessToken
}

// GetQuote fetches a real-time quote for a symbol.
func (z *ZerodhaBroker) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	quotes, err := resilience.Do(z.breaker, func() (kiteconnect.Quote, error) {
		return utils.RetryWithResult(ctx, z.retry, func() (kiteconnect.Quote, error) {
			return z.client.GetQuote(symbol)
		})
	})
	if err != nil {
		return nil, apperrors.NewDataError("quote", symbol, "failed to fetch quote", err)
	}

	q, ok := quotes[symbol]
	if !ok {
		return nil, apperrors.NewDataError("quote", symbol, "quote not in response", apperrors.ErrDataUnavailable)
	}

	var changePct float64
	if q.OHLC.Close != 0 {
		changePct = (q.NetChange / q.OHLC.Close) * 100
	}

	return &models.Quote{
		Symbol:        symbol,
		LastPrice:     q.LastPrice,
		Open:          q.OHLC.Open,
		High:          q.OHLC.High,
		Low:           q.OHLC.Low,
		Close:         q.OHLC.Close,
		Volume:        int64(q.Volume),
		Change:        q.NetChange,
		ChangePercent: changePct,
		Timestamp:     q.LastTradeTime.Time,
	}, nil
}

// GetHistorical fetches historical OHLCV candles.
func (z *ZerodhaBroker) GetHistorical(ctx context.Context, req HistoricalRequest) ([]models.Candle, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	token, err := z.GetInstrumentToken(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return nil, err
	}

	interval := mapTimeframeToInterval(req.Timeframe)

	data, err := resilience.Do(z.breaker, func() ([]kiteconnect.HistoricalData, error) {
		return utils.RetryWithResult(ctx, z.retry, func() ([]kiteconnect.HistoricalData, error) {
			return z.client.GetHistoricalData(int(token), interval, req.From, req.To, false, false)
		})
	})
	if err != nil {
		return nil, apperrors.NewDataError("historical", req.Symbol, "failed to fetch historical data", err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}

	return candles, nil
}

// GetInstrumentToken resolves a trading symbol to its instrument token,
// loading the instrument dump on first use.
func (z *ZerodhaBroker) GetInstrumentToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error) {
	if !z.IsAuthenticated() {
		return 0, apperrors.ErrNotAuthenticated
	}

	key := string(exchange) + ":" + symbol

	z.mu.RLock()
	token, ok := z.tokens[key]
	z.mu.RUnlock()
	if ok {
		return token, nil
	}

	instruments, err := resilience.Do(z.breaker, func() (kiteconnect.Instruments, error) {
		return utils.RetryWithResult(ctx, z.retry, func() (kiteconnect.Instruments, error) {
			return z.client.GetInstruments()
		})
	})
	if err != nil {
		return 0, apperrors.NewDataError("instruments", symbol, "failed to fetch instrument dump", err)
	}

	z.mu.Lock()
	for _, inst := range instruments {
		z.tokens[inst.Exchange+":"+inst.Tradingsymbol] = uint32(inst.InstrumentToken)
	}
	token, ok = z.tokens[key]
	z.mu.Unlock()

	if !ok {
		return 0, apperrors.NewDataError("instruments", symbol, "symbol not in instrument dump", apperrors.ErrSymbolNotFound)
	}

	return token, nil
}

// PlaceOrder places a single order leg. Order placement is never retried;
// a timed-out request may still have reached the exchange.
func (z *ZerodhaBroker) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResult, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	params := kiteconnect.OrderParams{
		Exchange:        string(order.Exchange),
		Tradingsymbol:   order.Symbol,
		TransactionType: string(order.Side),
		OrderType:       string(order.Type),
		Product:         kiteconnect.ProductMIS,
		Quantity:        order.Quantity,
		Price:           order.Price,
		TriggerPrice:    order.TriggerPrice,
		Validity:        "DAY",
		Tag:             order.Tag,
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return nil, apperrors.NewOrderError("", order.Symbol, order.Tag, "broker rejected order", err)
	}

	return &OrderResult{
		OrderID: resp.OrderID,
		Status:  "PLACED",
		Message: "order placed",
	}, nil
}

func (z *ZerodhaBroker) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Zerodha tokens expire at 6 AM IST the next day.
	if time.Now().After(session.ExpiresAt) {
		return fmt.Errorf("session expired")
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	return nil
}

func (z *ZerodhaBroker) saveSession(accessToken string) error {
	dir := filepath.Dir(z.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	now := time.Now().In(utils.IndiaLocation)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)

	session := sessionData{
		AccessToken: accessToken,
		UserID:      z.userID,
		ExpiresAt:   expiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return os.WriteFile(z.tokenPath, data, 0600)
}

func mapTimeframeToInterval(timeframe string) string {
	switch timeframe {
	case "1m", "minute":
		return "minute"
	case "3m":
		return "3minute"
	case "5m":
		return "5minute"
	case "15m":
		return "15minute"
	case "30m":
		return "30minute"
	case "1h", "60m":
		return "60minute"
	case "1d", "day":
		return "day"
	default:
		return "5minute"
	}
}
