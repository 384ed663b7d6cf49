// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"time"

	"intraday-scanner/internal/models"
)

// Broker defines the market-data and order operations the scanner and
// executor depend on. Implementations must be safe for concurrent use.
type Broker interface {
	// Authentication
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	IsAuthenticated() bool

	// Market Data
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetHistorical(ctx context.Context, req HistoricalRequest) ([]models.Candle, error)
	GetInstrumentToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error)

	// Orders
	PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResult, error)
}

// Ticker defines the interface for real-time market data streaming.
type Ticker interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(symbols []string) error
	RegisterSymbol(symbol string, token uint32)
	OnTick(handler func(models.Tick))
	OnError(handler func(error))
	OnConnect(handler func())
	OnDisconnect(handler func())
	IsConnected() bool
}

// HistoricalRequest represents a request for historical candle data.
type HistoricalRequest struct {
	Symbol    string
	Exchange  models.Exchange
	Timeframe string
	From      time.Time
	To        time.Time
}

// OrderRequest represents a single order leg to be placed.
type OrderRequest struct {
	Symbol       string
	Exchange     models.Exchange
	Side         models.OrderSide
	Type         models.OrderType
	Quantity     int
	Price        float64
	TriggerPrice float64
	Tag          string
}

// OrderResult represents the result of an order placement.
type OrderResult struct {
	OrderID string
	Status  string
	Message string
}
