package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of a proposed or executed order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	SideNone Side = "NONE"
)

// Sign returns +1 for BUY, -1 for SELL and 0 for NONE.
func (s Side) Sign() decimal.Decimal {
	switch s {
	case SideBuy:
		return decimal.NewFromInt(1)
	case SideSell:
		return decimal.NewFromInt(-1)
	default:
		return decimal.Zero
	}
}

// Config holds the per-cell trading parameters. Percentages are expressed
// as fractions in [0,1], not basis points.
type Config struct {
	TriggerUpPct       decimal.Decimal `json:"trigger_up_pct"`
	TriggerDownPct     decimal.Decimal `json:"trigger_down_pct"`
	MinStockPct        decimal.Decimal `json:"min_stock_pct"`
	MaxStockPct        decimal.Decimal `json:"max_stock_pct"`
	RebalanceRatio     decimal.Decimal `json:"rebalance_ratio"`
	MinNotional        decimal.Decimal `json:"min_notional"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	MaxOrdersPerDay    int             `json:"max_orders_per_day"`
	WithholdingTaxRate decimal.Decimal `json:"withholding_tax_rate"`
	AllowAfterHours    bool            `json:"allow_after_hours"`
}

// DefaultConfig returns production-ready cell parameters.
func DefaultConfig() Config {
	return Config{
		TriggerUpPct:       decimal.RequireFromString("0.03"),
		TriggerDownPct:     decimal.RequireFromString("0.03"),
		MinStockPct:        decimal.RequireFromString("0.25"),
		MaxStockPct:        decimal.RequireFromString("0.75"),
		RebalanceRatio:     decimal.RequireFromString("0.5"),
		MinNotional:        decimal.RequireFromString("100"),
		CommissionRate:     decimal.RequireFromString("0.001"),
		MaxOrdersPerDay:    5,
		WithholdingTaxRate: decimal.RequireFromString("0.15"),
		AllowAfterHours:    false,
	}
}

// Validate checks config-level invariants.
func (c Config) Validate() error {
	one := decimal.NewFromInt(1)
	if c.MinStockPct.IsNegative() || c.MaxStockPct.GreaterThan(one) {
		return fmt.Errorf("stock pct bounds must lie in [0,1], got [%s, %s]", c.MinStockPct, c.MaxStockPct)
	}
	if !c.MinStockPct.LessThan(c.MaxStockPct) {
		return fmt.Errorf("min_stock_pct %s must be below max_stock_pct %s", c.MinStockPct, c.MaxStockPct)
	}
	if c.TriggerUpPct.IsNegative() || c.TriggerDownPct.IsNegative() {
		return fmt.Errorf("trigger thresholds must be non-negative")
	}
	if c.CommissionRate.IsNegative() || c.WithholdingTaxRate.IsNegative() {
		return fmt.Errorf("rates must be non-negative")
	}
	if c.MaxOrdersPerDay <= 0 {
		return fmt.Errorf("max_orders_per_day must be positive, got %d", c.MaxOrdersPerDay)
	}
	return nil
}

// Cell is the unit of decision-making: one tradable position with its own
// cash, share quantity, anchor price and trading parameters.
type Cell struct {
	ID          string          `json:"id"`
	AssetSymbol string          `json:"asset_symbol"`
	Cash        decimal.Decimal `json:"cash"`
	Qty         decimal.Decimal `json:"qty"`
	AnchorPrice decimal.Decimal `json:"anchor_price"` // zero until first fill or explicit set
	Config      Config          `json:"config"`
	Archived    bool            `json:"archived"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewCell creates a cell with initial cash and quantity and default config.
func NewCell(id, symbol string, cash, qty decimal.Decimal) *Cell {
	now := time.Now().UTC()
	return &Cell{
		ID:          id,
		AssetSymbol: symbol,
		Cash:        cash,
		Qty:         qty,
		Config:      DefaultConfig(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the cell invariants. AnchorPrice may be zero (unset) but
// never negative; a set anchor must be strictly positive.
func (c *Cell) Validate() error {
	if c.Qty.IsNegative() {
		return fmt.Errorf("qty must be non-negative, got %s", c.Qty)
	}
	if c.Cash.IsNegative() {
		return fmt.Errorf("cash must be non-negative, got %s", c.Cash)
	}
	if c.AnchorPrice.IsNegative() {
		return fmt.Errorf("anchor_price must not be negative, got %s", c.AnchorPrice)
	}
	return c.Config.Validate()
}

// AnchorSet reports whether the anchor price has been established.
func (c *Cell) AnchorSet() bool {
	return c.AnchorPrice.IsPositive()
}

// StockValue returns qty * price.
func (c *Cell) StockValue(price decimal.Decimal) decimal.Decimal {
	return c.Qty.Mul(price)
}

// EffectiveCash returns settled cash plus the net amount of an effective,
// uncleared receivable. Between ex-date and pay-date the declared dividend
// participates in valuation even though it is not yet spendable.
func (c *Cell) EffectiveCash(r *DividendReceivable) decimal.Decimal {
	if r != nil && r.State == ReceivableEffective && !r.Cleared {
		return c.Cash.Add(r.Net)
	}
	return c.Cash
}
