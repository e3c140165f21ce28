package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceivableState tracks a declared dividend through its lifecycle:
// announced -> effective (ex-date) -> paid (pay-date).
type ReceivableState string

const (
	ReceivableAnnounced ReceivableState = "announced"
	ReceivableEffective ReceivableState = "effective"
	ReceivablePaid      ReceivableState = "paid"
)

// DividendReceivable tracks a declared-but-unpaid dividend. At most one
// open receivable exists per position; a new declaration while one is open
// is rejected rather than silently accumulated.
type DividendReceivable struct {
	ID             string          `json:"id"`
	PositionID     string          `json:"position_id"`
	DPS            decimal.Decimal `json:"dps"`
	Gross          decimal.Decimal `json:"gross_amount"`
	Net            decimal.Decimal `json:"net_amount"`
	SharesAtRecord decimal.Decimal `json:"shares_at_record"`
	ExDate         time.Time       `json:"ex_date"`
	PayDate        time.Time       `json:"pay_date"`
	State          ReceivableState `json:"state"`
	Cleared        bool            `json:"cleared"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Open reports whether the receivable still awaits its pay date.
func (r *DividendReceivable) Open() bool {
	return r != nil && !r.Cleared
}
