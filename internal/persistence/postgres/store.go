// Package postgres implements the engine Store on PostgreSQL via sqlx.
// Schema lives in migrations/0001_init.sql.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/event"
	"github.com/tradecell/tradecell/internal/position"
)

// Store is a PostgreSQL-backed engine.Store.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// New wraps an open sqlx handle. timeout bounds each statement.
func New(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// Connect opens and pings a PostgreSQL DSN.
func Connect(dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db, timeout), nil
}

type positionRow struct {
	ID          string          `db:"id"`
	AssetSymbol string          `db:"asset_symbol"`
	Cash        decimal.Decimal `db:"cash"`
	Qty         decimal.Decimal `db:"qty"`
	AnchorPrice decimal.Decimal `db:"anchor_price"`
	Config      []byte          `db:"config"`
	Archived    bool            `db:"archived"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// GetPosition loads one cell.
func (s *Store) GetPosition(ctx context.Context, id string) (*position.Cell, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row positionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, asset_symbol, cash, qty, anchor_price, config, archived, created_at, updated_at
		FROM positions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select position: %w", err)
	}

	cell := &position.Cell{
		ID:          row.ID,
		AssetSymbol: row.AssetSymbol,
		Cash:        row.Cash,
		Qty:         row.Qty,
		AnchorPrice: row.AnchorPrice,
		Archived:    row.Archived,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Config, &cell.Config); err != nil {
		return nil, fmt.Errorf("decode position config: %w", err)
	}
	return cell, nil
}

// SavePosition upserts the cell.
func (s *Store) SavePosition(ctx context.Context, cell *position.Cell) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cfg, err := json.Marshal(cell.Config)
	if err != nil {
		return fmt.Errorf("encode position config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO positions (id, asset_symbol, cash, qty, anchor_price, config, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			cash = EXCLUDED.cash,
			qty = EXCLUDED.qty,
			anchor_price = EXCLUDED.anchor_price,
			config = EXCLUDED.config,
			archived = EXCLUDED.archived,
			updated_at = EXCLUDED.updated_at`,
		cell.ID, cell.AssetSymbol, cell.Cash, cell.Qty, cell.AnchorPrice,
		cfg, cell.Archived, cell.CreatedAt, cell.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// InsertTrade appends an immutable trade record.
func (s *Store) InsertTrade(ctx context.Context, t engine.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, position_id, order_id, side, qty, price, commission, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.PositionID, t.OrderID, string(t.Side), t.Qty, t.Price, t.Commission, t.ExecutedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate trade %s: %w", t.ID, err)
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// AppendEvents inserts the batch in one transaction; all or nothing so the
// audit trail never persists a partial decision.
func (s *Store) AppendEvents(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, position_id, type, inputs, outputs, message, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		inputs, err := json.Marshal(ev.Inputs)
		if err != nil {
			return fmt.Errorf("encode event inputs: %w", err)
		}
		outputs, err := json.Marshal(ev.Outputs)
		if err != nil {
			return fmt.Errorf("encode event outputs: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.PositionID, string(ev.Type),
			inputs, outputs, ev.Message, ev.Timestamp); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

type eventRow struct {
	ID         string    `db:"id"`
	PositionID string    `db:"position_id"`
	Type       string    `db:"type"`
	Inputs     []byte    `db:"inputs"`
	Outputs    []byte    `db:"outputs"`
	Message    string    `db:"message"`
	Timestamp  time.Time `db:"ts"`
}

// ListEvents returns events for a position since a timestamp, oldest first.
func (s *Store) ListEvents(ctx context.Context, positionID string, since time.Time, limit int) ([]event.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, position_id, type, inputs, outputs, message, ts
		FROM events
		WHERE position_id = $1 AND ts >= $2
		ORDER BY ts ASC, created_at ASC
		LIMIT $3`, positionID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}

	out := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		ev := event.Event{
			ID:         row.ID,
			PositionID: row.PositionID,
			Type:       event.Type(row.Type),
			Message:    row.Message,
			Timestamp:  row.Timestamp,
		}
		if err := json.Unmarshal(row.Inputs, &ev.Inputs); err != nil {
			return nil, fmt.Errorf("decode event inputs: %w", err)
		}
		if err := json.Unmarshal(row.Outputs, &ev.Outputs); err != nil {
			return nil, fmt.Errorf("decode event outputs: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

type receivableRow struct {
	ID             string          `db:"id"`
	PositionID     string          `db:"position_id"`
	DPS            decimal.Decimal `db:"dps"`
	Gross          decimal.Decimal `db:"gross_amount"`
	Net            decimal.Decimal `db:"net_amount"`
	SharesAtRecord decimal.Decimal `db:"shares_at_record"`
	ExDate         time.Time       `db:"ex_date"`
	PayDate        time.Time       `db:"pay_date"`
	State          string          `db:"state"`
	Cleared        bool            `db:"cleared"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// GetOpenReceivable returns the position's uncleaned receivable, or nil.
func (s *Store) GetOpenReceivable(ctx context.Context, positionID string) (*position.DividendReceivable, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row receivableRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, position_id, dps, gross_amount, net_amount, shares_at_record,
		       ex_date, pay_date, state, cleared, created_at, updated_at
		FROM dividend_receivables
		WHERE position_id = $1 AND NOT cleared`, positionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select receivable: %w", err)
	}

	return &position.DividendReceivable{
		ID:             row.ID,
		PositionID:     row.PositionID,
		DPS:            row.DPS,
		Gross:          row.Gross,
		Net:            row.Net,
		SharesAtRecord: row.SharesAtRecord,
		ExDate:         row.ExDate,
		PayDate:        row.PayDate,
		State:          position.ReceivableState(row.State),
		Cleared:        row.Cleared,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

// SaveReceivable upserts the receivable. The partial unique index on
// (position_id) WHERE NOT cleared enforces the one-open-receivable rule at
// the storage layer as well.
func (s *Store) SaveReceivable(ctx context.Context, r *position.DividendReceivable) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dividend_receivables
			(id, position_id, dps, gross_amount, net_amount, shares_at_record,
			 ex_date, pay_date, state, cleared, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			cleared = EXCLUDED.cleared,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.PositionID, r.DPS, r.Gross, r.Net, r.SharesAtRecord,
		r.ExDate, r.PayDate, string(r.State), r.Cleared, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("open receivable already exists for position %s: %w", r.PositionID, err)
		}
		return fmt.Errorf("upsert receivable: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}
