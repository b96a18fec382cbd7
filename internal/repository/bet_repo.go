package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// betRow is the column layout of the bets table.  The kind-specific payload
// lives in derived_json.
type betRow struct {
	ID          uuid.UUID           `db:"id"`
	OwnerID     uuid.UUID           `db:"owner_id"`
	Kind        string              `db:"kind"`
	Direction   string              `db:"direction"`
	Stake       decimal.Decimal     `db:"stake"`
	Status      string              `db:"status"`
	DerivedJSON string              `db:"derived_json"`
	Payout      decimal.NullDecimal `db:"payout"`
	ExitPrice   decimal.NullDecimal `db:"exit_price"`
	CloseReason sql.NullString      `db:"close_reason"`
	CreatedAt   time.Time           `db:"created_at"`
	ResolvedAt  sql.NullTime        `db:"resolved_at"`
}

const betColumns = `id, owner_id, kind, direction, stake, status, derived_json,
	payout, exit_price, close_reason, created_at, resolved_at`

func toBetRow(b *domain.Bet) (*betRow, error) {
	raw, err := b.MarshalTerms()
	if err != nil {
		return nil, err
	}
	row := &betRow{
		ID:          b.ID,
		OwnerID:     b.OwnerID,
		Kind:        string(b.Kind),
		Direction:   string(b.Direction),
		Stake:       b.Stake,
		Status:      string(b.Status),
		DerivedJSON: string(raw),
		CreatedAt:   b.CreatedAt,
	}
	if b.Payout != nil {
		row.Payout = decimal.NewNullDecimal(*b.Payout)
	}
	if b.ExitPrice != nil {
		row.ExitPrice = decimal.NewNullDecimal(*b.ExitPrice)
	}
	if b.CloseReason != nil {
		row.CloseReason = sql.NullString{String: string(*b.CloseReason), Valid: true}
	}
	if b.ResolvedAt != nil {
		row.ResolvedAt = sql.NullTime{Time: *b.ResolvedAt, Valid: true}
	}
	return row, nil
}

func (r *betRow) toDomain() (*domain.Bet, error) {
	b := &domain.Bet{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Kind:      domain.MarketKind(r.Kind),
		Direction: domain.Direction(r.Direction),
		Stake:     r.Stake,
		Status:    domain.BetStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
	if err := b.UnmarshalTerms([]byte(r.DerivedJSON)); err != nil {
		return nil, fmt.Errorf("bet %s: decode derived_json: %w", r.ID, err)
	}
	if r.Payout.Valid {
		v := r.Payout.Decimal
		b.Payout = &v
	}
	if r.ExitPrice.Valid {
		v := r.ExitPrice.Decimal
		b.ExitPrice = &v
	}
	if r.CloseReason.Valid {
		v := domain.CloseReason(r.CloseReason.String)
		b.CloseReason = &v
	}
	if r.ResolvedAt.Valid {
		v := r.ResolvedAt.Time
		b.ResolvedAt = &v
	}
	return b, nil
}

func rowsToBets(rows []betRow) ([]*domain.Bet, error) {
	bets := make([]*domain.Bet, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads (Store)
// ──────────────────────────────────────────────────────────────────────────────

// GetBet fetches a bet by its primary key.
func (s *PostgresStore) GetBet(ctx context.Context, id uuid.UUID) (*domain.Bet, error) {
	var row betRow
	err := s.db.GetContext(ctx, &row, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("bet_repo.GetBet: %w", err)
	}
	return row.toDomain()
}

// ListBets returns a user's bet history, newest first.
func (s *PostgresStore) ListBets(ctx context.Context, userID uuid.UUID, f domain.BetFilter) ([]*domain.Bet, error) {
	conds := []string{"owner_id = $1"}
	args := []any{userID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	args = append(args, normalizeLimit(f.Limit), max(f.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM bets WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		betColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	var rows []betRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("bet_repo.ListBets: %w", err)
	}
	return rowsToBets(rows)
}

// ListOpenBets returns every OPEN bet of a kind, oldest first.
func (s *PostgresStore) ListOpenBets(ctx context.Context, kind domain.MarketKind) ([]*domain.Bet, error) {
	var rows []betRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+betColumns+` FROM bets WHERE kind = $1 AND status = 'OPEN' ORDER BY created_at ASC`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("bet_repo.ListOpenBets: %w", err)
	}
	return rowsToBets(rows)
}

// ──────────────────────────────────────────────────────────────────────────────
// Writes (Tx)
// ──────────────────────────────────────────────────────────────────────────────

// InsertBet inserts a new bet inside the transaction.
func (t *pgTx) InsertBet(ctx context.Context, b *domain.Bet) error {
	row, err := toBetRow(b)
	if err != nil {
		return fmt.Errorf("bet_repo.InsertBet: %w", err)
	}
	query := `
		INSERT INTO bets
			(id, owner_id, kind, direction, stake, status, derived_json, created_at)
		VALUES
			(:id, :owner_id, :kind, :direction, :stake, :status, :derived_json, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("bet_repo.InsertBet: %w", err)
	}
	return nil
}

// LockBet reads the bet row with FOR UPDATE.
func (t *pgTx) LockBet(ctx context.Context, id uuid.UUID) (*domain.Bet, error) {
	var row betRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+betColumns+` FROM bets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("bet_repo.LockBet: %w", err)
	}
	return row.toDomain()
}

// CloseBet applies a terminal status.  Only bets still OPEN are touched, so a
// second close of the same bet affects zero rows.
func (t *pgTx) CloseBet(ctx context.Context, id uuid.UUID, c BetClose) error {
	var exit decimal.NullDecimal
	if c.ExitPrice != nil {
		exit = decimal.NewNullDecimal(*c.ExitPrice)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bets
		SET status       = $1,
		    payout       = $2,
		    exit_price   = $3,
		    close_reason = $4,
		    resolved_at  = $5
		WHERE id = $6 AND status = 'OPEN'`,
		string(c.Status), c.Payout, exit, string(c.Reason), c.ResolvedAt, id)
	if err != nil {
		return fmt.Errorf("bet_repo.CloseBet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadyResolved
	}
	return nil
}
