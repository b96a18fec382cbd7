package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evetabi/betengine/internal/clock"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/domain"
	"github.com/evetabi/betengine/internal/events"
	"github.com/evetabi/betengine/internal/ledger"
	"github.com/evetabi/betengine/internal/metrics"
	"github.com/evetabi/betengine/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into BettingService to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// MarketData is the market data the service reads before opening a
// transaction.  Implemented by marketdata.Adapter.
type MarketData interface {
	CurrentPrice(ctx context.Context, symbol string) (domain.PriceQuote, error)
	EventMarket(ctx context.Context, marketID string) (*domain.EventMarket, error)
	EventOutcome(ctx context.Context, marketID string) (domain.Outcome, error)
}

// Notifier pushes a message to every socket of one user.  Implemented by
// ws.Hub.
type Notifier interface {
	NotifyUser(userID uuid.UUID, msgType string, payload any)
}

// Notification types pushed to the bet owner.
const (
	NotifyBetPlaced    = "bet_placed"
	NotifyBetSettled   = "bet_settled"
	NotifyBetCancelled = "bet_cancelled"
)

// ──────────────────────────────────────────────────────────────────────────────
// BettingService
// ──────────────────────────────────────────────────────────────────────────────

// BettingService places, cancels and settles bets.  Every money movement runs
// in one store transaction together with the bet row it belongs to.
type BettingService struct {
	store  repository.Store
	ledger *ledger.Ledger
	market MarketData
	clock  clock.Clock
	cfg    *config.Config
	logger *slog.Logger

	publisher events.Publisher // optional
	notifier  Notifier         // optional

	minStake, maxStake       decimal.Decimal
	minLeverage, maxLeverage decimal.Decimal
}

// NewBettingService creates a BettingService.
func NewBettingService(
	store repository.Store,
	l *ledger.Ledger,
	market MarketData,
	c clock.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *BettingService {
	return &BettingService{
		store:       store,
		ledger:      l,
		market:      market,
		clock:       c,
		cfg:         cfg,
		logger:      logger.With("component", "betting_service"),
		minStake:    decimal.NewFromFloat(cfg.Betting.MinStake),
		maxStake:    decimal.NewFromFloat(cfg.Betting.MaxStake),
		minLeverage: decimal.NewFromFloat(cfg.Betting.MinLeverage),
		maxLeverage: decimal.NewFromFloat(cfg.Betting.MaxLeverage),
	}
}

// SetPublisher injects the Kafka publisher post-construction.
func (s *BettingService) SetPublisher(p events.Publisher) { s.publisher = p }

// SetNotifier injects the WS hub post-construction.
func (s *BettingService) SetNotifier(n Notifier) { s.notifier = n }

// fetchContext bounds a market data call.
func (s *BettingService) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Resolver.FetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Resolver.FetchTimeout)
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBet
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBet validates the request, reads the market data the bet is priced
// from, then debits the stake and records the OPEN bet in one transaction.
// Nothing is written when any step fails.
func (s *BettingService) PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (*domain.Bet, error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	if !req.Kind.IsValid() {
		return nil, domain.ErrUnknownMarketKind
	}
	if !req.Direction.ValidFor(req.Kind) {
		return nil, domain.ErrInvalidDirection
	}
	if err := s.checkStake(req.Amount); err != nil {
		return nil, err
	}

	// ── 2. Derive kind-specific terms from market data (outside the tx) ───────
	now := s.clock.Now()
	bet := &domain.Bet{
		ID:        uuid.New(),
		OwnerID:   req.UserID,
		Kind:      req.Kind,
		Direction: req.Direction,
		Stake:     req.Amount,
		Status:    domain.BetStatusOpen,
		CreatedAt: now,
	}
	if err := s.deriveTerms(ctx, req, bet); err != nil {
		return nil, err
	}

	// ── 3. Debit + insert, all or nothing ────────────────────────────────────
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := s.ledger.Debit(ctx, tx, req.UserID, req.Amount, &bet.ID, domain.TxStake); err != nil {
			return err
		}
		return tx.InsertBet(ctx, bet)
	})
	if err != nil {
		return nil, fmt.Errorf("bet_service.PlaceBet: %w", err)
	}

	// ── 4. After commit ──────────────────────────────────────────────────────
	metrics.BetsPlaced.WithLabelValues(string(bet.Kind)).Inc()
	metrics.StakeVolume.WithLabelValues(string(bet.Kind)).Add(bet.Stake.InexactFloat64())
	s.logger.Info("bet placed",
		"bet_id", bet.ID, "user_id", bet.OwnerID, "kind", bet.Kind,
		"direction", bet.Direction, "stake", bet.Stake.String())
	s.afterCommit(events.TopicBetPlaced, NotifyBetPlaced, bet, nil)
	return bet, nil
}

func (s *BettingService) checkStake(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidBetAmount
	}
	if !amount.Equal(amount.Round(domain.MoneyScale)) {
		return fmt.Errorf("stake %s has more than %d decimals: %w", amount, domain.MoneyScale, domain.ErrInvalidBetAmount)
	}
	if amount.LessThan(s.minStake) || amount.GreaterThan(s.maxStake) {
		return fmt.Errorf("stake %s outside [%s, %s]: %w", amount, s.minStake, s.maxStake, domain.ErrInvalidBetAmount)
	}
	return nil
}

// deriveTerms fills the payload selected by req.Kind.
func (s *BettingService) deriveTerms(ctx context.Context, req domain.PlaceBetRequest, bet *domain.Bet) error {
	switch req.Kind {
	case domain.KindEvent:
		terms, err := s.eventTerms(ctx, req)
		if err != nil {
			return err
		}
		bet.Event = terms

	case domain.KindPrice:
		if req.Leverage.LessThan(s.minLeverage) || req.Leverage.GreaterThan(s.maxLeverage) {
			return fmt.Errorf("leverage %s outside [%s, %s]: %w", req.Leverage, s.minLeverage, s.maxLeverage, domain.ErrInvalidOdds)
		}
		quote, err := s.quote(ctx, req.Symbol)
		if err != nil {
			return err
		}
		terms, err := domain.NewPriceTerms(quote.Symbol, req.Direction, req.Amount, req.Leverage, quote.Price, req.TakeProfit, req.StopLoss)
		if err != nil {
			return err
		}
		bet.Price = terms

	case domain.KindPrediction:
		quoted, ok := s.cfg.Betting.PredictionOdds[req.DurationSec]
		if !ok {
			return fmt.Errorf("duration %ds: %w", req.DurationSec, domain.ErrInvalidDuration)
		}
		odds := decimal.NewFromFloat(quoted)
		if req.Odds != nil && !req.Odds.Equal(odds) {
			return fmt.Errorf("odds %s, quoted %s: %w", req.Odds, odds, domain.ErrInvalidOdds)
		}
		quote, err := s.quote(ctx, req.Symbol)
		if err != nil {
			return err
		}
		terms, err := domain.NewPredictionTerms(quote.Symbol, odds, quote.Price, req.DurationSec, bet.CreatedAt)
		if err != nil {
			return err
		}
		bet.Prediction = terms
	}
	return nil
}

func (s *BettingService) eventTerms(ctx context.Context, req domain.PlaceBetRequest) (*domain.EventTerms, error) {
	if req.MarketID == "" {
		return nil, domain.ErrMarketNotFound
	}
	fctx, cancel := s.fetchContext(ctx)
	defer cancel()

	m, err := s.market.EventMarket(fctx, req.MarketID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.PlaceBet: event market: %w", err)
	}
	if m.Closed {
		return nil, domain.ErrMarketClosed
	}
	opt, ok := m.Option(req.OptionIndex)
	if !ok {
		return nil, fmt.Errorf("option %d of %s: %w", req.OptionIndex, req.MarketID, domain.ErrMarketNotFound)
	}
	return domain.NewEventTerms(m.ID, opt, req.Direction, req.Amount)
}

func (s *BettingService) quote(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	if symbol == "" {
		return domain.PriceQuote{}, domain.ErrMarketNotFound
	}
	fctx, cancel := s.fetchContext(ctx)
	defer cancel()

	q, err := s.market.CurrentPrice(fctx, symbol)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("bet_service: price %s: %w", symbol, err)
	}
	return q, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// CancelBet
// ──────────────────────────────────────────────────────────────────────────────

// CancelBet refunds the full stake of an OPEN bet owned by userID.  A bet that
// was settled first, or whose outcome is already decided (expired prediction,
// resolved event, position past a trigger level), returns
// domain.ErrAlreadyResolved.  Market data failures refuse the cancel.
func (s *BettingService) CancelBet(ctx context.Context, userID, betID uuid.UUID) (*domain.CancelResult, error) {
	// ── 1. Pre-checks outside the tx ─────────────────────────────────────────
	current, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.CancelBet: %w", err)
	}
	if current.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	if !current.IsOpen() {
		return nil, domain.ErrAlreadyResolved
	}
	if current.Kind == domain.KindEvent {
		fctx, cancel := s.fetchContext(ctx)
		outcome, err := s.market.EventOutcome(fctx, current.Event.MarketID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("bet_service.CancelBet: event outcome: %w", err)
		}
		if outcome.Resolved {
			return nil, domain.ErrAlreadyResolved
		}
	}
	if current.Kind == domain.KindPrice {
		q, err := s.quote(ctx, current.Price.Symbol)
		if err != nil {
			return nil, fmt.Errorf("bet_service.CancelBet: %w", err)
		}
		if reason, hit := current.Price.PriceTrigger(current.Direction, q.Price); hit {
			return nil, fmt.Errorf("bet_service.CancelBet: %s crossed at %s: %w", reason, q.Price, domain.ErrAlreadyResolved)
		}
	}

	// ── 2. Lock bet, CAS to CANCELLED, refund ────────────────────────────────
	var bet *domain.Bet
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBet(ctx, betID)
		if err != nil {
			return err
		}
		if !b.IsOpen() {
			return domain.ErrAlreadyResolved
		}
		now := s.clock.Now()
		if b.ExpiredAt(now) {
			return domain.ErrAlreadyResolved
		}
		closing := repository.BetClose{
			Status:     domain.BetStatusCancelled,
			Payout:     b.Stake,
			Reason:     domain.ReasonCancelled,
			ResolvedAt: now,
		}
		if err := tx.CloseBet(ctx, b.ID, closing); err != nil {
			return err
		}
		if _, err := s.ledger.Credit(ctx, tx, b.OwnerID, b.Stake, &b.ID, domain.TxRefund); err != nil {
			return err
		}
		closing.Apply(b)
		bet = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bet_service.CancelBet: %w", err)
	}

	metrics.BetsCancelled.WithLabelValues(string(bet.Kind)).Inc()
	s.logger.Info("bet cancelled", "bet_id", bet.ID, "user_id", bet.OwnerID, "refund", bet.Stake.String())
	result := &domain.CancelResult{Bet: bet, RefundedAmount: bet.Stake}
	s.afterCommit(events.TopicBetCancelled, NotifyBetCancelled, bet, result)
	return result, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// SettleBet / ClosePosition
// ──────────────────────────────────────────────────────────────────────────────

// SettleBet closes an OPEN bet against snap and credits its payout (zero for a
// loss, still recorded).  It returns domain.ErrAlreadyResolved when the bet is
// no longer OPEN and domain.ErrNotTriggered when snap does not close it.
func (s *BettingService) SettleBet(ctx context.Context, betID uuid.UUID, snap domain.MarketSnapshot) (*domain.Bet, error) {
	bet, err := s.settle(ctx, betID, snap, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("bet_service.SettleBet: %w", err)
	}
	return bet, nil
}

// ClosePosition closes the caller's PRICE bet at the current market price.
// Take-profit, stop-loss and liquidation still apply when the price has
// crossed them.
func (s *BettingService) ClosePosition(ctx context.Context, userID, betID uuid.UUID) (*domain.Bet, error) {
	current, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.ClosePosition: %w", err)
	}
	if current.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	if current.Kind != domain.KindPrice {
		return nil, domain.ErrWrongKind
	}
	if !current.IsOpen() {
		return nil, domain.ErrAlreadyResolved
	}

	q, err := s.quote(ctx, current.Symbol())
	if err != nil {
		return nil, fmt.Errorf("bet_service.ClosePosition: %w", err)
	}
	snap := domain.PriceSnapshot(q, s.clock.Now())
	snap.Manual = true

	bet, err := s.settle(ctx, betID, snap, userID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.ClosePosition: %w", err)
	}
	return bet, nil
}

// settle is the shared close path.  A non-nil owner must match the bet.
func (s *BettingService) settle(ctx context.Context, betID uuid.UUID, snap domain.MarketSnapshot, owner uuid.UUID) (*domain.Bet, error) {
	if snap.Now.IsZero() {
		snap.Now = s.clock.Now()
	}

	var bet *domain.Bet
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBet(ctx, betID)
		if err != nil {
			return err
		}
		if owner != uuid.Nil && b.OwnerID != owner {
			return domain.ErrForbidden
		}
		st, err := b.Evaluate(snap)
		if err != nil {
			return err
		}
		closing := repository.BetClose{
			Status:     st.Status,
			Payout:     st.Payout,
			ExitPrice:  st.ExitPrice,
			Reason:     st.Reason,
			ResolvedAt: s.clock.Now(),
		}
		if err := tx.CloseBet(ctx, b.ID, closing); err != nil {
			return err
		}
		if _, err := s.ledger.Credit(ctx, tx, b.OwnerID, st.Payout, &b.ID, domain.TxPayout); err != nil {
			return err
		}
		closing.Apply(b)
		bet = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BetsSettled.WithLabelValues(string(bet.Kind), string(bet.Status), string(*bet.CloseReason)).Inc()
	s.logger.Info("bet settled",
		"bet_id", bet.ID, "user_id", bet.OwnerID, "kind", bet.Kind,
		"status", bet.Status, "reason", *bet.CloseReason, "payout", bet.Payout.String())
	s.afterCommit(events.TopicBetSettled, NotifyBetSettled, bet, nil)
	return bet, nil
}

// afterCommit notifies the owner and hands the bet event to the publisher,
// which queues it.  Failures are logged only.
func (s *BettingService) afterCommit(topic, notifyType string, bet *domain.Bet, payload any) {
	if payload == nil {
		payload = bet
	}
	if s.notifier != nil {
		s.notifier.NotifyUser(bet.OwnerID, notifyType, payload)
	}
	if s.publisher == nil {
		return
	}
	ev := events.NewBetEvent(topic, bet, s.clock.Now())
	if err := s.publisher.Publish(context.Background(), ev); err != nil {
		s.logger.Warn("publish bet event failed", "topic", topic, "bet_id", ev.BetID, "err", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────────────────────────────────

// OpenAccount creates the user's account with the configured signup bonus.
// Calling it again returns the existing account and created == false.
func (s *BettingService) OpenAccount(ctx context.Context, userID uuid.UUID) (acc *domain.Account, created bool, err error) {
	bonus := decimal.NewFromFloat(s.cfg.Betting.SignupBonus)
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		created, err = s.ledger.OpenAccount(ctx, tx, userID, bonus)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("bet_service.OpenAccount: %w", err)
	}
	acc, err = s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("bet_service.OpenAccount: %w", err)
	}
	if created {
		s.logger.Info("account opened", "user_id", userID, "bonus", bonus.String())
	}
	return acc, created, nil
}

// Balance returns the user's account.
func (s *BettingService) Balance(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.Balance: %w", err)
	}
	return acc, nil
}

// Transactions returns the user's ledger history, newest first.
func (s *BettingService) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	txns, err := s.store.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("bet_service.Transactions: %w", err)
	}
	return txns, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Query helpers
// ──────────────────────────────────────────────────────────────────────────────

// ListBets returns the user's bets, newest first.
func (s *BettingService) ListBets(ctx context.Context, userID uuid.UUID, f domain.BetFilter) ([]*domain.Bet, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, fmt.Errorf("status %q: %w", f.Status, domain.ErrInvalidFilter)
	}
	if f.Kind != "" && !f.Kind.IsValid() {
		return nil, fmt.Errorf("kind %q: %w", f.Kind, domain.ErrInvalidFilter)
	}
	bets, err := s.store.ListBets(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("bet_service.ListBets: %w", err)
	}
	return bets, nil
}

// GetBet returns a single bet only if it belongs to userID.
func (s *BettingService) GetBet(ctx context.Context, userID, betID uuid.UUID) (*domain.Bet, error) {
	bet, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("bet_service.GetBet: %w", err)
	}
	if bet.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	return bet, nil
}

// IsSettlementNoop reports whether a SettleBet error only means the bet needs
// no action this cycle.
func IsSettlementNoop(err error) bool {
	return errors.Is(err, domain.ErrNotTriggered) || errors.Is(err, domain.ErrAlreadyResolved)
}
