package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/evetabi/betengine/internal/events"
	"github.com/evetabi/betengine/internal/service"
	"github.com/google/uuid"
)

// ── PlaceBet ─────────────────────────────────────────────────────────────────

func TestPlaceBet_DebitsExactStake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t)

	bet, err := f.svc.PlaceBet(ctx, priceReq(user, domain.DirectionLong, "100", "10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	assertBalance(t, f, user, "900")

	if bet.Status != domain.BetStatusOpen || bet.Price == nil {
		t.Fatalf("bet = %+v", bet)
	}
	if !bet.Price.PositionSize.Equal(dec("1000")) {
		t.Errorf("position size = %s, want 1000", bet.Price.PositionSize)
	}
	if got := bet.Price.LiquidationPrice.StringFixed(8); got != "45000.00000000" {
		t.Errorf("liquidation = %s", got)
	}

	stored, err := f.svc.GetBet(ctx, user, bet.ID)
	if err != nil || stored.Status != domain.BetStatusOpen {
		t.Fatalf("GetBet: %+v %v", stored, err)
	}

	txns, err := f.svc.Transactions(ctx, user, 10, 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("transactions = %d, want bonus + stake", len(txns))
	}
	stake := txns[0]
	if stake.Kind != domain.TxStake || !stake.Delta.Equal(dec("-100")) || stake.BetID == nil || *stake.BetID != bet.ID {
		t.Errorf("stake tx = %+v", stake)
	}
	if !stake.BalanceBefore.Equal(dec("1000")) || !stake.BalanceAfter.Equal(dec("900")) {
		t.Errorf("stake tx balances %s → %s", stake.BalanceBefore, stake.BalanceAfter)
	}
}

func TestPlaceBet_ShortLiquidation(t *testing.T) {
	f := newFixture(t)
	user := f.user(t)

	bet, err := f.svc.PlaceBet(context.Background(), priceReq(user, domain.DirectionShort, "100", "10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if got := bet.Price.LiquidationPrice.StringFixed(8); got != "55000.00000000" {
		t.Errorf("liquidation = %s, want 55000.00000000", got)
	}
}

func TestPlaceBet_Validation(t *testing.T) {
	f := newFixture(t)
	user := f.user(t)
	f.market.addEvent("closed", true, "0.5", "0.5")
	f.market.addEvent("open", false, "0.5", "0.5")

	withTP := priceReq(user, domain.DirectionLong, "100", "10")
	withTP.TakeProfit = decPtr("49000")
	withSL := priceReq(user, domain.DirectionShort, "100", "10")
	withSL.StopLoss = decPtr("49000")
	badDuration := predictionReq(user, domain.DirectionUp, "10")
	badDuration.DurationSec = 30
	badOdds := predictionReq(user, domain.DirectionUp, "10")
	badOdds.Odds = decPtr("2.5")
	unknownSymbol := priceReq(user, domain.DirectionLong, "100", "10")
	unknownSymbol.Symbol = "DOGEUSDT"
	badKind := priceReq(user, domain.DirectionLong, "100", "10")
	badKind.Kind = "LOTTERY"

	cases := []struct {
		name string
		req  domain.PlaceBetRequest
		want error
	}{
		{"zero stake", priceReq(user, domain.DirectionLong, "0", "10"), domain.ErrInvalidBetAmount},
		{"negative stake", priceReq(user, domain.DirectionLong, "-5", "10"), domain.ErrInvalidBetAmount},
		{"below min", priceReq(user, domain.DirectionLong, "0.5", "10"), domain.ErrInvalidBetAmount},
		{"above max", priceReq(user, domain.DirectionLong, "20000", "10"), domain.ErrInvalidBetAmount},
		{"too many decimals", priceReq(user, domain.DirectionLong, "1.123456789", "10"), domain.ErrInvalidBetAmount},
		{"unknown kind", badKind, domain.ErrUnknownMarketKind},
		{"up on price", priceReq(user, domain.DirectionUp, "100", "10"), domain.ErrInvalidDirection},
		{"long on event", eventReq(user, domain.DirectionLong, "10", "open", 0), domain.ErrInvalidDirection},
		{"leverage high", priceReq(user, domain.DirectionLong, "100", "101"), domain.ErrInvalidOdds},
		{"leverage low", priceReq(user, domain.DirectionLong, "100", "0.5"), domain.ErrInvalidOdds},
		{"take-profit below long entry", withTP, domain.ErrInvalidTrigger},
		{"stop-loss below short entry", withSL, domain.ErrInvalidTrigger},
		{"unquoted duration", badDuration, domain.ErrInvalidDuration},
		{"odds differ from quote", badOdds, domain.ErrInvalidOdds},
		{"unknown symbol", unknownSymbol, domain.ErrMarketNotFound},
		{"unknown event", eventReq(user, domain.DirectionYes, "10", "nope", 0), domain.ErrMarketNotFound},
		{"missing option", eventReq(user, domain.DirectionYes, "10", "open", 5), domain.ErrMarketNotFound},
		{"closed event", eventReq(user, domain.DirectionYes, "10", "closed", 0), domain.ErrMarketClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.PlaceBet(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	assertBalance(t, f, user, "1000")
	bets, err := f.svc.ListBets(context.Background(), user, domain.BetFilter{})
	if err != nil || len(bets) != 0 {
		t.Errorf("rejected requests left %d bets (err %v)", len(bets), err)
	}
}

func TestPlaceBet_InsufficientBalanceWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t)

	if _, err := f.svc.PlaceBet(ctx, predictionReq(user, domain.DirectionUp, "1000")); err != nil {
		t.Fatalf("first bet: %v", err)
	}
	_, err := f.svc.PlaceBet(ctx, predictionReq(user, domain.DirectionUp, "1"))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	assertBalance(t, f, user, "0")
	bets, _ := f.svc.ListBets(ctx, user, domain.BetFilter{})
	if len(bets) != 1 {
		t.Errorf("bets = %d, want 1", len(bets))
	}
	txns, _ := f.svc.Transactions(ctx, user, 10, 0)
	if len(txns) != 2 {
		t.Errorf("transactions = %d, want 2", len(txns))
	}
}

func TestPlaceBet_WithoutAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlaceBet(context.Background(), predictionReq(uuid.New(), domain.DirectionUp, "10"))
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

// ── EVENT lifecycle ──────────────────────────────────────────────────────────

func TestEventBet_PlaceAndSettle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	winner, loser := f.user(t), f.user(t)
	f.market.addEvent("rain", false, "0.50", "0.50")

	yes, err := f.svc.PlaceBet(ctx, eventReq(winner, domain.DirectionYes, "10", "rain", 0))
	if err != nil {
		t.Fatalf("PlaceBet yes: %v", err)
	}
	if got := yes.Event.Shares.StringFixed(8); got != "20.00000000" {
		t.Errorf("shares = %s, want 20.00000000", got)
	}
	no, err := f.svc.PlaceBet(ctx, eventReq(loser, domain.DirectionNo, "10", "rain", 0))
	if err != nil {
		t.Fatalf("PlaceBet no: %v", err)
	}

	// Pending outcome does not settle.
	pending := domain.OutcomeSnapshot(domain.Outcome{}, f.clock.Now())
	if _, err := f.svc.SettleBet(ctx, yes.ID, pending); !errors.Is(err, domain.ErrNotTriggered) {
		t.Fatalf("pending settle err = %v", err)
	}

	snap := domain.OutcomeSnapshot(domain.Outcome{Resolved: true, OptionIndex: 0}, f.clock.Now())
	won, err := f.svc.SettleBet(ctx, yes.ID, snap)
	if err != nil {
		t.Fatalf("settle yes: %v", err)
	}
	if won.Status != domain.BetStatusWon || won.Payout.StringFixed(2) != "20.00" {
		t.Errorf("yes settled %s payout %s", won.Status, won.Payout)
	}
	lost, err := f.svc.SettleBet(ctx, no.ID, snap)
	if err != nil {
		t.Fatalf("settle no: %v", err)
	}
	if lost.Status != domain.BetStatusLost || !lost.Payout.IsZero() {
		t.Errorf("no settled %s payout %s", lost.Status, lost.Payout)
	}

	assertBalance(t, f, winner, "1010")
	assertBalance(t, f, loser, "990")

	// A losing settlement still leaves a zero payout row.
	txns, _ := f.svc.Transactions(ctx, loser, 10, 0)
	if len(txns) != 3 || txns[0].Kind != domain.TxPayout || !txns[0].Delta.IsZero() {
		t.Errorf("loser transactions = %+v", txns)
	}
}

func TestEventBet_NoSideBuysComplement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	noBettor, yesBettor := f.user(t), f.user(t)
	f.market.addEvent("longshot", false, "0.10", "0.90")

	// "no" on option 0 and "yes" on option 1 are the same claim.
	no, err := f.svc.PlaceBet(ctx, eventReq(noBettor, domain.DirectionNo, "10", "longshot", 0))
	if err != nil {
		t.Fatalf("PlaceBet no: %v", err)
	}
	yes, err := f.svc.PlaceBet(ctx, eventReq(yesBettor, domain.DirectionYes, "10", "longshot", 1))
	if err != nil {
		t.Fatalf("PlaceBet yes: %v", err)
	}
	if !no.Event.EntryPrice.Equal(dec("0.90")) {
		t.Errorf("no entry = %s, want 0.90", no.Event.EntryPrice)
	}
	if !no.Event.Shares.Equal(yes.Event.Shares) {
		t.Errorf("no shares %s != yes shares %s", no.Event.Shares, yes.Event.Shares)
	}

	snap := domain.OutcomeSnapshot(domain.Outcome{Resolved: true, OptionIndex: 1}, f.clock.Now())
	for _, id := range []uuid.UUID{no.ID, yes.ID} {
		settled, err := f.svc.SettleBet(ctx, id, snap)
		if err != nil {
			t.Fatalf("SettleBet: %v", err)
		}
		if got := settled.Payout.StringFixed(8); got != "11.11111111" {
			t.Errorf("payout = %s, want 11.11111111", got)
		}
	}
	assertBalance(t, f, noBettor, "1001.11111111")
	assertBalance(t, f, yesBettor, "1001.11111111")
}

// ── PREDICTION lifecycle ─────────────────────────────────────────────────────

func TestPredictionBet_SettleOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t)

	bet, err := f.svc.PlaceBet(ctx, predictionReq(user, domain.DirectionUp, "10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if !bet.Prediction.ExpiresAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("expires at %v", bet.Prediction.ExpiresAt)
	}

	// Before expiry nothing happens.
	early := domain.MarketSnapshot{Price: dec("50100"), Now: f.clock.Now()}
	if _, err := f.svc.SettleBet(ctx, bet.ID, early); !errors.Is(err, domain.ErrNotTriggered) {
		t.Fatalf("early settle err = %v", err)
	}

	f.clock.Advance(time.Minute)
	snap := domain.MarketSnapshot{Price: dec("50100"), PriceAt: f.clock.Now(), Now: f.clock.Now()}
	settled, err := f.svc.SettleBet(ctx, bet.ID, snap)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Payout.StringFixed(2) != "19.50" || *settled.CloseReason != domain.ReasonExpired {
		t.Errorf("payout %s reason %s", settled.Payout, *settled.CloseReason)
	}
	if settled.ResolvedAt == nil || !settled.ResolvedAt.Equal(f.clock.Now()) {
		t.Errorf("resolved_at = %v", settled.ResolvedAt)
	}

	_, err = f.svc.SettleBet(ctx, bet.ID, snap)
	if !errors.Is(err, domain.ErrAlreadyResolved) || !service.IsSettlementNoop(err) {
		t.Fatalf("second settle err = %v, want ErrAlreadyResolved", err)
	}
	assertBalance(t, f, user, "1009.5")
}

func TestPredictionBet_LossPaysZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t)

	bet, err := f.svc.PlaceBet(ctx, predictionReq(user, domain.DirectionDown, "10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	f.clock.Advance(2 * time.Minute)
	settled, err := f.svc.SettleBet(ctx, bet.ID, domain.MarketSnapshot{Price: dec("50000"), Now: f.clock.Now()})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != domain.BetStatusLost || !settled.Payout.IsZero() {
		t.Errorf("flat close for DOWN: %s %s", settled.Status, settled.Payout)
	}
	assertBalance(t, f, user, "990")
}

// ── PRICE lifecycle ──────────────────────────────────────────────────────────

func TestPriceBet_TriggersAndManualClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t)

	req := priceReq(user, domain.DirectionLong, "100", "10")
	req.TakeProfit = decPtr("51000")
	bet, err := f.svc.PlaceBet(ctx, req)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	inside := domain.MarketSnapshot{Price: dec("50500"), Now: f.clock.Now()}
	if _, err := f.svc.SettleBet(ctx, bet.ID, inside); !errors.Is(err, domain.ErrNotTriggered) {
		t.Fatalf("inside band err = %v", err)
	}
	assertBalance(t, f, user, "900")

	// Manual close at 50200: pnl = 200/50000 × 1000 = 4.
	f.market.setPrice("BTCUSDT", "50200")
	closed, err := f.svc.ClosePosition(ctx, user, bet.ID)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if *closed.CloseReason != domain.ReasonManual || closed.Status != domain.BetStatusWon {
		t.Errorf("closed %s %s", closed.Status, *closed.CloseReason)
	}
	if !closed.Payout.Equal(dec("104")) || !closed.ExitPrice.Equal(dec("50200")) {
		t.Errorf("payout %s exit %s", closed.Payout, closed.ExitPrice)
	}
	assertBalance(t, f, user, "1004")

	if _, err := f.svc.ClosePosition(ctx, user, bet.ID); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("second close err = %v", err)
	}
}

func TestPriceBet_TakeProfitAndLiquidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t)

	tp := priceReq(user, domain.DirectionLong, "100", "10")
	tp.TakeProfit = decPtr("55000")
	tpBet, _ := f.svc.PlaceBet(ctx, tp)
	liqBet, err := f.svc.PlaceBet(ctx, priceReq(user, domain.DirectionLong, "100", "10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	up := domain.MarketSnapshot{Price: dec("55000"), Now: f.clock.Now()}
	won, err := f.svc.SettleBet(ctx, tpBet.ID, up)
	if err != nil {
		t.Fatalf("tp settle: %v", err)
	}
	if *won.CloseReason != domain.ReasonTakeProfit || !won.Payout.Equal(dec("200")) {
		t.Errorf("tp: %s %s", *won.CloseReason, won.Payout)
	}

	crash := domain.MarketSnapshot{Price: dec("44000"), Now: f.clock.Now()}
	gone, err := f.svc.SettleBet(ctx, liqBet.ID, crash)
	if err != nil {
		t.Fatalf("liq settle: %v", err)
	}
	if *gone.CloseReason != domain.ReasonLiquidation || !gone.Payout.IsZero() {
		t.Errorf("liq: %s %s", *gone.CloseReason, gone.Payout)
	}
	assertBalance(t, f, user, "1000")
}

func TestClosePosition_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user, other := f.user(t), f.user(t)

	pred, _ := f.svc.PlaceBet(ctx, predictionReq(user, domain.DirectionUp, "10"))
	if _, err := f.svc.ClosePosition(ctx, user, pred.ID); !errors.Is(err, domain.ErrWrongKind) {
		t.Errorf("prediction close err = %v, want ErrWrongKind", err)
	}
	pos, _ := f.svc.PlaceBet(ctx, priceReq(user, domain.DirectionLong, "10", "2"))
	if _, err := f.svc.ClosePosition(ctx, other, pos.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("foreign close err = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.ClosePosition(ctx, user, uuid.New()); !errors.Is(err, domain.ErrBetNotFound) {
		t.Errorf("missing close err = %v, want ErrBetNotFound", err)
	}
}

// ── CancelBet ────────────────────────────────────────────────────────────────

func TestCancelBet_RefundsExactStake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user, other := f.user(t), f.user(t)

	bet, err := f.svc.PlaceBet(ctx, priceReq(user, domain.DirectionShort, "123.45", "5"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	assertBalance(t, f, user, "876.55")

	if _, err := f.svc.CancelBet(ctx, other, bet.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("foreign cancel err = %v", err)
	}

	res, err := f.svc.CancelBet(ctx, user, bet.ID)
	if err != nil {
		t.Fatalf("CancelBet: %v", err)
	}
	if !res.RefundedAmount.Equal(dec("123.45")) || res.Bet.Status != domain.BetStatusCancelled {
		t.Errorf("result = %+v", res)
	}
	assertBalance(t, f, user, "1000")

	if _, err := f.svc.CancelBet(ctx, user, bet.ID); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("second cancel err = %v", err)
	}
	if _, err := f.svc.SettleBet(ctx, bet.ID, domain.MarketSnapshot{Price: dec("1"), Now: f.clock.Now()}); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("settle after cancel err = %v", err)
	}
	assertBalance(t, f, user, "1000")

	txns, _ := f.svc.Transactions(ctx, user, 10, 0)
	if txns[0].Kind != domain.TxRefund || !txns[0].Delta.Equal(dec("123.45")) {
		t.Errorf("refund tx = %+v", txns[0])
	}
}

func TestCancelBet_DecidedBets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t)
	f.market.addEvent("vote", false, "0.4", "0.6")

	pred, _ := f.svc.PlaceBet(ctx, predictionReq(user, domain.DirectionUp, "10"))
	ev, err := f.svc.PlaceBet(ctx, eventReq(user, domain.DirectionYes, "10", "vote", 1))
	if err != nil {
		t.Fatalf("PlaceBet event: %v", err)
	}

	f.clock.Advance(61 * time.Second)
	if _, err := f.svc.CancelBet(ctx, user, pred.ID); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("expired prediction cancel err = %v", err)
	}

	f.market.resolve("vote", 1)
	if _, err := f.svc.CancelBet(ctx, user, ev.ID); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("resolved event cancel err = %v", err)
	}
	assertBalance(t, f, user, "980")
}

func TestCancelBet_PriceTriggerCrossed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t)

	// Long 10x from 50000 liquidates at 45000.
	bet, err := f.svc.PlaceBet(ctx, priceReq(user, domain.DirectionLong, "100", "10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	assertBalance(t, f, user, "900")

	f.market.setPrice("BTCUSDT", "40000")
	if _, err := f.svc.CancelBet(ctx, user, bet.ID); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("cancel past liquidation err = %v, want ErrAlreadyResolved", err)
	}
	assertBalance(t, f, user, "900")

	stored, err := f.svc.GetBet(ctx, user, bet.ID)
	if err != nil || stored.Status != domain.BetStatusOpen {
		t.Fatalf("bet after refused cancel = %+v, %v", stored, err)
	}

	// Without a quote the cancel is refused rather than refunded.
	f.market.mu.Lock()
	delete(f.market.prices, "BTCUSDT")
	f.market.mu.Unlock()
	if _, err := f.svc.CancelBet(ctx, user, bet.ID); err == nil {
		t.Fatal("cancel without a quote succeeded")
	}
	assertBalance(t, f, user, "900")

	// Back inside the band the cancel goes through.
	f.market.setPrice("BTCUSDT", "49000")
	res, err := f.svc.CancelBet(ctx, user, bet.ID)
	if err != nil {
		t.Fatalf("CancelBet: %v", err)
	}
	if !res.RefundedAmount.Equal(dec("100")) {
		t.Errorf("refund = %s, want 100", res.RefundedAmount)
	}
	assertBalance(t, f, user, "1000")
}

// ── Queries / accounts ───────────────────────────────────────────────────────

func TestOpenAccount_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := uuid.New()

	acc, created, err := f.svc.OpenAccount(ctx, user)
	if err != nil || !created || !acc.Balance.Equal(dec("1000")) {
		t.Fatalf("first open: %+v %v %v", acc, created, err)
	}
	acc, created, err = f.svc.OpenAccount(ctx, user)
	if err != nil || created || !acc.Balance.Equal(dec("1000")) {
		t.Fatalf("second open: %+v %v %v", acc, created, err)
	}
	txns, _ := f.svc.Transactions(ctx, user, 10, 0)
	if len(txns) != 1 || txns[0].Kind != domain.TxBonus {
		t.Errorf("transactions = %+v", txns)
	}
}

func TestListBets_FilterAndOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user, other := f.user(t), f.user(t)

	a, _ := f.svc.PlaceBet(ctx, predictionReq(user, domain.DirectionUp, "10"))
	f.clock.Advance(time.Second)
	b, _ := f.svc.PlaceBet(ctx, priceReq(user, domain.DirectionLong, "10", "2"))
	if _, err := f.svc.CancelBet(ctx, user, b.ID); err != nil {
		t.Fatalf("CancelBet: %v", err)
	}

	open, err := f.svc.ListBets(ctx, user, domain.BetFilter{Status: domain.BetStatusOpen})
	if err != nil || len(open) != 1 || open[0].ID != a.ID {
		t.Errorf("open bets = %v (err %v)", open, err)
	}
	prices, _ := f.svc.ListBets(ctx, user, domain.BetFilter{Kind: domain.KindPrice})
	if len(prices) != 1 || prices[0].ID != b.ID {
		t.Errorf("price bets = %v", prices)
	}
	if _, err := f.svc.ListBets(ctx, user, domain.BetFilter{Status: "WHATEVER"}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Errorf("bad filter err = %v", err)
	}
	if _, err := f.svc.GetBet(ctx, other, a.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("foreign GetBet err = %v", err)
	}
}

// ── Post-commit side effects ─────────────────────────────────────────────────

func TestSideEffects_NotifyAndPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notifier := &recordingNotifier{}
	pub := &chanPublisher{ch: make(chan events.BetEvent, 8)}
	f.svc.SetNotifier(notifier)
	f.svc.SetPublisher(pub)
	user := f.user(t)

	bet, err := f.svc.PlaceBet(ctx, predictionReq(user, domain.DirectionUp, "10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if _, err := f.svc.CancelBet(ctx, user, bet.ID); err != nil {
		t.Fatalf("CancelBet: %v", err)
	}

	got := notifier.types()
	if len(got) != 2 || got[0] != service.NotifyBetPlaced || got[1] != service.NotifyBetCancelled {
		t.Errorf("notifications = %v", got)
	}

	for _, want := range []string{events.TopicBetPlaced, events.TopicBetCancelled} {
		select {
		case ev := <-pub.ch:
			if ev.BetID != bet.ID || ev.UserID != user {
				t.Errorf("event = %+v", ev)
			}
			if ev.Topic != want {
				t.Errorf("topic = %s, want %s", ev.Topic, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for bet events")
		}
	}
}
