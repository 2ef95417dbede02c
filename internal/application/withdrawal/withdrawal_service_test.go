package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juan-silveira/clube-navi-sub003/internal/application/fees"
	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/tenantcache"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
)

const testSchema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	document TEXT NOT NULL DEFAULT '',
	ledger_address TEXT NOT NULL DEFAULT '',
	balance NUMERIC NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE withdrawals (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	amount NUMERIC NOT NULL,
	fee NUMERIC NOT NULL,
	net_amount NUMERIC NOT NULL,
	destination_key TEXT NOT NULL,
	status TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	burn_tx_hash TEXT NOT NULL DEFAULT '',
	reversal_tx_hash TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE user_fee_profiles (
	user_id TEXT PRIMARY KEY,
	deposit_fixed_fee NUMERIC NOT NULL,
	deposit_percent_fee NUMERIC NOT NULL,
	withdraw_fixed_fee NUMERIC NOT NULL,
	withdraw_percent_fee NUMERIC NOT NULL,
	vip_tier INTEGER NOT NULL,
	valid_from TIMESTAMP NOT NULL,
	valid_until TIMESTAMP
);
CREATE TABLE user_transfer_fees (
	user_id TEXT NOT NULL,
	network TEXT NOT NULL,
	token_id TEXT NOT NULL,
	fee NUMERIC NOT NULL,
	PRIMARY KEY (user_id, network, token_id)
);`

type fakeLedger struct {
	mints   int64
	burns   int64
	burnErr error
	mintErr error

	// When set, Mint announces itself on mintBusy and blocks on mintHold,
	// letting tests park one call mid-flight.
	mintBusy chan struct{}
	mintHold chan struct{}
}

func (l *fakeLedger) Mint(_ context.Context, _ string, _ decimal.Decimal, _, referenceID string) (*domain.ChainReceipt, error) {
	if l.mintBusy != nil {
		l.mintBusy <- struct{}{}
	}
	if l.mintHold != nil {
		<-l.mintHold
	}
	if l.mintErr != nil {
		return nil, l.mintErr
	}
	n := atomic.AddInt64(&l.mints, 1)
	return &domain.ChainReceipt{TxHash: fmt.Sprintf("0xmint-%s-%d", referenceID, n), BlockNumber: n}, nil
}

func (l *fakeLedger) Burn(_ context.Context, _ string, _ decimal.Decimal, _, referenceID string) (*domain.ChainReceipt, error) {
	if l.burnErr != nil {
		return nil, l.burnErr
	}
	n := atomic.AddInt64(&l.burns, 1)
	return &domain.ChainReceipt{TxHash: fmt.Sprintf("0xburn-%s-%d", referenceID, n), BlockNumber: n}, nil
}

type fakePayout struct {
	err   error
	calls int
}

func (p *fakePayout) Payout(_ context.Context, _ string, _ decimal.Decimal, referenceID string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return "transfer-" + referenceID, nil
}

type fakeTenantRepo struct {
	tenant *domain.Tenant
}

func (r *fakeTenantRepo) GetByID(context.Context, string) (*domain.Tenant, error)   { return r.tenant, nil }
func (r *fakeTenantRepo) GetBySlug(context.Context, string) (*domain.Tenant, error) { return r.tenant, nil }
func (r *fakeTenantRepo) GetByCustomDomain(context.Context, string) (*domain.Tenant, error) {
	return r.tenant, nil
}
func (r *fakeTenantRepo) ListActive(context.Context) ([]domain.Tenant, error) {
	return []domain.Tenant{*r.tenant}, nil
}

type testEnv struct {
	svc    IWithdrawalService
	stores *repositories.TenantStores
	tenant *domain.Tenant
	ledger *fakeLedger
	payout *fakePayout
}

func setupEnv(t *testing.T, balance int64) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	now := time.Now().UTC()
	if _, err := db.Exec(`INSERT INTO users (id, name, email, document, ledger_address, balance, created_at, updated_at)
		VALUES ('u1', 'Ana', 'ana@example.com', '12345678901', '0xana', ?, ?, ?)`, balance, now, now); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	tenant := &domain.Tenant{
		ID:                 "t1",
		Slug:               "club-one",
		Status:             domain.TenantStatusActive,
		SubscriptionStatus: domain.SubscriptionActive,
	}

	pool := tenantcache.New(&fakeTenantRepo{tenant: tenant}, config.TenantCacheConfig{ResolveTTL: time.Minute}, nil,
		func(domain.DataStoreCredentials) (*sql.DB, error) { return db, nil },
		zerolog.Nop(),
	)

	ledger := &fakeLedger{}
	payout := &fakePayout{}
	svc := NewWithdrawalService(
		pool,
		ledger,
		payout,
		fees.NewCalculator(fees.SystemDefaults(), zerolog.Nop()),
		nil,
		nil,
		zerolog.Nop(),
	)

	return &testEnv{
		svc:    svc,
		stores: repositories.NewTenantStores(db, zerolog.Nop()),
		tenant: tenant,
		ledger: ledger,
		payout: payout,
	}
}

func (e *testEnv) userBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	user, err := e.stores.Users.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user.Balance
}

func TestRequestWithdrawsWithSubtractiveFee(t *testing.T) {
	env := setupEnv(t, 200)
	ctx := context.Background()

	result, err := env.svc.Request(ctx, env.tenant, &RequestInput{
		UserID:         "u1",
		Amount:         decimal.NewFromInt(100),
		DestinationKey: "ana@example.com",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if result.Status != domain.WithdrawalStatusConfirmed {
		t.Errorf("status = %s, want confirmed", result.Status)
	}
	if !result.Fee.Equal(decimal.NewFromInt(2)) {
		t.Errorf("fee = %s, want 2", result.Fee)
	}
	if !result.NetAmount.Equal(decimal.NewFromInt(98)) {
		t.Errorf("net = %s, want 98", result.NetAmount)
	}
	if result.BurnTxHash == "" || result.ExternalID == "" {
		t.Errorf("missing burn hash or external id: %+v", result)
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", env.userBalance(t))
	}
	if atomic.LoadInt64(&env.ledger.burns) != 1 {
		t.Errorf("burns = %d, want 1", env.ledger.burns)
	}
}

func TestRequestRejectsInsufficientBalance(t *testing.T) {
	env := setupEnv(t, 50)
	ctx := context.Background()

	_, err := env.svc.Request(ctx, env.tenant, &RequestInput{
		UserID:         "u1",
		Amount:         decimal.NewFromInt(100),
		DestinationKey: "ana@example.com",
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance = %s, want untouched 50", env.userBalance(t))
	}
	if atomic.LoadInt64(&env.ledger.burns) != 0 {
		t.Error("burn attempted for a rejected withdrawal")
	}
}

func TestRequestEnforcesTenantLimits(t *testing.T) {
	env := setupEnv(t, 1000)
	env.tenant.Withdrawal = domain.WithdrawalConfig{MinAmount: "50", MaxAmount: "500"}
	ctx := context.Background()

	if _, err := env.svc.Request(ctx, env.tenant, &RequestInput{
		UserID: "u1", Amount: decimal.NewFromInt(10), DestinationKey: "k",
	}); err == nil {
		t.Error("expected rejection below tenant minimum")
	}
	if _, err := env.svc.Request(ctx, env.tenant, &RequestInput{
		UserID: "u1", Amount: decimal.NewFromInt(900), DestinationKey: "k",
	}); err == nil {
		t.Error("expected rejection above tenant maximum")
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance = %s, want untouched 1000", env.userBalance(t))
	}
}

func TestBurnFailureRestoresBalance(t *testing.T) {
	env := setupEnv(t, 200)
	env.ledger.burnErr = errors.New("ledger unavailable")
	ctx := context.Background()

	_, err := env.svc.Request(ctx, env.tenant, &RequestInput{
		UserID:         "u1",
		Amount:         decimal.NewFromInt(100),
		DestinationKey: "ana@example.com",
	})
	if err == nil {
		t.Fatal("expected burn failure to surface")
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(200)) {
		t.Errorf("balance = %s, want restored 200", env.userBalance(t))
	}
	if env.payout.calls != 0 {
		t.Error("payout attempted after failed burn")
	}
}

func TestPayoutFailureReversesWithdrawal(t *testing.T) {
	env := setupEnv(t, 200)
	env.payout.err = errors.New("transfer refused")
	ctx := context.Background()

	result, err := env.svc.Request(ctx, env.tenant, &RequestInput{
		UserID:         "u1",
		Amount:         decimal.NewFromInt(100),
		DestinationKey: "ana@example.com",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if result.Status != domain.WithdrawalStatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if result.ReversalTxHash == "" {
		t.Error("reversal did not record the compensating mint hash")
	}
	if result.FailureReason == "" {
		t.Error("missing failure reason")
	}
	// Burned then re-minted the full amount, fee included.
	if atomic.LoadInt64(&env.ledger.mints) != 1 {
		t.Errorf("mints = %d, want 1 compensating mint", env.ledger.mints)
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(200)) {
		t.Errorf("balance = %s, want made whole at 200", env.userBalance(t))
	}
}

func TestCancelPendingRestoresBalance(t *testing.T) {
	env := setupEnv(t, 100)
	ctx := context.Background()

	// Simulate a withdrawal parked in pending, balance already debited.
	if ok, err := env.stores.Users.Debit(ctx, "u1", decimal.NewFromInt(100)); err != nil || !ok {
		t.Fatalf("debit: ok=%v err=%v", ok, err)
	}
	pending := &domain.Withdrawal{
		ID:             "w1",
		UserID:         "u1",
		Amount:         decimal.NewFromInt(100),
		Fee:            decimal.NewFromInt(2),
		NetAmount:      decimal.NewFromInt(98),
		DestinationKey: "ana@example.com",
		Status:         domain.WithdrawalStatusPending,
	}
	if err := env.stores.Withdrawals.Create(ctx, pending); err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := env.svc.Cancel(ctx, env.tenant, "w1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.WithdrawalStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want restored 100", env.userBalance(t))
	}

	// Cancelling again is a state error, not a second refund.
	if _, err := env.svc.Cancel(ctx, env.tenant, "w1"); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("err = %v, want ErrInvalidStateTransition", err)
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s after double cancel, want 100", env.userBalance(t))
	}
}

func seedProcessing(t *testing.T, env *testEnv, id string, amount int64) {
	t.Helper()
	w := &domain.Withdrawal{
		ID:             id,
		UserID:         "u1",
		Amount:         decimal.NewFromInt(amount),
		Fee:            decimal.NewFromInt(2),
		NetAmount:      decimal.NewFromInt(amount - 2),
		DestinationKey: "ana@example.com",
		Status:         domain.WithdrawalStatusProcessing,
		BurnTxHash:     "0xburn",
	}
	if err := env.stores.Withdrawals.Create(context.Background(), w); err != nil {
		t.Fatalf("seed processing withdrawal: %v", err)
	}
}

func TestConcurrentReversalsMintAtMostOnce(t *testing.T) {
	env := setupEnv(t, 0)
	ctx := context.Background()
	seedProcessing(t, env, "w1", 100)

	env.ledger.mintBusy = make(chan struct{}, 1)
	env.ledger.mintHold = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.ReverseWithdrawal(ctx, env.tenant, "w1", "payout failed")
		done <- err
	}()
	<-env.ledger.mintBusy

	// A double submit arrives while the first reversal holds the claim and
	// its mint is still in flight. It must lose the claim, not mint again.
	if _, err := env.svc.ReverseWithdrawal(ctx, env.tenant, "w1", "double submit"); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("err = %v, want ErrInvalidStateTransition", err)
	}

	close(env.ledger.mintHold)
	if err := <-done; err != nil {
		t.Fatalf("first reversal: %v", err)
	}

	if got := atomic.LoadInt64(&env.ledger.mints); got != 1 {
		t.Errorf("compensating mints = %d, want exactly 1", got)
	}
	final, err := env.stores.Withdrawals.GetByID(ctx, "w1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if final.Status != domain.WithdrawalStatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want credited exactly once to 100", env.userBalance(t))
	}
}

func TestReversalMintFailureReleasesClaim(t *testing.T) {
	env := setupEnv(t, 0)
	ctx := context.Background()
	seedProcessing(t, env, "w1", 100)

	env.ledger.mintErr = errors.New("ledger unavailable")
	if _, err := env.svc.ReverseWithdrawal(ctx, env.tenant, "w1", "payout failed"); err == nil {
		t.Fatal("expected mint failure to surface")
	}

	// The claim is handed back so the reversal can be retried.
	w, err := env.stores.Withdrawals.GetByID(ctx, "w1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if w.Status != domain.WithdrawalStatusProcessing {
		t.Fatalf("status = %s, want processing after released claim", w.Status)
	}

	env.ledger.mintErr = nil
	result, err := env.svc.ReverseWithdrawal(ctx, env.tenant, "w1", "retry")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.Status != domain.WithdrawalStatusFailed || result.ReversalTxHash == "" {
		t.Errorf("result = %+v, want failed with reversal hash", result)
	}
	if !env.userBalance(t).Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", env.userBalance(t))
	}
}

func TestReverseRequiresProcessingStatus(t *testing.T) {
	env := setupEnv(t, 100)
	ctx := context.Background()

	pending := &domain.Withdrawal{
		ID:             "w1",
		UserID:         "u1",
		Amount:         decimal.NewFromInt(50),
		Fee:            decimal.NewFromInt(1),
		NetAmount:      decimal.NewFromInt(49),
		DestinationKey: "ana@example.com",
		Status:         domain.WithdrawalStatusPending,
	}
	if err := env.stores.Withdrawals.Create(ctx, pending); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.svc.ReverseWithdrawal(ctx, env.tenant, "w1", "test"); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("err = %v, want ErrInvalidStateTransition", err)
	}
}
