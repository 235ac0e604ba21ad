package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/usage_billing/internal/clock"
	"github.com/congo-pay/usage_billing/internal/customer"
	"github.com/congo-pay/usage_billing/internal/logging"
	"github.com/congo-pay/usage_billing/internal/notification"
	"github.com/congo-pay/usage_billing/internal/store"
	"github.com/congo-pay/usage_billing/internal/usage"
)

var fixtureEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
	return nil
}

func (n *recordingNotifier) sent() []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Message(nil), n.messages...)
}

type fixture struct {
	ctx      context.Context
	store    store.Store
	mem      *store.Memory
	clock    *clock.Fake
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	return newFixtureWithStore(t, mem, mem)
}

func newFixtureWithStore(t *testing.T, st store.Store, mem *store.Memory) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    st,
		mem:      mem,
		clock:    clock.NewFake(fixtureEpoch),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(st, logging.Discard(), WithClock(f.clock), WithNotifier(f.notifier))
	return f
}

func (f *fixture) customer(t *testing.T, openingCents int64) string {
	t.Helper()
	view, err := f.svc.CreateCustomer(f.ctx, CustomerInput{Name: "customer " + uuid.NewString()[:8], OpeningBalanceCents: openingCents})
	require.NoError(t, err)
	return view.ID
}

// customerWithoutWallet inserts a customer row only.
func (f *fixture) customerWithoutWallet(t *testing.T) string {
	t.Helper()
	id := uuid.NewString()
	err := f.mem.InTx(f.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Customers().Create(ctx, customer.Customer{ID: id, Name: "walletless", CreatedAt: f.clock.Now()})
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) product(t *testing.T, priceCents int64) string {
	t.Helper()
	p, err := f.svc.CreateProduct(f.ctx, ProductInput{Name: "product " + uuid.NewString()[:8], UnitPriceCents: priceCents})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) use(t *testing.T, customerID, productID string, units int64) usage.View {
	t.Helper()
	f.clock.Advance(time.Second)
	view, err := f.svc.SubmitUsage(f.ctx, UsageInput{CustomerID: customerID, ProductID: productID, Units: units})
	require.NoError(t, err)
	return view
}

func (f *fixture) balance(t *testing.T, customerID string) int64 {
	t.Helper()
	view, err := f.svc.GetBalance(f.ctx, customerID)
	require.NoError(t, err)
	return view.BalanceCents
}

// requireConsistent asserts balance == sum(ledger) for the customer's wallet.
func (f *fixture) requireConsistent(t *testing.T, customerID string) LedgerView {
	t.Helper()
	view, err := f.svc.WalletLedger(f.ctx, customerID, 1000)
	require.NoError(t, err)
	require.Truef(t, view.Consistent, "balance %d != ledger sum %d", view.BalanceCents, view.LedgerSumCents)
	return view
}
