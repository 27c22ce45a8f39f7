package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const owner ledger.OwnerID = "owner-1"

func newTestService(t *testing.T) (*ledger.Service, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	return ledger.NewService(mem), mem
}

func addLocal(t *testing.T, svc *ledger.Service, name string) ledger.Customer {
	t.Helper()
	c, err := svc.AddLocalCustomer(context.Background(), owner, ledger.LocalCustomerInput{DisplayName: name})
	require.NoError(t, err)
	return c
}

func record(t *testing.T, svc *ledger.Service, link ledger.LinkID, dir ledger.Direction, amount string, cur ledger.Currency, commission string) ledger.RecordResult {
	t.Helper()
	in := ledger.MovementInput{
		OwnerID:        owner,
		CustomerLinkID: link,
		Direction:      dir,
		Amount:         dec(amount),
		Currency:       cur,
	}
	if commission != "" {
		c := dec(commission)
		in.Commission = &c
	}
	res, err := svc.RecordMovement(context.Background(), in)
	require.NoError(t, err)
	return res
}

func countMovements(t *testing.T, s ledger.Store) int {
	t.Helper()
	all, err := s.ListMovements(context.Background(), ledger.MovementQuery{OwnerID: owner})
	require.NoError(t, err)
	return len(all)
}

// failingStore fails the Nth call to InsertMovement (1-based).
type failingStore struct {
	ledger.Store
	failOn int
	calls  int
}

func (f *failingStore) InsertMovement(ctx context.Context, d ledger.MovementDraft) (ledger.Movement, error) {
	f.calls++
	if f.calls == f.failOn {
		return ledger.Movement{}, errors.New("connection reset")
	}
	return f.Store.InsertMovement(ctx, d)
}

// failingTxStore injects the same failure inside transactions.
type failingTxStore struct {
	*failingStore
	tx ledger.TxStore
}

func (f *failingTxStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.tx.WithTx(ctx, func(inner ledger.Store) error {
		return fn(&failingStore{Store: inner, failOn: f.failOn - f.calls, calls: 0})
	})
}

// recordingNotifier captures change signals.
type recordingNotifier struct {
	links []ledger.LinkID
}

func (r *recordingNotifier) Changed(_ context.Context, _ ledger.OwnerID, links ...ledger.LinkID) {
	r.links = append(r.links, links...)
}

// =============================================================================
// LOCAL CUSTOMERS AND RESOLUTION
// =============================================================================

func TestAddLocalCustomer_SequentialNumbers(t *testing.T) {
	// GIVEN: A fresh owner
	// WHEN: Creating three local customers (and the profit-and-loss account in between)
	// THEN: They are numbered L-0001, L-0002, L-0003

	svc, _ := newTestService(t)
	ctx := context.Background()

	a := addLocal(t, svc, "Ahmed")
	_, err := svc.ProfitLossCustomer(ctx, owner)
	require.NoError(t, err)
	b := addLocal(t, svc, "Salem")
	c := addLocal(t, svc, "Huda")

	assert.Equal(t, "L-0001", a.AccountNumberDisplay)
	assert.Equal(t, "L-0002", b.AccountNumberDisplay)
	assert.Equal(t, "L-0003", c.AccountNumberDisplay)
	assert.Equal(t, ledger.KindLocal, a.Kind)
}

func TestAddLocalCustomer_RequiresName(t *testing.T) {
	svc, mem := newTestService(t)

	_, err := svc.AddLocalCustomer(context.Background(), owner, ledger.LocalCustomerInput{DisplayName: "   "})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	links, err := mem.ListLinks(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestResolver_LocalAndRegistered(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProfile(ctx, ledger.ProfileDraft{Username: "@Mona_K", FullName: "Mona Kassem"})
	require.NoError(t, err)

	reg, err := svc.AddRegisteredCustomer(ctx, owner, p.ID)
	require.NoError(t, err)
	local, err := svc.AddLocalCustomer(ctx, owner, ledger.LocalCustomerInput{DisplayName: "Ahmed", Phone: "777123456"})
	require.NoError(t, err)

	got, err := svc.Resolver().Resolve(ctx, owner, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mona Kassem", got.Name)
	assert.Equal(t, "@mona_k", got.SecondaryLabel)
	assert.Equal(t, "1", got.AccountNumberDisplay)
	assert.Equal(t, ledger.KindRegistered, got.Kind)

	got, err = svc.Resolver().Resolve(ctx, owner, local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ahmed", got.Name)
	assert.Equal(t, "777123456", got.SecondaryLabel)
	assert.Equal(t, "L-0001", got.AccountNumberDisplay)

	_, err = svc.Resolver().Resolve(ctx, "someone-else", local.ID)
	assert.True(t, ledger.IsNotFound(err), "links are private to their owner")
}

func TestResolveAll_SkipsDanglingLinks(t *testing.T) {
	// GIVEN: One valid local link and one pointing at a missing local row
	// WHEN: Resolving the list
	// THEN: The dangling link is skipped, not fatal

	svc, _ := newTestService(t)
	good := addLocal(t, svc, "Ahmed")

	links := []ledger.CustomerLink{
		{ID: good.ID, OwnerID: owner, Kind: ledger.KindLocal, LocalCustomerID: mustLocalID(t, svc, good.ID)},
		{ID: "dangling", OwnerID: owner, Kind: ledger.KindLocal, LocalCustomerID: "missing"},
		{ID: "dangling-reg", OwnerID: owner, Kind: ledger.KindRegistered, RegisteredUserID: "missing"},
	}

	customers, err := svc.Resolver().ResolveAll(context.Background(), owner, links)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, good.ID, customers[0].ID)
}

func mustLocalID(t *testing.T, svc *ledger.Service, id ledger.LinkID) ledger.LocalCustomerID {
	t.Helper()
	link, err := svc.Store().GetLink(context.Background(), owner, id)
	require.NoError(t, err)
	return link.LocalCustomerID
}

// =============================================================================
// REGISTERED CUSTOMERS, SEARCH, SELF AND DUPLICATES
// =============================================================================

func TestAddRegisteredCustomer_DuplicateRejected(t *testing.T) {
	// GIVEN: Owner already linked profile P
	// WHEN: Adding P again
	// THEN: ErrDuplicateCustomer, and no second link row

	svc, mem := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProfile(ctx, ledger.ProfileDraft{Username: "mona", FullName: "Mona"})
	require.NoError(t, err)

	_, err = svc.AddRegisteredCustomer(ctx, owner, p.ID)
	require.NoError(t, err)
	_, err = svc.AddRegisteredCustomer(ctx, owner, p.ID)
	assert.ErrorIs(t, err, ledger.ErrDuplicateCustomer)

	links, err := mem.ListLinks(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestAddRegisteredCustomer_SelfRejected(t *testing.T) {
	// GIVEN: The owner's own profile
	// WHEN: Searching for it or adding it
	// THEN: ErrCannotAddSelf, nothing inserted

	svc, mem := newTestService(t)
	ctx := context.Background()
	me, err := svc.CreateProfile(ctx, ledger.ProfileDraft{Username: "shopkeeper", FullName: "Me"})
	require.NoError(t, err)
	self := ledger.OwnerID(me.ID)

	_, err = svc.AddRegisteredCustomer(ctx, self, me.ID)
	assert.ErrorIs(t, err, ledger.ErrCannotAddSelf)

	_, err = svc.SearchProfiles(ctx, self, "shopkeeper")
	assert.ErrorIs(t, err, ledger.ErrCannotAddSelf)
	_, err = svc.SearchProfiles(ctx, self, "1")
	assert.ErrorIs(t, err, ledger.ErrCannotAddSelf)

	links, err := mem.ListLinks(ctx, self)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSearchProfiles_DigitsMatchAccountNumber(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, u := range []string{"ali", "alia", "omar"} {
		_, err := svc.CreateProfile(ctx, ledger.ProfileDraft{Username: u, FullName: u})
		require.NoError(t, err)
	}

	byNumber, err := svc.SearchProfiles(ctx, owner, "3")
	require.NoError(t, err)
	require.Len(t, byNumber, 1)
	assert.Equal(t, "omar", byNumber[0].Username)

	byName, err := svc.SearchProfiles(ctx, owner, "ALI")
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	_, err = svc.SearchProfiles(ctx, owner, " ")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.CreateProfile(ctx, ledger.ProfileDraft{Username: "Omar", FullName: "x"})
	assert.ErrorIs(t, err, ledger.ErrUsernameTaken)
}

// =============================================================================
// COMMISSION SPLITTER
// =============================================================================

func TestRecordMovement_CommissionPair(t *testing.T) {
	// GIVEN: An incoming 100 USD with commission 15
	// WHEN: Recording it
	// THEN: Exactly two movements; combined = 100, net = 85

	svc, mem := newTestService(t)
	ctx := context.Background()
	ahmed := addLocal(t, svc, "Ahmed")

	res := record(t, svc, ahmed.ID, ledger.Incoming, "100", ledger.USD, "15")
	require.NotNil(t, res.Commission)
	assert.Equal(t, 2, countMovements(t, mem))

	c := *res.Commission
	assert.True(t, c.IsCommission)
	assert.Equal(t, res.Primary.ID, c.RelatedCommissionID)
	assert.Equal(t, ledger.USD, c.Currency)
	assert.True(t, c.Delta.Equal(dec("15")))
	assert.Equal(t, "عمولة من Ahmed", c.Note)

	pl, err := svc.ProfitLossCustomer(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, pl.ID, c.CustomerLinkID)

	all := []ledger.Movement{res.Primary, c}
	assert.True(t, ledger.CombinedAmount(res.Primary, all).Equal(dec("100")))
	assert.True(t, ledger.NetAmount(res.Primary, all).Equal(dec("85")))
}

func TestRecordMovement_CommissionRejections(t *testing.T) {
	// GIVEN: Invalid commission inputs
	// WHEN: Recording
	// THEN: ValidationError and zero rows written

	svc, mem := newTestService(t)
	ahmed := addLocal(t, svc, "Ahmed")

	cases := []struct {
		name       string
		dir        ledger.Direction
		amount     string
		commission string
	}{
		{"commission equal to amount", ledger.Incoming, "100", "100"},
		{"commission above amount", ledger.Incoming, "100", "150"},
		{"zero commission", ledger.Incoming, "100", "0"},
		{"negative commission", ledger.Incoming, "100", "-1"},
		{"commission on outgoing", ledger.Outgoing, "100", "10"},
		{"zero amount", ledger.Incoming, "0", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := ledger.MovementInput{
				OwnerID: owner, CustomerLinkID: ahmed.ID, Direction: tc.dir,
				Amount: dec(tc.amount), Currency: ledger.USD,
			}
			if tc.commission != "" {
				c := dec(tc.commission)
				in.Commission = &c
			}
			_, err := svc.RecordMovement(context.Background(), in)
			assert.ErrorIs(t, err, ledger.ErrValidation)
			assert.Equal(t, 0, countMovements(t, mem))
		})
	}
}

func TestRecordMovement_UnknownCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RecordMovement(context.Background(), ledger.MovementInput{
		OwnerID: owner, CustomerLinkID: "nope", Direction: ledger.Incoming,
		Amount: dec("1"), Currency: ledger.USD,
	})
	assert.True(t, ledger.IsNotFound(err))
}

func TestRecordMovement_PartialWrite_TransactionRollsBack(t *testing.T) {
	// GIVEN: A transactional store whose second insert fails
	// WHEN: Recording a movement with commission
	// THEN: PartialWriteError{RolledBack: true} and no rows remain

	mem := store.NewTxMemory()
	seed := ledger.NewService(mem)
	ahmed := addLocal(t, seed, "Ahmed")

	fs := &failingStore{Store: mem, failOn: 2}
	svc := ledger.NewService(&failingTxStore{failingStore: fs, tx: mem})

	c := dec("5")
	_, err := svc.RecordMovement(context.Background(), ledger.MovementInput{
		OwnerID: owner, CustomerLinkID: ahmed.ID, Direction: ledger.Incoming,
		Amount: dec("50"), Currency: ledger.USD, Commission: &c,
	})

	var pw *ledger.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.True(t, pw.RolledBack)
	assert.ErrorIs(t, err, ledger.ErrPartialWrite)
	assert.Equal(t, 0, countMovements(t, mem))
}

func TestRecordMovement_PartialWrite_Compensates(t *testing.T) {
	// GIVEN: A store without transactions whose second insert fails
	// WHEN: Recording a movement with commission
	// THEN: The primary is deleted again and the caller is told so

	mem := store.NewMemory()
	seed := ledger.NewService(mem)
	ahmed := addLocal(t, seed, "Ahmed")

	svc := ledger.NewService(&failingStore{Store: mem, failOn: 2})
	c := dec("5")
	_, err := svc.RecordMovement(context.Background(), ledger.MovementInput{
		OwnerID: owner, CustomerLinkID: ahmed.ID, Direction: ledger.Incoming,
		Amount: dec("50"), Currency: ledger.USD, Commission: &c,
	})

	var pw *ledger.PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.True(t, pw.RolledBack)
	assert.NotEmpty(t, pw.PrimaryID)
	assert.Equal(t, 0, countMovements(t, mem))
}

func TestRecordMovement_NotifiesBothLinks(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := ledger.NewService(store.NewTxMemory(), ledger.WithNotifier(notifier))
	ahmed := addLocal(t, svc, "Ahmed")
	notifier.links = nil

	res := record(t, svc, ahmed.ID, ledger.Incoming, "100", ledger.YER, "10")
	assert.Equal(t, []ledger.LinkID{ahmed.ID, res.Commission.CustomerLinkID}, notifier.links)
}

// =============================================================================
// PROFIT-AND-LOSS ISOLATION
// =============================================================================

func TestProfitLoss_Isolation(t *testing.T) {
	// GIVEN: One ordinary incoming 100 and one incoming with commission 15
	// WHEN: Loading the profit-and-loss and the customer's detail views
	// THEN: P&L shows only the 15 commission; the customer shows only its
	//       ordinary movements; nothing appears in both

	svc, _ := newTestService(t)
	ctx := context.Background()
	ahmed := addLocal(t, svc, "Ahmed")
	other := addLocal(t, svc, "Salem")

	record(t, svc, other.ID, ledger.Incoming, "100", ledger.USD, "")
	res := record(t, svc, ahmed.ID, ledger.Incoming, "200", ledger.USD, "15")

	pl, err := svc.ProfitLossCustomer(ctx, owner)
	require.NoError(t, err)
	assert.True(t, pl.IsProfitLoss)
	assert.Equal(t, ledger.ProfitLossName, pl.Name)

	plView, err := svc.LoadCustomerView(ctx, owner, pl.ID, ledger.ViewOptions{})
	require.NoError(t, err)
	require.Len(t, plView.Lines, 1)
	assert.True(t, plView.Lines[0].IsCommission)
	assert.True(t, plView.Lines[0].Amount().Equal(dec("15")))

	ahmedView, err := svc.LoadCustomerView(ctx, owner, ahmed.ID, ledger.ViewOptions{})
	require.NoError(t, err)
	require.Len(t, ahmedView.Lines, 1)
	assert.Equal(t, res.Primary.ID, ahmedView.Lines[0].ID)
	assert.False(t, ahmedView.Lines[0].IsCommission)
	assert.True(t, ahmedView.Lines[0].Combined.Equal(dec("200")))
	assert.True(t, ahmedView.Lines[0].Net.Equal(dec("185")))
	assert.NotEqual(t, plView.Lines[0].ID, ahmedView.Lines[0].ID)
}

func TestRecordMovement_OnProfitLossRejected(t *testing.T) {
	svc, _ := newTestService(t)
	pl, err := svc.ProfitLossCustomer(context.Background(), owner)
	require.NoError(t, err)

	_, err = svc.RecordMovement(context.Background(), ledger.MovementInput{
		OwnerID: owner, CustomerLinkID: pl.ID, Direction: ledger.Incoming,
		Amount: dec("10"), Currency: ledger.USD,
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestProfitLoss_GetOrCreateIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.ProfitLossCustomer(ctx, owner)
	require.NoError(t, err)
	b, err := svc.ProfitLossCustomer(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Empty(t, a.AccountNumberDisplay)
}

// =============================================================================
// END-TO-END
// =============================================================================

func TestEndToEnd_AhmedRemittance(t *testing.T) {
	// GIVEN: Owner creates local customer "Ahmed"
	// WHEN: +500 USD, -200 USD, +1000 YER with 50 YER commission
	// THEN: Ahmed USD=300, YER=1000; P&L YER=50; combined=1000, net=950

	svc, _ := newTestService(t)
	ctx := context.Background()
	ahmed := addLocal(t, svc, "Ahmed")

	record(t, svc, ahmed.ID, ledger.Incoming, "500", ledger.USD, "")
	view, err := svc.LoadCustomerView(ctx, owner, ahmed.ID, ledger.ViewOptions{})
	require.NoError(t, err)
	require.Len(t, view.Balances, 1)
	assert.True(t, view.Balances[0].Value.Equal(dec("500")))

	record(t, svc, ahmed.ID, ledger.Outgoing, "200", ledger.USD, "")
	yer := record(t, svc, ahmed.ID, ledger.Incoming, "1000", ledger.YER, "50")

	view, err = svc.LoadCustomerView(ctx, owner, ahmed.ID, ledger.ViewOptions{})
	require.NoError(t, err)
	require.Len(t, view.Balances, 2)
	assert.Equal(t, ledger.USD, view.Balances[0].Currency)
	assert.True(t, view.Balances[0].Value.Equal(dec("300")))
	assert.Equal(t, ledger.YER, view.Balances[1].Currency)
	assert.True(t, view.Balances[1].Value.Equal(dec("1000")))

	pl, err := svc.ProfitLossCustomer(ctx, owner)
	require.NoError(t, err)
	plView, err := svc.LoadCustomerView(ctx, owner, pl.ID, ledger.ViewOptions{})
	require.NoError(t, err)
	require.Len(t, plView.Balances, 1)
	assert.Equal(t, ledger.YER, plView.Balances[0].Currency)
	assert.True(t, plView.Balances[0].Value.Equal(dec("50")))

	var line ledger.MovementLine
	for _, l := range view.Lines {
		if l.ID == yer.Primary.ID {
			line = l
		}
	}
	assert.True(t, line.Combined.Equal(dec("1000")))
	assert.True(t, line.Net.Equal(dec("950")))

	list, err := svc.LoadCustomerList(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, row := range list {
		if row.Customer.ID == ahmed.ID {
			require.Len(t, row.Balances, 2)
			assert.Equal(t, ledger.YER, row.Balances[0].Currency, "list view sorts by magnitude")
		}
	}

	report, err := svc.LoadOwnerReport(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CustomerCount)
	assert.Equal(t, 4, report.MovementCount)
	require.Len(t, report.Profit, 1)
	assert.True(t, report.Profit[0].Incoming.Equal(dec("50")))
}

func TestService_ClockUsedForCreatedAt(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	mem := store.NewTxMemory()
	svc := ledger.NewService(mem, ledger.WithClock(func() time.Time { return fixed }))
	ahmed := addLocal(t, svc, "Ahmed")

	res := record(t, svc, ahmed.ID, ledger.Incoming, "1", ledger.USD, "")
	assert.True(t, res.Primary.CreatedAt.Equal(fixed))
	assert.Equal(t, int64(1), res.Primary.Number)
}
