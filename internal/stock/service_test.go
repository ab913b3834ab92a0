package stock

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"easymanager/internal/apperrors"
	"easymanager/internal/models"
	"easymanager/internal/realtime"
	"easymanager/internal/store"
	"easymanager/internal/store/memstore"
)

var testNow = time.Date(2024, time.June, 1, 10, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	checks []string
}

func (n *recordingNotifier) CheckStockLevel(p models.Product, actingUserEmail string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.checks = append(n.checks, p.ProductID+"|"+actingUserEmail)
	return true
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

type fixture struct {
	repo      Repository
	mem       *memstore.Store
	svc       *Service
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newFixture(t *testing.T, opts ...memstore.Option) *fixture {
	t.Helper()
	mem := memstore.New(opts...)
	return newFixtureWithRepo(t, mem, mem)
}

func newFixtureWithRepo(t *testing.T, repo Repository, mem *memstore.Store) *fixture {
	t.Helper()
	f := &fixture{repo: repo, mem: mem, notifier: &recordingNotifier{}, publisher: &recordingPublisher{}}
	f.svc = NewService(repo, f.notifier, f.publisher, zap.NewNop(),
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC),
	)
	return f
}

func (f *fixture) product(t *testing.T, productID string, price float64, stock, threshold int) models.Product {
	t.Helper()
	p := &models.Product{
		ProductID:         productID,
		Name:              "Product " + productID,
		Category:          "Grocery",
		Price:             price,
		Stock:             stock,
		LowStockThreshold: threshold,
		CreatedAt:         testNow,
	}
	require.NoError(t, f.mem.CreateProduct(context.Background(), p))
	return *p
}

func (f *fixture) stockOf(t *testing.T, id primitive.ObjectID) int {
	t.Helper()
	p, err := f.mem.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) billCount(t *testing.T) int {
	t.Helper()
	bills, err := f.mem.ListBills(context.Background())
	require.NoError(t, err)
	return len(bills)
}

func billInput(lines ...LineInput) BillInput {
	return BillInput{Customer: "Walk-in", PaymentMethod: models.PaymentCash, Products: lines}
}

func lineOf(p models.Product, qty int) LineInput {
	return LineInput{ProductID: p.ID.Hex(), Quantity: qty}
}

func TestCreateBill_Success(t *testing.T) {
	f := newFixture(t)
	milk := f.product(t, "P-1", 2.5, 10, 3)
	bread := f.product(t, "P-2", 1.1, 5, 4)

	res, err := f.svc.CreateBill(context.Background(), billInput(lineOf(milk, 2), lineOf(bread, 1), lineOf(milk, 1)), "clerk@shop.test")
	require.NoError(t, err)

	bill := res.Bill
	assert.Equal(t, "BILL-240601-001", bill.BillNo)
	assert.Equal(t, models.BillPending, bill.Status)
	require.Len(t, bill.Products, 3)
	assert.Equal(t, "Product P-1", bill.Products[0].Name)
	assert.Equal(t, 5.0, bill.Products[0].Total)

	var sum float64
	for _, l := range bill.Products {
		sum += l.Total
	}
	assert.InDelta(t, sum, bill.Amount, 1e-9)
	assert.InDelta(t, 8.6, bill.Amount, 1e-9)

	assert.Equal(t, 7, f.stockOf(t, milk.ID))
	assert.Equal(t, 4, f.stockOf(t, bread.ID))

	require.Len(t, res.LowStockAlerts, 1)
	assert.Equal(t, LowStockAlert{ProductName: "Product P-2", ProductID: "P-2", CurrentStock: 4, Threshold: 4}, res.LowStockAlerts[0])
	assert.Equal(t, []string{"P-2|clerk@shop.test"}, f.notifier.checks)

	assert.Equal(t, []string{
		realtime.EventProductUpdated,
		realtime.EventProductUpdated,
		realtime.EventBillUpdated,
	}, f.publisher.names())
	assert.Equal(t, realtime.ChangeAdded, f.publisher.events[2].Payload.(realtime.BillChange).Type)

	second, err := f.svc.CreateBill(context.Background(), billInput(lineOf(milk, 1)), "")
	require.NoError(t, err)
	assert.Equal(t, "BILL-240601-002", second.Bill.BillNo)
}

func TestCreateBill_PricesComeFromCatalog(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 3.25, 10, 0)

	res, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 3)), "")
	require.NoError(t, err)
	assert.Equal(t, 3.25, res.Bill.Products[0].Price)
	assert.Equal(t, 9.75, res.Bill.Amount)
}

func TestCreateBill_ValidationHappensBeforeMutation(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 1, 10, 0)

	cases := map[string]BillInput{
		"missing customer":   {PaymentMethod: models.PaymentCash, Products: []LineInput{lineOf(p, 1)}},
		"bad payment method": {Customer: "A", PaymentMethod: "cheque", Products: []LineInput{lineOf(p, 1)}},
		"bad status":         {Customer: "A", PaymentMethod: models.PaymentCard, Status: "void", Products: []LineInput{lineOf(p, 1)}},
		"no lines":           {Customer: "A", PaymentMethod: models.PaymentCard},
		"zero quantity":      billInput(lineOf(p, 0)),
		"negative quantity":  billInput(lineOf(p, 1), lineOf(p, -2)),
		"bad product id":     billInput(LineInput{ProductID: "nope", Quantity: 1}),
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateBill(context.Background(), in, "")
			ve, ok := apperrors.IsValidationError(err)
			require.True(t, ok, "got %v", err)
			assert.NotEmpty(t, ve.Details)
		})
	}

	assert.Equal(t, 10, f.stockOf(t, p.ID))
	assert.Equal(t, 0, f.billCount(t))
	assert.Empty(t, f.publisher.events)
}

func TestCreateBill_SummedQuantitiesExceedStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 1, 5, 0)

	_, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 3), lineOf(p, 3)), "")

	stockErr, ok := IsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, f.stockOf(t, p.ID))
}

func TestCreateBill_SecondLineInsufficientChangesNothing(t *testing.T) {
	f := newFixture(t)
	first := f.product(t, "P-1", 1, 10, 0)
	second := f.product(t, "P-2", 1, 2, 0)

	_, err := f.svc.CreateBill(context.Background(), billInput(lineOf(first, 4), lineOf(second, 3)), "")

	stockErr, ok := IsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, "Product P-2", stockErr.Name)
	assert.Equal(t, "Insufficient stock for Product P-2. Available: 2", err.Error())
	assert.Equal(t, 10, f.stockOf(t, first.ID))
	assert.Equal(t, 2, f.stockOf(t, second.ID))
	assert.Equal(t, 0, f.billCount(t))
	assert.Empty(t, f.publisher.events)
}

func TestCreateBill_ProductNotFound(t *testing.T) {
	f := newFixture(t)
	missing := primitive.NewObjectID()

	_, err := f.svc.CreateBill(context.Background(), billInput(LineInput{ProductID: missing.Hex(), Quantity: 1}), "")

	nf, ok := IsProductNotFound(err)
	require.True(t, ok)
	assert.Equal(t, missing.Hex(), nf.ProductID)
}

func TestCreateBill_DuplicateBillNo(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 1, 10, 0)

	in := billInput(lineOf(p, 1))
	in.BillNo = "MANUAL-1"
	_, err := f.svc.CreateBill(context.Background(), in, "")
	require.NoError(t, err)

	_, err = f.svc.CreateBill(context.Background(), in, "")
	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok)
	assert.Equal(t, 9, f.stockOf(t, p.ID))
}

// racingRepo makes the conditional decrement of one product fail as if a
// concurrent sale took the stock after pre-validation.
type racingRepo struct {
	*memstore.Store
	loseRaceOn primitive.ObjectID
	failInsert bool
}

func (r *racingRepo) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (models.Product, error) {
	if id == r.loseRaceOn {
		return models.Product{}, store.ErrInsufficientStock
	}
	return r.Store.DecrementStock(ctx, id, qty)
}

func (r *racingRepo) InsertBill(ctx context.Context, b *models.Bill) error {
	if r.failInsert {
		return errors.New("write concern timeout")
	}
	return r.Store.InsertBill(ctx, b)
}

func TestCreateBill_AbortsAllWhenCommitFails(t *testing.T) {
	modes := map[string][]memstore.Option{
		"transactional": nil,
		"compensating":  {memstore.WithoutTransactions()},
	}

	for name, opts := range modes {
		t.Run(name+"/lost race", func(t *testing.T) {
			mem := memstore.New(opts...)
			repo := &racingRepo{Store: mem}
			f := newFixtureWithRepo(t, repo, mem)
			first := f.product(t, "P-1", 1, 10, 0)
			second := f.product(t, "P-2", 1, 10, 0)
			repo.loseRaceOn = second.ID

			_, err := f.svc.CreateBill(context.Background(), billInput(lineOf(first, 4), lineOf(second, 1)), "")

			_, ok := IsInsufficientStock(err)
			require.True(t, ok)
			assert.Equal(t, 10, f.stockOf(t, first.ID))
			assert.Equal(t, 0, f.billCount(t))
		})

		t.Run(name+"/insert fails", func(t *testing.T) {
			mem := memstore.New(opts...)
			repo := &racingRepo{Store: mem, failInsert: true}
			f := newFixtureWithRepo(t, repo, mem)
			p := f.product(t, "P-1", 1, 10, 0)

			_, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 4)), "")

			require.Error(t, err)
			assert.Equal(t, 10, f.stockOf(t, p.ID))
		})
	}
}

func TestCreateBill_ConcurrentLastUnit(t *testing.T) {
	modes := map[string][]memstore.Option{
		"transactional": nil,
		"compensating":  {memstore.WithoutTransactions()},
	}

	for name, opts := range modes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, opts...)
			p := f.product(t, "P-1", 1, 1, 0)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				failures int
				others   []error
			)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 1)), "")
					mu.Lock()
					defer mu.Unlock()
					if _, ok := IsInsufficientStock(err); ok {
						failures++
					} else if err != nil {
						others = append(others, err)
					}
				}()
			}
			wg.Wait()

			assert.Empty(t, others)
			assert.Equal(t, 1, failures)
			assert.Equal(t, 0, f.stockOf(t, p.ID))
			assert.Equal(t, 1, f.billCount(t))
		})
	}
}

// slowBillRepo widens the window between reading a bill and rewriting it.
type slowBillRepo struct {
	*memstore.Store
	delay time.Duration
}

func (r *slowBillRepo) GetBill(ctx context.Context, id primitive.ObjectID) (models.Bill, error) {
	b, err := r.Store.GetBill(ctx, id)
	time.Sleep(r.delay)
	return b, err
}

func TestUpdateBill_ConcurrentUpdatesRestoreOnce(t *testing.T) {
	modes := map[string][]memstore.Option{
		"transactional": nil,
		"compensating":  {memstore.WithoutTransactions()},
	}

	for name, opts := range modes {
		t.Run(name, func(t *testing.T) {
			mem := memstore.New(opts...)
			f := newFixtureWithRepo(t, &slowBillRepo{Store: mem, delay: 50 * time.Millisecond}, mem)
			p := f.product(t, "P-1", 1, 10, 0)

			created, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 5)), "")
			require.NoError(t, err)
			require.Equal(t, 5, f.stockOf(t, p.ID))

			errs := make([]error, 2)
			var wg sync.WaitGroup
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = f.svc.UpdateBill(context.Background(), created.Bill.ID.Hex(), billInput(lineOf(p, 3)), "")
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				_, ok := apperrors.IsConflictError(err)
				assert.True(t, ok, "unexpected error: %v", err)
			}
			assert.GreaterOrEqual(t, succeeded, 1)
			assert.Equal(t, 7, f.stockOf(t, p.ID))

			stored, err := mem.GetBill(context.Background(), created.Bill.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, stored.Products[0].Quantity)
		})
	}
}

func TestUpdateBill_RacingDeleteKeepsStockBalanced(t *testing.T) {
	modes := map[string][]memstore.Option{
		"transactional": nil,
		"compensating":  {memstore.WithoutTransactions()},
	}

	for name, opts := range modes {
		t.Run(name, func(t *testing.T) {
			mem := memstore.New(opts...)
			f := newFixtureWithRepo(t, &slowBillRepo{Store: mem, delay: 50 * time.Millisecond}, mem)
			p := f.product(t, "P-1", 1, 10, 0)

			created, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 5)), "")
			require.NoError(t, err)
			billID := created.Bill.ID.Hex()

			var (
				wg                   sync.WaitGroup
				updateErr, deleteErr error
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, updateErr = f.svc.UpdateBill(context.Background(), billID, billInput(lineOf(p, 3)), "")
			}()
			go func() {
				defer wg.Done()
				deleteErr = f.svc.DeleteBill(context.Background(), billID)
			}()
			wg.Wait()

			for _, err := range []error{updateErr, deleteErr} {
				if err == nil || errors.Is(err, ErrBillNotFound) {
					continue
				}
				_, ok := apperrors.IsConflictError(err)
				assert.True(t, ok, "unexpected error: %v", err)
			}

			sold := 0
			if stored, err := mem.GetBill(context.Background(), created.Bill.ID); err == nil {
				sold = stored.Products[0].Quantity
			}
			assert.Equal(t, 10, f.stockOf(t, p.ID)+sold)
		})
	}
}

// flakyRestoreRepo fails returning stock to one product, as a dropped
// connection would.
type flakyRestoreRepo struct {
	*memstore.Store
	failOn primitive.ObjectID
}

func (r *flakyRestoreRepo) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int, restockedAt *time.Time) (models.Product, error) {
	if id == r.failOn && qty > 0 {
		return models.Product{}, errors.New("connection reset")
	}
	return r.Store.IncrementStock(ctx, id, qty, restockedAt)
}

func TestBillRestoreFailureAbortsUpdateAndDelete(t *testing.T) {
	modes := map[string][]memstore.Option{
		"transactional": nil,
		"compensating":  {memstore.WithoutTransactions()},
	}

	for name, opts := range modes {
		t.Run(name, func(t *testing.T) {
			mem := memstore.New(opts...)
			repo := &flakyRestoreRepo{Store: mem}
			f := newFixtureWithRepo(t, repo, mem)
			a := f.product(t, "P-1", 1, 10, 0)
			b := f.product(t, "P-2", 1, 10, 0)

			created, err := f.svc.CreateBill(context.Background(), billInput(lineOf(a, 2), lineOf(b, 5)), "")
			require.NoError(t, err)
			repo.failOn = b.ID

			_, err = f.svc.UpdateBill(context.Background(), created.Bill.ID.Hex(), billInput(lineOf(a, 1)), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "connection reset")
			assert.Equal(t, 8, f.stockOf(t, a.ID))
			assert.Equal(t, 5, f.stockOf(t, b.ID))

			err = f.svc.DeleteBill(context.Background(), created.Bill.ID.Hex())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "connection reset")
			assert.Equal(t, 8, f.stockOf(t, a.ID))
			assert.Equal(t, 5, f.stockOf(t, b.ID))

			stored, err := mem.GetBill(context.Background(), created.Bill.ID)
			require.NoError(t, err)
			require.Len(t, stored.Products, 2)
			assert.Equal(t, 5, stored.Products[1].Quantity)
		})
	}
}

func TestUpdateBill_IdenticalLinesNetZero(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 2, 10, 0)

	created, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 3)), "")
	require.NoError(t, err)
	require.Equal(t, 7, f.stockOf(t, p.ID))

	in := billInput(lineOf(p, 3))
	in.Status = models.BillPaid
	updated, err := f.svc.UpdateBill(context.Background(), created.Bill.ID.Hex(), in, "")
	require.NoError(t, err)

	assert.Equal(t, 7, f.stockOf(t, p.ID))
	assert.Equal(t, created.Bill.BillNo, updated.Bill.BillNo)
	assert.Equal(t, created.Bill.CreatedAt, updated.Bill.CreatedAt)
	assert.Equal(t, models.BillPaid, updated.Bill.Status)
}

func TestUpdateBill_CanUseRestoredStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 1, 5, 0)

	created, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 5)), "")
	require.NoError(t, err)

	_, err = f.svc.UpdateBill(context.Background(), created.Bill.ID.Hex(), billInput(lineOf(p, 4)), "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.stockOf(t, p.ID))
}

func TestUpdateBill_FailureLeavesEverythingUnchanged(t *testing.T) {
	modes := map[string][]memstore.Option{
		"transactional": nil,
		"compensating":  {memstore.WithoutTransactions()},
	}

	for name, opts := range modes {
		t.Run(name, func(t *testing.T) {
			mem := memstore.New(opts...)
			repo := &racingRepo{Store: mem}
			f := newFixtureWithRepo(t, repo, mem)
			a := f.product(t, "P-1", 1, 10, 0)
			b := f.product(t, "P-2", 1, 10, 0)

			created, err := f.svc.CreateBill(context.Background(), billInput(lineOf(a, 2)), "")
			require.NoError(t, err)

			repo.loseRaceOn = b.ID
			_, err = f.svc.UpdateBill(context.Background(), created.Bill.ID.Hex(), billInput(lineOf(a, 1), lineOf(b, 1)), "")
			_, ok := IsInsufficientStock(err)
			require.True(t, ok)

			assert.Equal(t, 8, f.stockOf(t, a.ID))
			assert.Equal(t, 10, f.stockOf(t, b.ID))
			stored, err := mem.GetBill(context.Background(), created.Bill.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, stored.Products[0].Quantity)
		})
	}
}

func TestUpdateBill_SkipsDeletedProducts(t *testing.T) {
	f := newFixture(t)
	gone := f.product(t, "P-1", 1, 10, 0)
	kept := f.product(t, "P-2", 1, 10, 0)

	created, err := f.svc.CreateBill(context.Background(), billInput(lineOf(gone, 2), lineOf(kept, 1)), "")
	require.NoError(t, err)
	require.NoError(t, f.mem.DeleteProduct(context.Background(), gone.ID))

	_, err = f.svc.UpdateBill(context.Background(), created.Bill.ID.Hex(), billInput(lineOf(kept, 2)), "")
	require.NoError(t, err)
	assert.Equal(t, 8, f.stockOf(t, kept.ID))
}

func TestUpdateBill_NotFoundAndInvalidID(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 1, 10, 0)

	_, err := f.svc.UpdateBill(context.Background(), primitive.NewObjectID().Hex(), billInput(lineOf(p, 1)), "")
	assert.ErrorIs(t, err, ErrBillNotFound)

	_, err = f.svc.UpdateBill(context.Background(), "xyz", billInput(lineOf(p, 1)), "")
	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)
}

func TestDeleteBill_RestoresStockAndAllowsRecreate(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 1, 3, 0)

	created, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 3)), "")
	require.NoError(t, err)
	require.Equal(t, 0, f.stockOf(t, p.ID))

	require.NoError(t, f.svc.DeleteBill(context.Background(), created.Bill.ID.Hex()))
	assert.Equal(t, 3, f.stockOf(t, p.ID))
	assert.Equal(t, 0, f.billCount(t))

	last := f.publisher.events[len(f.publisher.events)-1]
	assert.Equal(t, realtime.BillChange{Type: realtime.ChangeDeleted, BillID: created.Bill.ID.Hex()}, last.Payload)

	_, err = f.svc.CreateBill(context.Background(), billInput(lineOf(p, 3)), "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.stockOf(t, p.ID))

	assert.ErrorIs(t, f.svc.DeleteBill(context.Background(), created.Bill.ID.Hex()), ErrBillNotFound)
}

func TestSetStock_DecreaseCrossingThreshold(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 1, 10, 5)

	res, err := f.svc.SetStock(context.Background(), p.ID.Hex(), 6, OpDecrease, "clerk@shop.test")
	require.NoError(t, err)

	assert.Equal(t, 10, res.OldStock)
	assert.Equal(t, 4, res.NewStock)
	assert.Equal(t, 4, res.Product.Stock)
	assert.Equal(t, []string{"P-1|clerk@shop.test"}, f.notifier.checks)
	assert.Equal(t, []string{realtime.EventProductUpdated}, f.publisher.names())
}

func TestSetStock_Operations(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P-1", 1, 10, 2)

	res, err := f.svc.SetStock(context.Background(), p.ID.Hex(), 5, OpIncrease, "")
	require.NoError(t, err)
	assert.Equal(t, 10, res.OldStock)
	assert.Equal(t, 15, res.NewStock)
	require.NotNil(t, res.Product.LastRestocked)
	assert.True(t, testNow.Equal(*res.Product.LastRestocked))

	res, err = f.svc.SetStock(context.Background(), p.ID.Hex(), 3, OpSet, "")
	require.NoError(t, err)
	assert.Equal(t, 15, res.OldStock)
	assert.Equal(t, 3, res.NewStock)

	_, err = f.svc.SetStock(context.Background(), p.ID.Hex(), 4, OpDecrease, "")
	stockErr, ok := IsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 3, f.stockOf(t, p.ID))

	_, err = f.svc.SetStock(context.Background(), p.ID.Hex(), 1, "halve", "")
	_, ok = apperrors.IsValidationError(err)
	assert.True(t, ok)

	_, err = f.svc.SetStock(context.Background(), p.ID.Hex(), -1, OpSet, "")
	_, ok = apperrors.IsValidationError(err)
	assert.True(t, ok)

	_, err = f.svc.SetStock(context.Background(), primitive.NewObjectID().Hex(), 1, OpIncrease, "")
	_, ok = IsProductNotFound(err)
	assert.True(t, ok)
}

func TestStockNeverNegative(t *testing.T) {
	f := newFixture(t, memstore.WithoutTransactions())
	products := []models.Product{
		f.product(t, "P-1", 1, 5, 0),
		f.product(t, "P-2", 1, 3, 0),
	}
	rng := rand.New(rand.NewSource(7))
	var bills []string

	for i := 0; i < 200; i++ {
		p := products[rng.Intn(len(products))]
		switch rng.Intn(4) {
		case 0:
			res, err := f.svc.CreateBill(context.Background(), billInput(lineOf(p, 1+rng.Intn(4))), "")
			if err == nil {
				bills = append(bills, res.Bill.ID.Hex())
			}
		case 1:
			if len(bills) > 0 {
				idx := rng.Intn(len(bills))
				_ = f.svc.DeleteBill(context.Background(), bills[idx])
				bills = append(bills[:idx], bills[idx+1:]...)
			}
		case 2:
			_, _ = f.svc.SetStock(context.Background(), p.ID.Hex(), rng.Intn(6), OpDecrease, "")
		case 3:
			_, _ = f.svc.SetStock(context.Background(), p.ID.Hex(), rng.Intn(3), OpIncrease, "")
		}

		for _, q := range products {
			require.GreaterOrEqual(t, f.stockOf(t, q.ID), 0)
		}
	}
}
