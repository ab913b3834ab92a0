package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"easymanager/internal/apperrors"
	"easymanager/internal/models"
	"easymanager/internal/realtime"
	"easymanager/internal/stock"
	"easymanager/internal/store/memstore"
)

var testNow = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu            sync.Mutex
	stockChecks   []string
	expiryChecks  []string
	nearlyExpired [][]models.Product
}

func (n *fakeNotifier) CheckStockLevel(p models.Product, actingUserEmail string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !p.IsLowStock() {
		return false
	}
	n.stockChecks = append(n.stockChecks, p.ProductID+"|"+actingUserEmail)
	return true
}

func (n *fakeNotifier) CheckExpiration(p models.Product) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expiryChecks = append(n.expiryChecks, p.ProductID)
	return true
}

func (n *fakeNotifier) NotifyNearlyExpired(products []models.Product) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nearlyExpired = append(n.nearlyExpired, products)
	return true
}

type eventLog struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (l *eventLog) Publish(_ context.Context, e realtime.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) last() realtime.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func newService(t *testing.T) (*Service, *fakeNotifier, *eventLog) {
	t.Helper()
	mem := memstore.New()
	notifier := &fakeNotifier{}
	events := &eventLog{}
	clock := func() time.Time { return testNow }
	stocker := stock.NewService(mem, notifier, events, zap.NewNop(), stock.WithClock(clock))
	return NewService(mem, stocker, notifier, events, zap.NewNop(), WithClock(clock)), notifier, events
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int { return &i }
func floatPtr(f float64) *float64 { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func milk() ProductInput {
	return ProductInput{
		ProductID: strPtr("P-100"),
		Name:      strPtr("Milk"),
		Category:  strPtr("Dairy"),
		Price:     floatPtr(1.5),
		CostPrice: floatPtr(1.1),
		Stock:     intPtr(40),
	}
}

func TestCreate_DefaultsAndEvent(t *testing.T) {
	svc, notifier, events := newService(t)

	p, err := svc.Create(context.Background(), milk(), "clerk@example.com")
	require.NoError(t, err)

	assert.False(t, p.ID.IsZero())
	assert.Equal(t, 40, p.Stock)
	assert.Equal(t, models.DefaultLowStockThreshold, p.LowStockThreshold)
	assert.True(t, p.IsActive)
	require.NotNil(t, p.LastRestocked)
	assert.Equal(t, testNow, *p.LastRestocked)
	assert.Nil(t, p.RemainingShelfLifeDays)
	assert.Equal(t, []string{"P-100"}, notifier.expiryChecks)
	assert.Empty(t, notifier.stockChecks)

	e := events.last()
	assert.Equal(t, realtime.EventProductUpdated, e.Name)
	change, ok := e.Payload.(realtime.ProductChange)
	require.True(t, ok)
	assert.Equal(t, realtime.ChangeAdded, change.Type)
}

func TestCreate_DerivesExpiration(t *testing.T) {
	svc, _, _ := newService(t)

	in := milk()
	in.ManufacturingDate = timePtr(time.Date(2024, time.May, 25, 0, 0, 0, 0, time.UTC))
	in.ShelfLife = &models.ShelfLife{Value: 14}

	p, err := svc.Create(context.Background(), in, "")
	require.NoError(t, err)

	require.NotNil(t, p.ExpirationDate)
	assert.Equal(t, time.Date(2024, time.June, 8, 0, 0, 0, 0, time.UTC), *p.ExpirationDate)
	assert.Equal(t, models.ShelfLifeDays, p.ShelfLife.Unit)
	require.NotNil(t, p.RemainingShelfLifeDays)
	assert.Equal(t, 7, *p.RemainingShelfLifeDays)
	assert.False(t, p.IsExpired)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Create(context.Background(), ProductInput{Price: floatPtr(-1)}, "")
	verr, ok := apperrors.IsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, verr.Details, "productId is required")
	assert.Contains(t, verr.Details, "costPrice is required")
	assert.Contains(t, verr.Details, "price must be at least 0")

	in := milk()
	in.ShelfLife = &models.ShelfLife{Value: 3, Unit: "weeks"}
	_, err = svc.Create(context.Background(), in, "")
	_, ok = apperrors.IsValidationError(err)
	assert.True(t, ok)
}

func TestCreate_DuplicateProductID(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Create(context.Background(), milk(), "")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), milk(), "")
	cerr, ok := apperrors.IsConflictError(err)
	require.True(t, ok)
	assert.Equal(t, "Product ID already exists", cerr.Message)
}

func TestCreate_LowStockNotifiesActingUser(t *testing.T) {
	svc, notifier, _ := newService(t)

	in := milk()
	in.Stock = intPtr(3)
	_, err := svc.Create(context.Background(), in, "clerk@example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"P-100|clerk@example.com"}, notifier.stockChecks)
}

func TestUpdate_PartialFieldsKeepStock(t *testing.T) {
	svc, _, events := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, milk(), "")
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID.Hex(), ProductInput{Price: floatPtr(1.75), Supplier: strPtr(" Farm Co ")}, "")
	require.NoError(t, err)

	assert.Equal(t, 1.75, updated.Price)
	assert.Equal(t, "Farm Co", updated.Supplier)
	assert.Equal(t, "Milk", updated.Name)
	assert.Equal(t, 40, updated.Stock)

	change := events.last().Payload.(realtime.ProductChange)
	assert.Equal(t, realtime.ChangeUpdated, change.Type)
}

func TestUpdate_StockGoesThroughStockService(t *testing.T) {
	svc, notifier, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, milk(), "")
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID.Hex(), ProductInput{Stock: intPtr(4)}, "clerk@example.com")
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Stock)
	assert.Equal(t, []string{"P-100|clerk@example.com"}, notifier.stockChecks)

	got, err := svc.Get(ctx, created.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)

	_, err = svc.Update(ctx, created.ID.Hex(), ProductInput{Stock: intPtr(-2)}, "")
	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)
}

func TestUpdate_Errors(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "not-an-id", ProductInput{}, "")
	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)

	_, err = svc.Update(ctx, "64b7f0c2a1b2c3d4e5f60718", ProductInput{Name: strPtr("x")}, "")
	nerr, ok := apperrors.IsNotFoundError(err)
	require.True(t, ok)
	assert.Equal(t, "Product not found", nerr.Message)

	created, err := svc.Create(ctx, milk(), "")
	require.NoError(t, err)
	_, err = svc.Update(ctx, created.ID.Hex(), ProductInput{Name: strPtr("  ")}, "")
	_, ok = apperrors.IsValidationError(err)
	assert.True(t, ok)
}

func TestUpdateExpiration(t *testing.T) {
	svc, notifier, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, milk(), "")
	require.NoError(t, err)

	p, err := svc.UpdateExpiration(ctx, created.ID.Hex(), ExpirationInput{
		ManufacturingDate: timePtr(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)),
		ShelfLife:         &models.ShelfLife{Value: 1, Unit: models.ShelfLifeMonths},
		BatchNumber:       strPtr("B-7"),
		IsPerishable:      func() *bool { b := true; return &b }(),
	})
	require.NoError(t, err)

	require.NotNil(t, p.ExpirationDate)
	assert.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), *p.ExpirationDate)
	assert.True(t, p.IsExpired)
	assert.Equal(t, "B-7", p.BatchNumber)
	assert.True(t, p.IsPerishable)
	assert.Equal(t, 40, p.Stock)
	assert.Len(t, notifier.expiryChecks, 2)
}

func TestDelete(t *testing.T) {
	svc, _, events := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, milk(), "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID.Hex()))
	change := events.last().Payload.(realtime.ProductChange)
	assert.Equal(t, realtime.ChangeDeleted, change.Type)
	assert.Equal(t, created.ID.Hex(), change.ProductID)

	err = svc.Delete(ctx, created.ID.Hex())
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestExpiryQueries(t *testing.T) {
	svc, notifier, _ := newService(t)
	ctx := context.Background()

	mk := func(id string, expires time.Time) {
		in := milk()
		in.ProductID = strPtr(id)
		in.ExpirationDate = timePtr(expires)
		_, err := svc.Create(ctx, in, "")
		require.NoError(t, err)
	}
	mk("soon", testNow.AddDate(0, 0, 5))
	mk("later", testNow.AddDate(0, 0, 45))
	mk("gone", testNow.AddDate(0, 0, -2))

	nearly, err := svc.NearlyExpired(ctx, 0)
	require.NoError(t, err)
	require.Len(t, nearly, 1)
	assert.Equal(t, "soon", nearly[0].ProductID)
	require.Len(t, notifier.nearlyExpired, 1)

	wide, err := svc.NearlyExpired(ctx, 60)
	require.NoError(t, err)
	require.Len(t, wide, 2)
	assert.Equal(t, "soon", wide[0].ProductID)
	assert.Equal(t, "later", wide[1].ProductID)

	expired, err := svc.Expired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "gone", expired[0].ProductID)
	assert.True(t, expired[0].IsExpired)
}

func TestNearlyExpired_NoMailWhenEmpty(t *testing.T) {
	svc, notifier, _ := newService(t)

	products, err := svc.NearlyExpired(context.Background(), 30)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Empty(t, notifier.nearlyExpired)
}

func TestLowStock(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	in := milk()
	in.Stock = intPtr(10)
	_, err := svc.Create(ctx, in, "")
	require.NoError(t, err)

	in = milk()
	in.ProductID = strPtr("P-200")
	_, err = svc.Create(ctx, in, "")
	require.NoError(t, err)

	low, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "P-100", low[0].ProductID)
}
