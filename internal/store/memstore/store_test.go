package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

func seedProduct(t *testing.T, s *Store, productID string, stock int) models.Product {
	t.Helper()
	p := &models.Product{ProductID: productID, Name: productID, Category: "General", Stock: stock, LowStockThreshold: 2}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return *p
}

func TestDecrementStock_Conditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "P-1", 3)

	updated, err := s.DecrementStock(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Stock)

	_, err = s.DecrementStock(ctx, p.ID, 1)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	_, err = s.DecrementStock(ctx, primitive.NewObjectID(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDecrementStock_ConcurrentLastUnit(t *testing.T) {
	s := New()
	p := seedProduct(t, s, "P-1", 1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.DecrementStock(context.Background(), p.ID, 1); errors.Is(err, store.ErrInsufficientStock) {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, failures)
	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestBillWrites_RequireCurrentRevision(t *testing.T) {
	s := New()
	ctx := context.Background()
	rev := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)

	bill := models.Bill{BillNo: "B-1", Amount: 5, UpdatedAt: rev}
	require.NoError(t, s.InsertBill(ctx, &bill))

	stale := bill
	stale.Amount = 9
	stale.UpdatedAt = rev.Add(time.Second)
	assert.ErrorIs(t, s.ReplaceBill(ctx, stale, rev.Add(-time.Second)), store.ErrBillChanged)
	require.NoError(t, s.ReplaceBill(ctx, stale, rev))

	assert.ErrorIs(t, s.DeleteBill(ctx, bill.ID, rev), store.ErrBillChanged)
	require.NoError(t, s.DeleteBill(ctx, bill.ID, stale.UpdatedAt))
	assert.ErrorIs(t, s.DeleteBill(ctx, bill.ID, stale.UpdatedAt), store.ErrNotFound)
	assert.ErrorIs(t, s.ReplaceBill(ctx, stale, stale.UpdatedAt), store.ErrNotFound)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "P-1", 5)

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := s.DecrementStock(ctx, p.ID, 2)
		require.NoError(t, err)
		require.NoError(t, s.InsertBill(ctx, &models.Bill{BillNo: "B-1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	bills, err := s.ListBills(ctx)
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestWithTransaction_WithoutTransactionsKeepsPartialWrites(t *testing.T) {
	s := New(WithoutTransactions())
	ctx := context.Background()
	p := seedProduct(t, s, "P-1", 5)

	assert.False(t, s.SupportsTransactions())
	_ = s.WithTransaction(ctx, func(ctx context.Context) error {
		_, _ = s.DecrementStock(ctx, p.ID, 2)
		return errors.New("boom")
	})

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
}

func TestSaveProduct_KeepsStock(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "P-1", 5)

	p.Name = "Renamed"
	p.Stock = 99
	require.NoError(t, s.SaveProduct(ctx, p))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 5, got.Stock)

	other := seedProduct(t, s, "P-2", 1)
	other.ProductID = "P-1"
	assert.ErrorIs(t, s.SaveProduct(ctx, other), store.ErrDuplicateKey)
}

func TestExpiryQueries(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	for i, offset := range []int{-2, 5, 1, 40} {
		exp := now.AddDate(0, 0, offset)
		require.NoError(t, s.CreateProduct(ctx, &models.Product{
			ProductID:      string(rune('A' + i)),
			ExpirationDate: &exp,
		}))
	}

	soon, err := s.ExpiringBetween(ctx, now, now.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, soon, 2)
	assert.Equal(t, "C", soon[0].ProductID)
	assert.Equal(t, "B", soon[1].ProductID)

	expired, err := s.ExpiredAt(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "A", expired[0].ProductID)
}

func TestSaleTotals_StringAndDateGroupTogether(t *testing.T) {
	s := New()
	ctx := context.Background()

	legacy, err := models.NormalizeSaleDate(time.Date(2024, time.March, 5, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, s.InsertSale(ctx, &models.Sale{InvoiceID: "A", Date: "2024-03-05", Total: 10}))
	require.NoError(t, s.InsertSale(ctx, &models.Sale{InvoiceID: "B", Date: legacy, Total: 2.5}))
	require.NoError(t, s.InsertSale(ctx, &models.Sale{InvoiceID: "C", Date: "2024-03-07", Total: 1}))

	totals, err := s.SaleTotals(ctx, "2024-03-05", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, store.Totals{Total: 12.5, Count: 2}, totals)

	byDay, err := s.SaleTotalsByDay(ctx, "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"2024-03-05": 12.5, "2024-03-07": 1}, byDay)
}

func TestBillQueries(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertBill(ctx, &models.Bill{BillNo: "B-1", Date: day.Add(time.Hour), Amount: 10, Status: models.BillPaid}))
	require.NoError(t, s.InsertBill(ctx, &models.Bill{BillNo: "B-2", Date: day.Add(2 * time.Hour), Amount: 4, Status: models.BillPending}))
	require.NoError(t, s.InsertBill(ctx, &models.Bill{BillNo: "B-3", Date: day.AddDate(0, 0, 1), Amount: 7, Status: models.BillPaid}))
	assert.ErrorIs(t, s.InsertBill(ctx, &models.Bill{BillNo: "B-1"}), store.ErrDuplicateKey)

	bills, err := s.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 3)
	assert.Equal(t, "B-3", bills[0].BillNo)

	count, err := s.CountBillsBetween(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	totals, err := s.PaidBillTotals(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, store.Totals{Total: 10, Count: 1}, totals)

	byDay, err := s.PaidBillTotalsByDay(ctx, day, day.AddDate(0, 0, 2), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"2024-03-05": 10, "2024-03-06": 7}, byDay)

	first, _ := s.NextBillSequence(ctx, "240305")
	second, _ := s.NextBillSequence(ctx, "240305")
	other, _ := s.NextBillSequence(ctx, "240306")
	assert.Equal(t, []int64{1, 2, 1}, []int64{first, second, other})
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := &models.User{Username: "ana", Email: " Ana@Shop.test "}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{Username: "other", Email: "ana@shop.test"}), store.ErrDuplicateKey)
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{Username: "ana", Email: "x@shop.test"}), store.ErrDuplicateKey)

	found, err := s.FindUserByEmail(ctx, "ANA@shop.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	at := time.Now()
	require.NoError(t, s.TouchLastLogin(ctx, u.ID, at))
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
}
