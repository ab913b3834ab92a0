package memstore

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

func (s *Store) ListBills(ctx context.Context) ([]models.Bill, error) {
	bills := make([]models.Bill, 0)
	s.read(func() {
		for _, b := range s.data.bills {
			bills = append(bills, cloneBill(b))
		}
	})
	sort.SliceStable(bills, func(i, j int) bool { return bills[i].Date.After(bills[j].Date) })
	return bills, nil
}

func (s *Store) GetBill(ctx context.Context, id primitive.ObjectID) (models.Bill, error) {
	var (
		b  models.Bill
		ok bool
	)
	s.read(func() { b, ok = s.data.bills[id] })
	if !ok {
		return models.Bill{}, store.ErrNotFound
	}
	return cloneBill(b), nil
}

func (s *Store) InsertBill(ctx context.Context, b *models.Bill) error {
	return s.write(ctx, func() error {
		for _, existing := range s.data.bills {
			if existing.BillNo == b.BillNo {
				return duplicate("billNo", b.BillNo)
			}
		}
		if b.ID.IsZero() {
			b.ID = primitive.NewObjectID()
		}
		s.data.bills[b.ID] = cloneBill(*b)
		return nil
	})
}

func (s *Store) ReplaceBill(ctx context.Context, b models.Bill, prevUpdatedAt time.Time) error {
	return s.write(ctx, func() error {
		existing, ok := s.data.bills[b.ID]
		if !ok {
			return store.ErrNotFound
		}
		if !existing.UpdatedAt.Equal(prevUpdatedAt) {
			return store.ErrBillChanged
		}
		for id, existing := range s.data.bills {
			if id != b.ID && existing.BillNo == b.BillNo {
				return duplicate("billNo", b.BillNo)
			}
		}
		s.data.bills[b.ID] = cloneBill(b)
		return nil
	})
}

func (s *Store) DeleteBill(ctx context.Context, id primitive.ObjectID, prevUpdatedAt time.Time) error {
	return s.write(ctx, func() error {
		existing, ok := s.data.bills[id]
		if !ok {
			return store.ErrNotFound
		}
		if !existing.UpdatedAt.Equal(prevUpdatedAt) {
			return store.ErrBillChanged
		}
		delete(s.data.bills, id)
		return nil
	})
}

func (s *Store) NextBillSequence(ctx context.Context, day string) (int64, error) {
	var seq int64
	err := s.write(ctx, func() error {
		s.data.counters["bill-"+day]++
		seq = s.data.counters["bill-"+day]
		return nil
	})
	return seq, err
}

func (s *Store) eachBillBetween(from, to time.Time, fn func(models.Bill)) {
	s.read(func() {
		for _, b := range s.data.bills {
			if !b.Date.Before(from) && b.Date.Before(to) {
				fn(b)
			}
		}
	})
}

func (s *Store) CountBillsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	s.eachBillBetween(from, to, func(models.Bill) { n++ })
	return n, nil
}

func (s *Store) PaidBillTotals(ctx context.Context, from, to time.Time) (store.Totals, error) {
	var totals store.Totals
	s.eachBillBetween(from, to, func(b models.Bill) {
		if b.Status == models.BillPaid {
			totals.Total += b.Amount
			totals.Count++
		}
	})
	return totals, nil
}

func (s *Store) PaidBillTotalsByDay(ctx context.Context, from, to time.Time, loc *time.Location) (map[string]float64, error) {
	if loc == nil {
		loc = time.UTC
	}
	out := map[string]float64{}
	s.eachBillBetween(from, to, func(b models.Bill) {
		if b.Status == models.BillPaid {
			out[b.Date.In(loc).Format(models.DayLayout)] += b.Amount
		}
	})
	return out, nil
}

func (s *Store) InsertSale(ctx context.Context, sale *models.Sale) error {
	return s.write(ctx, func() error {
		if sale.ID.IsZero() {
			sale.ID = primitive.NewObjectID()
		}
		s.data.sales = append(s.data.sales, *sale)
		return nil
	})
}

func (s *Store) ListSales(ctx context.Context) ([]models.Sale, error) {
	var sales []models.Sale
	s.read(func() { sales = append(make([]models.Sale, 0, len(s.data.sales)), s.data.sales...) })
	sort.SliceStable(sales, func(i, j int) bool { return sales[i].Date > sales[j].Date })
	return sales, nil
}

func (s *Store) eachSaleBetween(fromDay, toDay string, fn func(day string, sale models.Sale)) {
	s.read(func() {
		for _, sale := range s.data.sales {
			day, err := models.NormalizeSaleDate(sale.Date)
			if err != nil || day == "" {
				continue
			}
			if string(day) >= fromDay && string(day) <= toDay {
				fn(string(day), sale)
			}
		}
	})
}

func (s *Store) SaleTotals(ctx context.Context, fromDay, toDay string) (store.Totals, error) {
	var totals store.Totals
	s.eachSaleBetween(fromDay, toDay, func(_ string, sale models.Sale) {
		totals.Total += sale.Total
		totals.Count++
	})
	return totals, nil
}

func (s *Store) SaleTotalsByDay(ctx context.Context, fromDay, toDay string) (map[string]float64, error) {
	out := map[string]float64{}
	s.eachSaleBetween(fromDay, toDay, func(day string, sale models.Sale) {
		out[day] += sale.Total
	})
	return out, nil
}
