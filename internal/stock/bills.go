package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"easymanager/internal/apperrors"
	"easymanager/internal/models"
	"easymanager/internal/realtime"
	"easymanager/internal/store"
)

type BillResult struct {
	Bill           models.Bill     `json:"bill"`
	LowStockAlerts []LowStockAlert `json:"lowStockAlerts,omitempty"`
}

// CreateBill validates every line and checks stock for all of them before
// touching anything, then decrements stock and stores the bill as one unit.
func (s *Service) CreateBill(ctx context.Context, in BillInput, actingUserEmail string) (BillResult, error) {
	d, err := validateBill(&in)
	if err != nil {
		return BillResult{}, err
	}

	catalog, err := s.prevalidate(ctx, d, nil)
	if err != nil {
		return BillResult{}, err
	}

	now := s.now()
	billNo := in.BillNo
	if billNo == "" {
		if billNo, err = s.nextBillNo(ctx, now); err != nil {
			return BillResult{}, err
		}
	}

	bill := models.Bill{
		BillNo:        billNo,
		Date:          now,
		Customer:      in.Customer,
		PaymentMethod: in.PaymentMethod,
		Status:        in.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Date != nil {
		bill.Date = *in.Date
	}
	priceLines(&bill, d.lines, catalog)

	var latest map[primitive.ObjectID]models.Product
	err = s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		bill.ID = primitive.NilObjectID
		applyLatest, applied, err := s.applyDemand(ctx, d)
		if err != nil {
			return err
		}
		latest = applyLatest
		if err := s.repo.InsertBill(ctx, &bill); err != nil {
			s.compensate(ctx, applied)
			return billWriteError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("bill rejected", zap.String("customer", in.Customer), zap.Error(err))
		return BillResult{}, err
	}

	s.logger.Info("bill created",
		zap.String("billNo", bill.BillNo),
		zap.Float64("amount", bill.Amount),
		zap.Int("lines", len(bill.Products)),
	)

	alerts := s.alertLowStock(d.order, latest, actingUserEmail)
	s.publishProducts(ctx, d.order, latest)
	s.publisher.Publish(ctx, realtime.BillChanged(realtime.ChangeAdded, bill))

	return BillResult{Bill: bill, LowStockAlerts: alerts}, nil
}

// UpdateBill returns the old lines to stock and applies the new ones inside
// one transaction. The bill keeps its number and creation time.
func (s *Service) UpdateBill(ctx context.Context, billID string, in BillInput, actingUserEmail string) (BillResult, error) {
	id, err := parseID(billID, "bill")
	if err != nil {
		return BillResult{}, err
	}

	old, err := s.repo.GetBill(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return BillResult{}, ErrBillNotFound
	}
	if err != nil {
		return BillResult{}, err
	}

	d, err := validateBill(&in)
	if err != nil {
		return BillResult{}, err
	}

	credit := make(map[primitive.ObjectID]int, len(old.Products))
	for _, l := range old.Products {
		credit[l.ProductID] += l.Quantity
	}

	catalog, err := s.prevalidate(ctx, d, credit)
	if err != nil {
		return BillResult{}, err
	}

	now := s.now()
	updated := models.Bill{
		ID:            old.ID,
		BillNo:        old.BillNo,
		Customer:      in.Customer,
		PaymentMethod: in.PaymentMethod,
		Status:        in.Status,
		CreatedAt:     old.CreatedAt,
	}
	priceLines(&updated, d.lines, catalog)

	var (
		touched []primitive.ObjectID
		latest  map[primitive.ObjectID]models.Product
	)
	// The bill is read again inside the transaction so the lines returned to
	// stock are the ones stored at write time, not the ones seen above.
	err = s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetBill(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrBillNotFound
		}
		if err != nil {
			return err
		}
		updated.Date = current.Date
		if in.Date != nil {
			updated.Date = *in.Date
		}
		updated.UpdatedAt = nextStamp(now, current.UpdatedAt)

		restoredLatest, restored, err := s.restoreLines(ctx, current.Products)
		if err != nil {
			return err
		}
		applyLatest, applied, err := s.applyDemand(ctx, d)
		if err != nil {
			s.compensate(ctx, restored)
			return err
		}
		if err := s.repo.ReplaceBill(ctx, updated, current.UpdatedAt); err != nil {
			s.compensate(ctx, append(restored, applied...))
			return billWriteError(err)
		}

		touched, latest = mergeTouched(current.Products, restoredLatest, d.order, applyLatest)
		return nil
	})
	if err != nil {
		s.logger.Warn("bill update rejected", zap.String("billNo", old.BillNo), zap.Error(err))
		return BillResult{}, err
	}

	s.logger.Info("bill updated", zap.String("billNo", updated.BillNo), zap.Float64("amount", updated.Amount))

	alerts := s.alertLowStock(d.order, latest, actingUserEmail)
	s.publishProducts(ctx, touched, latest)
	s.publisher.Publish(ctx, realtime.BillChanged(realtime.ChangeUpdated, updated))

	return BillResult{Bill: updated, LowStockAlerts: alerts}, nil
}

// DeleteBill returns every line to stock and removes the bill.
func (s *Service) DeleteBill(ctx context.Context, billID string) error {
	id, err := parseID(billID, "bill")
	if err != nil {
		return err
	}

	var (
		bill   models.Bill
		latest map[primitive.ObjectID]models.Product
	)
	err = s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetBill(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrBillNotFound
		}
		if err != nil {
			return err
		}

		restoredLatest, restored, err := s.restoreLines(ctx, current.Products)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteBill(ctx, id, current.UpdatedAt); err != nil {
			s.compensate(ctx, restored)
			return billWriteError(err)
		}
		bill, latest = current, restoredLatest
		return nil
	})
	if err != nil {
		s.logger.Warn("bill delete rejected", zap.String("billId", id.Hex()), zap.Error(err))
		return err
	}

	s.logger.Info("bill deleted", zap.String("billNo", bill.BillNo))

	order := make([]primitive.ObjectID, 0, len(bill.Products))
	seen := make(map[primitive.ObjectID]bool)
	for _, l := range bill.Products {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			order = append(order, l.ProductID)
		}
	}
	s.publishProducts(ctx, order, latest)
	s.publisher.Publish(ctx, realtime.BillDeleted(id.Hex()))
	return nil
}

// prevalidate reads every referenced product and checks the summed demand
// against stock plus any credit the caller is about to return.
func (s *Service) prevalidate(ctx context.Context, d demand, credit map[primitive.ObjectID]int) (map[primitive.ObjectID]models.Product, error) {
	catalog := make(map[primitive.ObjectID]models.Product, len(d.order))
	for _, id := range d.order {
		p, err := s.repo.GetProduct(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: id.Hex()}
		}
		if err != nil {
			return nil, fmt.Errorf("reading product %s: %w", id.Hex(), err)
		}

		available := p.Stock + credit[id]
		if d.need[id] > available {
			return nil, &InsufficientStockError{
				ProductID: id.Hex(),
				Name:      p.Name,
				Available: available,
				Requested: d.need[id],
			}
		}
		catalog[id] = p
	}
	return catalog, nil
}

// applyDemand runs the conditional decrements in first-seen order. On
// failure the decrements already made are compensated before returning.
func (s *Service) applyDemand(ctx context.Context, d demand) (map[primitive.ObjectID]models.Product, []adjustment, error) {
	latest := make(map[primitive.ObjectID]models.Product, len(d.order))
	applied := make([]adjustment, 0, len(d.order))

	for _, id := range d.order {
		p, err := s.repo.DecrementStock(ctx, id, d.need[id])
		if err != nil {
			s.compensate(ctx, applied)
			return nil, nil, s.decrementError(ctx, id, d.need[id], err)
		}
		applied = append(applied, adjustment{productID: id, delta: d.need[id]})
		latest[id] = p
	}
	return latest, applied, nil
}

// restoreLines adds bill quantities back to stock. Products deleted since
// the sale are skipped. Any other failure undoes the lines already restored
// and is returned.
func (s *Service) restoreLines(ctx context.Context, lines []models.BillLine) (map[primitive.ObjectID]models.Product, []adjustment, error) {
	latest := make(map[primitive.ObjectID]models.Product, len(lines))
	restored := make([]adjustment, 0, len(lines))

	for _, l := range lines {
		p, err := s.repo.IncrementStock(ctx, l.ProductID, l.Quantity, nil)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("skipping stock restore for deleted product",
				zap.String("productId", l.ProductID.Hex()),
				zap.Int("quantity", l.Quantity),
			)
			continue
		}
		if err != nil {
			s.compensate(ctx, restored)
			return nil, nil, fmt.Errorf("restoring stock for %s: %w", l.ProductID.Hex(), err)
		}
		restored = append(restored, adjustment{productID: l.ProductID, delta: -l.Quantity})
		latest[l.ProductID] = p
	}
	return latest, restored, nil
}

func (s *Service) alertLowStock(order []primitive.ObjectID, latest map[primitive.ObjectID]models.Product, actingUserEmail string) []LowStockAlert {
	var alerts []LowStockAlert
	for _, id := range order {
		p, ok := latest[id]
		if !ok || !p.IsLowStock() {
			continue
		}
		alerts = append(alerts, LowStockAlert{
			ProductName:  p.Name,
			ProductID:    p.ProductID,
			CurrentStock: p.Stock,
			Threshold:    p.LowStockThreshold,
		})
		s.notifier.CheckStockLevel(p, actingUserEmail)
	}
	return alerts
}

func (s *Service) nextBillNo(ctx context.Context, now time.Time) (string, error) {
	day := now.In(s.loc).Format("060102")
	seq, err := s.repo.NextBillSequence(ctx, day)
	if err != nil {
		return "", fmt.Errorf("allocating bill number: %w", err)
	}
	return fmt.Sprintf("BILL-%s-%03d", day, seq), nil
}

// priceLines snapshots name and unit price from the catalog. Totals are
// computed in decimal and rounded to cents.
func priceLines(b *models.Bill, lines []line, catalog map[primitive.ObjectID]models.Product) {
	amount := decimal.Zero
	b.Products = make([]models.BillLine, 0, len(lines))
	for _, l := range lines {
		p := catalog[l.productID]
		total := decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(l.quantity))).Round(2)
		amount = amount.Add(total)
		b.Products = append(b.Products, models.BillLine{
			ProductID: l.productID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  l.quantity,
			Total:     total.InexactFloat64(),
		})
	}
	b.Amount = amount.InexactFloat64()
}

// nextStamp returns a millisecond-precision write time strictly after prev,
// so every bill rewrite changes the revision that ReplaceBill and DeleteBill
// check.
func nextStamp(now, prev time.Time) time.Time {
	now = now.Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return now
}

func billWriteError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrBillNotFound
	case errors.Is(err, store.ErrBillChanged):
		return apperrors.NewConflictError("Bill was changed by another request, please retry", err)
	case errors.Is(err, store.ErrDuplicateKey):
		return apperrors.NewConflictError("Bill number already exists", err)
	}
	return fmt.Errorf("saving bill: %w", err)
}

func mergeTouched(
	oldLines []models.BillLine,
	restored map[primitive.ObjectID]models.Product,
	newOrder []primitive.ObjectID,
	applied map[primitive.ObjectID]models.Product,
) ([]primitive.ObjectID, map[primitive.ObjectID]models.Product) {
	order := make([]primitive.ObjectID, 0, len(oldLines)+len(newOrder))
	latest := make(map[primitive.ObjectID]models.Product, len(restored)+len(applied))
	add := func(id primitive.ObjectID, p models.Product, ok bool) {
		if !ok {
			return
		}
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		latest[id] = p
	}
	for _, l := range oldLines {
		p, ok := restored[l.ProductID]
		add(l.ProductID, p, ok)
	}
	for _, id := range newOrder {
		p, ok := applied[id]
		add(id, p, ok)
	}
	return order, latest
}
