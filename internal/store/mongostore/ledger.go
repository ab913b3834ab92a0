package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"easymanager/internal/models"
	"easymanager/internal/store"
)

// saleDay normalizes the Date field inside a pipeline. Legacy documents hold a
// BSON date, newer ones a YYYY-MM-DD string; both end up as a day string so
// the two shapes group together.
var saleDay = bson.M{
	"$cond": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$type": "$Date"}, "date"}},
		bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$Date", "timezone": "UTC"}},
		bson.M{"$substrBytes": bson.A{bson.M{"$ifNull": bson.A{"$Date", ""}}, 0, 10}},
	},
}

type totalsRow struct {
	ID    string  `bson:"_id"`
	Total float64 `bson:"total"`
	Count int64   `bson:"count"`
}

func (s *Store) ListBills(ctx context.Context) ([]models.Bill, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	cursor, err := s.bills.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	bills := make([]models.Bill, 0)
	if err := cursor.All(ctx, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

func (s *Store) GetBill(ctx context.Context, id primitive.ObjectID) (models.Bill, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var bill models.Bill
	err := s.bills.FindOne(ctx, bson.M{"_id": id}).Decode(&bill)
	return bill, translate(err)
}

func (s *Store) InsertBill(ctx context.Context, b *models.Bill) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	_, err := s.bills.InsertOne(ctx, b)
	return translate(err)
}

func (s *Store) ReplaceBill(ctx context.Context, b models.Bill, prevUpdatedAt time.Time) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	res, err := s.bills.ReplaceOne(ctx, billRevision(b.ID, prevUpdatedAt), b)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return s.billMissOrChanged(ctx, b.ID)
	}
	return nil
}

func (s *Store) DeleteBill(ctx context.Context, id primitive.ObjectID, prevUpdatedAt time.Time) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	res, err := s.bills.DeleteOne(ctx, billRevision(id, prevUpdatedAt))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return s.billMissOrChanged(ctx, id)
	}
	return nil
}

// billRevision matches a bill only at the revision the caller read. Bills
// written before updatedAt existed decode with a zero time and match on a
// missing field.
func billRevision(id primitive.ObjectID, prevUpdatedAt time.Time) bson.M {
	if prevUpdatedAt.IsZero() {
		return bson.M{"_id": id, "updatedAt": bson.M{"$in": bson.A{nil, prevUpdatedAt}}}
	}
	return bson.M{"_id": id, "updatedAt": prevUpdatedAt}
}

func (s *Store) billMissOrChanged(ctx context.Context, id primitive.ObjectID) error {
	n, err := s.bills.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrBillChanged
}

func (s *Store) NextBillSequence(ctx context.Context, day string) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "bill-" + day},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, translate(err)
	}
	return counter.Seq, nil
}

func (s *Store) CountBillsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return s.bills.CountDocuments(ctx, bson.M{"date": bson.M{"$gte": from, "$lt": to}})
}

func (s *Store) PaidBillTotals(ctx context.Context, from, to time.Time) (store.Totals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status": models.BillPaid,
			"date":   bson.M{"$gte": from, "$lt": to},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$amount"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	rows, err := s.aggregateTotals(ctx, s.bills, pipeline)
	if err != nil || len(rows) == 0 {
		return store.Totals{}, err
	}
	return store.Totals{Total: rows[0].Total, Count: rows[0].Count}, nil
}

func (s *Store) PaidBillTotalsByDay(ctx context.Context, from, to time.Time, loc *time.Location) (map[string]float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status": models.BillPaid,
			"date":   bson.M{"$gte": from, "$lt": to},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format":   "%Y-%m-%d",
				"date":     "$date",
				"timezone": mongoTimezone(loc, from),
			}},
			"total": bson.M{"$sum": "$amount"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	rows, err := s.aggregateTotals(ctx, s.bills, pipeline)
	if err != nil {
		return nil, err
	}
	return byDay(rows), nil
}

func (s *Store) InsertSale(ctx context.Context, sale *models.Sale) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if sale.ID.IsZero() {
		sale.ID = primitive.NewObjectID()
	}
	_, err := s.sales.InsertOne(ctx, sale)
	return translate(err)
}

func (s *Store) ListSales(ctx context.Context) ([]models.Sale, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	cursor, err := s.sales.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "Date", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sales := make([]models.Sale, 0)
	if err := cursor.All(ctx, &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) SaleTotals(ctx context.Context, fromDay, toDay string) (store.Totals, error) {
	pipeline := salesByDayPipeline(fromDay, toDay, nil)

	rows, err := s.aggregateTotals(ctx, s.sales, pipeline)
	if err != nil || len(rows) == 0 {
		return store.Totals{}, err
	}
	return store.Totals{Total: rows[0].Total, Count: rows[0].Count}, nil
}

func (s *Store) SaleTotalsByDay(ctx context.Context, fromDay, toDay string) (map[string]float64, error) {
	rows, err := s.aggregateTotals(ctx, s.sales, salesByDayPipeline(fromDay, toDay, "$_day"))
	if err != nil {
		return nil, err
	}
	return byDay(rows), nil
}

func salesByDayPipeline(fromDay, toDay string, groupKey interface{}) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$addFields", Value: bson.M{"_day": saleDay}}},
		{{Key: "$match", Value: bson.M{"_day": bson.M{"$gte": fromDay, "$lte": toDay}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   groupKey,
			"total": bson.M{"$sum": "$Total"},
			"count": bson.M{"$sum": 1},
		}}},
	}
}

func (s *Store) aggregateTotals(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) ([]totalsRow, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rows := make([]totalsRow, 0)
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func byDay(rows []totalsRow) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.ID] += row.Total
	}
	return out
}

// mongoTimezone renders loc for $dateToString. The process-local zone has no
// IANA name Mongo understands, so it is sent as a UTC offset.
func mongoTimezone(loc *time.Location, at time.Time) string {
	if loc == nil {
		return "UTC"
	}
	if name := loc.String(); name != "Local" && name != "" {
		return name
	}
	return at.In(loc).Format("-07:00")
}
