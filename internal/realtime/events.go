package realtime

import (
	"encoding/json"

	"easymanager/internal/models"
)

const (
	EventProductUpdated        = "productUpdated"
	EventBillUpdated           = "billUpdated"
	EventNewSale               = "newSale"
	EventSalesUpdated          = "salesUpdated"
	EventMonthlyRevenueUpdated = "monthlyRevenueUpdated"

	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Event is one state change pushed to connected clients.
type Event struct {
	Name    string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type ProductChange struct {
	Type      string          `json:"type"`
	Product   *models.Product `json:"product,omitempty"`
	ProductID string          `json:"productId,omitempty"`
}

type BillChange struct {
	Type   string       `json:"type"`
	Bill   *models.Bill `json:"bill,omitempty"`
	BillID string       `json:"billId,omitempty"`
}

type SaleNotice struct {
	models.Sale
	DailyTotal float64 `json:"dailyTotal"`
}

type RevenueNotice struct {
	Total float64 `json:"total"`
	Trend float64 `json:"trend"`
}

func ProductChanged(changeType string, p models.Product) Event {
	return Event{Name: EventProductUpdated, Payload: ProductChange{Type: changeType, Product: &p}}
}

func ProductDeleted(id string) Event {
	return Event{Name: EventProductUpdated, Payload: ProductChange{Type: ChangeDeleted, ProductID: id}}
}

func BillChanged(changeType string, b models.Bill) Event {
	return Event{Name: EventBillUpdated, Payload: BillChange{Type: changeType, Bill: &b}}
}

func BillDeleted(id string) Event {
	return Event{Name: EventBillUpdated, Payload: BillChange{Type: ChangeDeleted, BillID: id}}
}

// BillRelayed forwards a client-supplied billUpdated payload as is.
func BillRelayed(raw json.RawMessage) Event {
	return Event{Name: EventBillUpdated, Payload: raw}
}

func NewSale(sale models.Sale, dailyTotal float64) Event {
	return Event{Name: EventNewSale, Payload: SaleNotice{Sale: sale, DailyTotal: dailyTotal}}
}

func SalesUpdated() Event {
	return Event{Name: EventSalesUpdated, Payload: struct{}{}}
}

func MonthlyRevenueUpdated(total, trend float64) Event {
	return Event{Name: EventMonthlyRevenueUpdated, Payload: RevenueNotice{Total: total, Trend: trend}}
}
