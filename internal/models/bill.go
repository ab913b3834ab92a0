package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentOnline = "online"

	BillPaid    = "paid"
	BillPending = "pending"
	BillOverdue = "overdue"
)

// BillLine snapshots the product name and unit price at the time of sale.
type BillLine struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Total     float64            `bson:"total" json:"total"`
}

type Bill struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	BillNo        string             `bson:"billNo" json:"billNo"`
	Date          time.Time          `bson:"date" json:"date"`
	Customer      string             `bson:"customer" json:"customer"`
	Products      []BillLine         `bson:"products" json:"products"`
	Amount        float64            `bson:"amount" json:"amount"`
	PaymentMethod string             `bson:"paymentMethod" json:"paymentMethod"`
	Status        string             `bson:"status" json:"status"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCard, PaymentOnline:
		return true
	}
	return false
}

func ValidBillStatus(status string) bool {
	switch status {
	case BillPaid, BillPending, BillOverdue:
		return true
	}
	return false
}
