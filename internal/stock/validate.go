package stock

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"easymanager/internal/apperrors"
	"easymanager/internal/models"
)

type LineInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type BillInput struct {
	BillNo        string      `json:"billNo"`
	Date          *time.Time  `json:"date"`
	Customer      string      `json:"customer"`
	Products      []LineInput `json:"products"`
	PaymentMethod string      `json:"paymentMethod"`
	Status        string      `json:"status"`
}

// demand is the validated shape of a bill: quantities summed per product, in
// the order each product first appears.
type demand struct {
	lines []line
	order []primitive.ObjectID
	need  map[primitive.ObjectID]int
}

type line struct {
	productID primitive.ObjectID
	quantity  int
}

func validateBill(in *BillInput) (demand, error) {
	var details []string

	in.Customer = strings.TrimSpace(in.Customer)
	in.BillNo = strings.TrimSpace(in.BillNo)
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.Status = strings.TrimSpace(in.Status)
	if in.Status == "" {
		in.Status = models.BillPending
	}

	if in.Customer == "" {
		details = append(details, "customer is required")
	}
	if !models.ValidPaymentMethod(in.PaymentMethod) {
		details = append(details, "paymentMethod must be one of cash, card, online")
	}
	if !models.ValidBillStatus(in.Status) {
		details = append(details, "status must be one of paid, pending, overdue")
	}
	if len(in.Products) == 0 {
		details = append(details, "at least one product is required")
	}

	d := demand{need: make(map[primitive.ObjectID]int)}
	for i, item := range in.Products {
		id, err := primitive.ObjectIDFromHex(strings.TrimSpace(item.ProductID))
		if err != nil {
			details = append(details, fmt.Sprintf("products[%d].productId is invalid", i))
			continue
		}
		if item.Quantity <= 0 {
			details = append(details, fmt.Sprintf("products[%d].quantity must be a positive integer", i))
			continue
		}
		if _, seen := d.need[id]; !seen {
			d.order = append(d.order, id)
		}
		d.need[id] += item.Quantity
		d.lines = append(d.lines, line{productID: id, quantity: item.Quantity})
	}

	if len(details) > 0 {
		return demand{}, apperrors.NewValidationError("validation failed", details...)
	}
	return d, nil
}

func parseID(raw, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, apperrors.NewValidationError(fmt.Sprintf("invalid %s id", what))
	}
	return id, nil
}
