package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ShelfLifeDays   = "days"
	ShelfLifeMonths = "months"
	ShelfLifeYears  = "years"

	DefaultLowStockThreshold = 10
)

type ShelfLife struct {
	Value int    `bson:"value,omitempty" json:"value,omitempty"`
	Unit  string `bson:"unit,omitempty" json:"unit,omitempty"`
}

type Product struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	ProductID         string             `bson:"productId" json:"productId"`
	Name              string             `bson:"name" json:"name"`
	Description       string             `bson:"description,omitempty" json:"description,omitempty"`
	Category          string             `bson:"category" json:"category"`
	Price             float64            `bson:"price" json:"price"`
	CostPrice         float64            `bson:"costPrice" json:"costPrice"`
	Stock             int                `bson:"stock" json:"stock"`
	LowStockThreshold int                `bson:"lowStockThreshold" json:"lowStockThreshold"`
	Supplier          string             `bson:"supplier,omitempty" json:"supplier,omitempty"`
	BatchNumber       string             `bson:"batchNumber,omitempty" json:"batchNumber,omitempty"`
	ManufacturingDate *time.Time         `bson:"manufacturingDate,omitempty" json:"manufacturingDate,omitempty"`
	ShelfLife         ShelfLife          `bson:"shelfLife" json:"shelfLife"`
	ExpirationDate    *time.Time         `bson:"expirationDate,omitempty" json:"expirationDate,omitempty"`
	IsPerishable      bool               `bson:"isPerishable" json:"isPerishable"`
	IsActive          bool               `bson:"isActive" json:"isActive"`
	LastRestocked     *time.Time         `bson:"lastRestocked,omitempty" json:"lastRestocked,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`

	RemainingShelfLifeDays *int `bson:"-" json:"remainingShelfLifeDays"`
	IsExpired              bool `bson:"-" json:"isExpired"`
}

// DeriveExpiration recomputes ExpirationDate from the manufacturing date and
// shelf life. It leaves the stored value untouched when either input is missing.
func (p *Product) DeriveExpiration() {
	if p.ManufacturingDate == nil || p.ShelfLife.Value <= 0 {
		return
	}
	if p.ShelfLife.Unit == "" {
		p.ShelfLife.Unit = ShelfLifeDays
	}

	expires := ExpirationFrom(*p.ManufacturingDate, p.ShelfLife)
	p.ExpirationDate = &expires
}

// ExpirationFrom adds a shelf life to a manufacturing date using calendar
// arithmetic, so month and year units follow the calendar rather than a fixed
// number of days.
func ExpirationFrom(manufactured time.Time, life ShelfLife) time.Time {
	switch life.Unit {
	case ShelfLifeMonths:
		return manufactured.AddDate(0, life.Value, 0)
	case ShelfLifeYears:
		return manufactured.AddDate(life.Value, 0, 0)
	default:
		return manufactured.AddDate(0, 0, life.Value)
	}
}

// RemainingShelfLife returns the ceiling of days until expiration, or nil when
// the product has no expiration date.
func (p Product) RemainingShelfLife(now time.Time) *int {
	if p.ExpirationDate == nil {
		return nil
	}
	days := DaysUntil(now, *p.ExpirationDate)
	return &days
}

func (p Product) Expired(now time.Time) bool {
	return p.ExpirationDate != nil && now.After(*p.ExpirationDate)
}

// IsLowStock reports whether stock has reached the alert threshold.
func (p Product) IsLowStock() bool {
	return p.Stock <= p.LowStockThreshold
}

// Decorate fills the derived read-only fields.
func (p *Product) Decorate(now time.Time) {
	p.RemainingShelfLifeDays = p.RemainingShelfLife(now)
	p.IsExpired = p.Expired(now)
}

// DaysUntil is the ceiling of whole days between now and t.
func DaysUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// ValidShelfLifeUnit accepts the empty unit, which defaults to days.
func ValidShelfLifeUnit(unit string) bool {
	switch unit {
	case "", ShelfLifeDays, ShelfLifeMonths, ShelfLifeYears:
		return true
	}
	return false
}
