package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Sale is a write-once analytic record. Field names stay capitalized to match
// the documents already in the sales collection.
type Sale struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	InvoiceID    string             `bson:"InvoiceID" json:"InvoiceID"`
	Date         SaleDate           `bson:"Date" json:"Date"`
	CustomerType string             `bson:"CustomerType,omitempty" json:"CustomerType,omitempty"`
	Gender       string             `bson:"Gender,omitempty" json:"Gender,omitempty"`
	ProductLine  string             `bson:"ProductLine,omitempty" json:"ProductLine,omitempty"`
	UnitPrice    float64            `bson:"UnitPrice" json:"UnitPrice"`
	Quantity     int                `bson:"Quantity" json:"Quantity"`
	Tax          float64            `bson:"Tax" json:"Tax"`
	Total        float64            `bson:"Total" json:"Total"`
	Payment      string             `bson:"Payment,omitempty" json:"Payment,omitempty"`
	City         string             `bson:"City,omitempty" json:"City,omitempty"`
}
