package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Employee struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	EmpID      string             `bson:"empId" json:"empId"`
	Name       string             `bson:"name" json:"name"`
	Age        int                `bson:"age,omitempty" json:"age,omitempty"`
	Gender     string             `bson:"gender,omitempty" json:"gender,omitempty"`
	Role       string             `bson:"role,omitempty" json:"role,omitempty"`
	Department string             `bson:"department,omitempty" json:"department,omitempty"`
	Salary     float64            `bson:"salary,omitempty" json:"salary,omitempty"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	City       string             `bson:"city,omitempty" json:"city,omitempty"`
	Shift      string             `bson:"shift,omitempty" json:"shift,omitempty"`
	JoinDate   *time.Time         `bson:"joinDate,omitempty" json:"joinDate,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}
