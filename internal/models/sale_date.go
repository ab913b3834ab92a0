package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DayLayout = "2006-01-02"

// SaleDate is a calendar day in YYYY-MM-DD form. Older sale documents stored a
// BSON date instead of a string; both decode to the same value.
type SaleDate string

// NormalizeSaleDate converts the accepted date representations into
// YYYY-MM-DD. Instants are taken in UTC, matching the $dateToString stage used
// by the aggregation pipelines.
func NormalizeSaleDate(value interface{}) (SaleDate, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case SaleDate:
		return NormalizeSaleDate(string(v))
	case time.Time:
		return SaleDate(v.UTC().Format(DayLayout)), nil
	case *time.Time:
		if v == nil {
			return "", nil
		}
		return NormalizeSaleDate(*v)
	case primitive.DateTime:
		return NormalizeSaleDate(v.Time())
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "", nil
		}
		if t, err := time.Parse(DayLayout, trimmed); err == nil {
			return SaleDate(t.Format(DayLayout)), nil
		}
		if t, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
			return NormalizeSaleDate(t)
		}
		if len(trimmed) >= len(DayLayout) {
			if t, err := time.Parse(DayLayout, trimmed[:len(DayLayout)]); err == nil {
				return SaleDate(t.Format(DayLayout)), nil
			}
		}
		return "", fmt.Errorf("unrecognized sale date %q", v)
	default:
		return "", fmt.Errorf("unsupported sale date type %T", value)
	}
}

func (d SaleDate) String() string {
	return string(d)
}

// UnmarshalBSONValue accepts both the string and the legacy date encoding.
func (d *SaleDate) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*d = ""
		return nil
	case bsontype.DateTime:
		var value primitive.DateTime
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		normalized, err := NormalizeSaleDate(value)
		if err != nil {
			return err
		}
		*d = normalized
		return nil
	case bsontype.String:
		var value string
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		normalized, err := NormalizeSaleDate(value)
		if err != nil {
			// keep unparseable legacy strings readable rather than failing the list
			*d = SaleDate(strings.TrimSpace(value))
			return nil
		}
		*d = normalized
		return nil
	default:
		return fmt.Errorf("cannot decode %s into SaleDate", t)
	}
}

// MarshalBSONValue always writes the string form.
func (d SaleDate) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(string(d))
}

func (d *SaleDate) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*d = ""
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return fmt.Errorf("sale date must be a string")
	}
	normalized, err := NormalizeSaleDate(s)
	if err != nil {
		return err
	}
	*d = normalized
	return nil
}
