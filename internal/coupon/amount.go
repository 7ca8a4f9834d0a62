package coupon

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"gopkg.in/yaml.v3"
)

// Amount is a money value in a coupon definition. It is decoded from its
// literal text, so 19.99 in a file stays exactly 19.99.
type Amount struct {
	decimal.Decimal
}

func AmountOf(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{d}, nil
}

func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a number", node.Line)
	}
	v, err := AmountOf(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*a = v
	return nil
}

// MarshalBSONValue stores the amount as a string.
func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(a.String())
}

// UnmarshalBSONValue accepts strings, Decimal128 and plain numbers, since
// hand-seeded documents rarely use strings.
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeString:
		v, err := AmountOf(raw.StringValue())
		if err != nil {
			return err
		}
		*a = v
	case bson.TypeDecimal128:
		v, err := AmountOf(raw.Decimal128().String())
		if err != nil {
			return err
		}
		*a = v
	case bson.TypeDouble:
		*a = Amount{decimal.NewFromFloat(raw.Double())}
	case bson.TypeInt32:
		*a = Amount{decimal.NewFromInt32(raw.Int32())}
	case bson.TypeInt64:
		*a = Amount{decimal.NewFromInt(raw.Int64())}
	case bson.TypeNull:
		*a = Amount{}
	default:
		return fmt.Errorf("cannot decode %s into an amount", t)
	}
	return nil
}
