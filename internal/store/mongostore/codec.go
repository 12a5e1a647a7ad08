package mongostore

import (
	"fmt"
	"reflect"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/noah-isme/backend-invoice/internal/money"
)

var decimalType = reflect.TypeOf(money.Decimal{})

// Registry returns the default bson registry plus a Decimal128 codec for
// money.Decimal, so amounts round-trip exactly.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(decimalType, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(decimalType, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != decimalType {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}
	d := val.Interface().(money.Decimal)
	d128, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return fmt.Errorf("encode decimal %s: %w", d.String(), err)
	}
	return vw.WriteDecimal128(d128)
}

// decodeDecimal also accepts numeric and string values so documents written by
// other tools still load.
func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != decimalType {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}

	var text string
	switch vr.Type() {
	case bsontype.Decimal128:
		d, err := vr.ReadDecimal128()
		if err != nil {
			return err
		}
		text = d.String()
	case bsontype.Double:
		f, err := vr.ReadDouble()
		if err != nil {
			return err
		}
		text = strconv.FormatFloat(f, 'f', -1, 64)
	case bsontype.Int32:
		i, err := vr.ReadInt32()
		if err != nil {
			return err
		}
		text = strconv.FormatInt(int64(i), 10)
	case bsontype.Int64:
		i, err := vr.ReadInt64()
		if err != nil {
			return err
		}
		text = strconv.FormatInt(i, 10)
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		text = s
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
		val.Set(reflect.ValueOf(money.Zero))
		return nil
	default:
		return fmt.Errorf("cannot decode %v into money.Decimal", vr.Type())
	}

	d, err := money.Parse(text)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(d))
	return nil
}
