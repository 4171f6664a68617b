package schema

import (
	"encoding/json"
	"math"

	"github.com/avrojet/avrojet/pkg/avroerr"
)

// decodeDefault converts a JSON default value into its pre-decoded form,
// guided by the field's node. Defaults for union fields are validated
// against the first branch, as the Avro specification requires.
func (b *builder) decodeDefault(raw interface{}, ref Ref) (interface{}, error) {
	node := &b.nodes[ref]
	switch node.Type {
	case TypeNull:
		if raw != nil {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "null type default must be null, got %v", raw)
		}
		return nil, nil

	case TypeBoolean:
		v, ok := raw.(bool)
		if !ok {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "boolean default must be true or false, got %v", raw)
		}
		return v, nil

	case TypeInt:
		v, err := defaultInt(raw)
		if err != nil {
			return nil, err
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "int default %d exceeds 32 bits", v)
		}
		return int32(v), nil

	case TypeLong:
		return defaultInt(raw)

	case TypeFloat:
		v, err := defaultFloat(raw)
		if err != nil {
			return nil, err
		}
		return float32(v), nil

	case TypeDouble:
		return defaultFloat(raw)

	case TypeBytes, TypeFixed:
		s, ok := raw.(string)
		if !ok {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "bytes default must be a string, got %v", raw)
		}
		bs, err := latin1Bytes(s)
		if err != nil {
			return nil, err
		}
		if node.Type == TypeFixed && len(bs) != node.Size {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "fixed default has %d bytes, want %d", len(bs), node.Size)
		}
		return bs, nil

	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "string default must be a string, got %v", raw)
		}
		return s, nil

	case TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "enum default must be a string, got %v", raw)
		}
		for _, sym := range node.Symbols {
			if sym == s {
				return s, nil
			}
		}
		return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "enum default %q is not a symbol of %s", s, node.Name)

	case TypeArray:
		list, ok := raw.([]interface{})
		if !ok {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "array default must be an array, got %v", raw)
		}
		items := node.Items
		out := make([]interface{}, 0, len(list))
		for _, item := range list {
			v, err := b.decodeDefault(item, items)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case TypeMap:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "map default must be an object, got %v", raw)
		}
		values := node.Values
		out := make(map[string]interface{}, len(obj))
		for k, item := range obj {
			v, err := b.decodeDefault(item, values)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case TypeRecord:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "record default must be an object, got %v", raw)
		}
		out := make(map[string]interface{}, len(node.Fields))
		fields := node.Fields
		for i := range fields {
			item, present := obj[fields[i].Name]
			if !present {
				return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "record default is missing field %q", fields[i].Name)
			}
			v, err := b.decodeDefault(item, fields[i].Type)
			if err != nil {
				return nil, err
			}
			out[fields[i].Name] = v
		}
		return out, nil

	case TypeUnion:
		return b.decodeDefault(raw, node.Branches[0])

	default:
		return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "cannot decode default for %s", node.Type)
	}
}

func defaultInt(raw interface{}) (int64, error) {
	num, ok := raw.(json.Number)
	if !ok {
		return 0, avroerr.NewSchema(avroerr.CodeInvalidDefault, "integer default must be a number, got %v", raw)
	}
	v, err := num.Int64()
	if err != nil {
		return 0, avroerr.NewSchema(avroerr.CodeInvalidDefault, "integer default %s is not an integer", num)
	}
	return v, nil
}

func defaultFloat(raw interface{}) (float64, error) {
	num, ok := raw.(json.Number)
	if !ok {
		return 0, avroerr.NewSchema(avroerr.CodeInvalidDefault, "float default must be a number, got %v", raw)
	}
	v, err := num.Float64()
	if err != nil {
		return 0, avroerr.NewSchema(avroerr.CodeInvalidDefault, "float default %s is not a number", num)
	}
	return v, nil
}

// latin1Bytes maps a JSON string default to raw bytes: each code point must
// be in [0, 255] and becomes one byte, per the Avro JSON encoding of bytes.
func latin1Bytes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, avroerr.NewSchema(avroerr.CodeInvalidDefault, "bytes default contains code point %U above U+00FF", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}
