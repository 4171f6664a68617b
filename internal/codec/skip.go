package codec

import (
	"github.com/avrojet/avrojet/pkg/avroerr"
	"github.com/avrojet/avrojet/pkg/schema"
)

// skip consumes one datum without building a value, used for record fields
// the target has no home for. Blocks written with a byte size are skipped
// wholesale.
func (d *decoder) skip(ref schema.Ref) error {
	n := d.s.Node(ref)
	switch n.Type {
	case schema.TypeNull:
		return nil
	case schema.TypeBoolean:
		_, err := d.r.ReadBool()
		return err
	case schema.TypeInt, schema.TypeLong, schema.TypeEnum:
		_, err := d.r.ReadLong()
		return err
	case schema.TypeFloat:
		return d.r.Skip(4)
	case schema.TypeDouble:
		return d.r.Skip(8)
	case schema.TypeBytes, schema.TypeString:
		size, err := d.r.ReadLong()
		if err != nil {
			return err
		}
		if size < 0 {
			return avroerr.NewCodec(avroerr.CodeInvalidLength, "negative length %d", size)
		}
		return d.r.Skip(size)
	case schema.TypeFixed:
		return d.r.Skip(int64(n.Size))
	case schema.TypeArray:
		return d.skipBlocks(n.Items, nil)
	case schema.TypeMap:
		return d.skipBlocks(n.Values, d.skipMapKey)
	case schema.TypeRecord:
		if err := d.push(); err != nil {
			return err
		}
		defer func() { d.depth-- }()
		for fi := range n.Fields {
			if err := d.skip(n.Fields[fi].Type); err != nil {
				return err
			}
		}
		return nil
	case schema.TypeUnion:
		idx, err := d.r.ReadLong()
		if err != nil {
			return err
		}
		if idx < 0 || idx >= int64(len(n.Branches)) {
			return avroerr.NewCodec(avroerr.CodeInvalidUnionIndex, "union index %d out of range (%d branches)", idx, len(n.Branches))
		}
		return d.skip(n.Branches[idx])
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot skip node type %s", n.Type)
}

func (d *decoder) skipMapKey() error {
	size, err := d.r.ReadLong()
	if err != nil {
		return err
	}
	if size < 0 {
		return avroerr.NewCodec(avroerr.CodeInvalidLength, "negative length %d", size)
	}
	return d.r.Skip(size)
}

// skipBlocks consumes an array or map block sequence. A negative count
// carries the block's byte size, letting the whole block be skipped without
// walking its items.
func (d *decoder) skipBlocks(item schema.Ref, key func() error) error {
	if err := d.push(); err != nil {
		return err
	}
	defer func() { d.depth-- }()
	for {
		count, err := d.r.ReadLong()
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if count < 0 {
			size, err := d.r.ReadLong()
			if err != nil {
				return err
			}
			if size < 0 {
				return avroerr.NewCodec(avroerr.CodeInvalidLength, "negative block size %d", size)
			}
			if err := d.r.Skip(size); err != nil {
				return err
			}
			continue
		}
		for i := int64(0); i < count; i++ {
			if key != nil {
				if err := key(); err != nil {
					return err
				}
			}
			if err := d.skip(item); err != nil {
				return err
			}
		}
	}
}
