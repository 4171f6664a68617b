package codec

import (
	"math/big"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/avrojet/avrojet/pkg/avroerr"
)

// Duration is the decoded form of the Avro duration logical type: a 12-byte
// fixed holding three little-endian unsigned 32-bit counters.
type Duration struct {
	Months uint32
	Days   uint32
	Millis uint32
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(Duration{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	ratType      = reflect.TypeOf(big.Rat{})
	byteSliceTyp = reflect.TypeOf([]byte(nil))
	stdDuration  = reflect.TypeOf(time.Duration(0))
)

// dateFromDays maps days since 1970-01-01 to a UTC time.
func dateFromDays(days int32) time.Time {
	return time.Unix(int64(days)*86400, 0).UTC()
}

// daysFromDate maps a time to whole days since 1970-01-01.
func daysFromDate(t time.Time) int64 {
	return t.Unix() / 86400
}

// decimalFromBytes interprets b as a two's-complement big-endian integer
// scaled by 10^-scale.
func decimalFromBytes(b []byte, scale int) *big.Rat {
	num := new(big.Int)
	if len(b) > 0 && b[0]&0x80 != 0 {
		// Negative: value = unsigned - 2^(8*len).
		num.SetBytes(b)
		shift := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		num.Sub(num, shift)
	} else {
		num.SetBytes(b)
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	return new(big.Rat).SetFrac(num, denom)
}

// decimalToBytes renders r as a two's-complement big-endian integer scaled
// by 10^scale. size > 0 pads or bounds the output for a fixed base;
// size == 0 produces the minimal bytes encoding.
func decimalToBytes(r *big.Rat, scale, size int) ([]byte, error) {
	scaled := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	num := new(big.Int).Mul(r.Num(), scaled)
	quo, rem := new(big.Int).QuoRem(num, r.Denom(), new(big.Int))
	if rem.Sign() != 0 {
		return nil, avroerr.NewCodec(avroerr.CodeInvalidLogical, "decimal %s is not representable at scale %d", r.RatString(), scale)
	}

	neg := quo.Sign() < 0
	var raw []byte
	if neg {
		// Two's complement: emit 2^(8*n) + value for the smallest n that
		// keeps the sign bit set.
		abs := new(big.Int).Neg(quo)
		abs.Sub(abs, big.NewInt(1))
		n := (abs.BitLen() + 8) / 8
		if n == 0 {
			n = 1
		}
		shift := new(big.Int).Lsh(big.NewInt(1), uint(n*8))
		raw = make([]byte, n)
		new(big.Int).Add(shift, quo).FillBytes(raw)
	} else {
		n := (quo.BitLen() + 8) / 8
		if n == 0 {
			n = 1
		}
		raw = make([]byte, n)
		quo.FillBytes(raw)
	}

	if size <= 0 {
		return raw, nil
	}
	if len(raw) > size {
		return nil, avroerr.NewCodec(avroerr.CodeNumericOverflow, "decimal %s needs %d bytes, fixed size is %d", r.RatString(), len(raw), size)
	}
	out := make([]byte, size)
	pad := byte(0)
	if neg {
		pad = 0xFF
	}
	for i := 0; i < size-len(raw); i++ {
		out[i] = pad
	}
	copy(out[size-len(raw):], raw)
	return out, nil
}
