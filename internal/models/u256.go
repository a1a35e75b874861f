package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// U256 is a 256-bit unsigned integer used for every monetary quantity
// (stakes, prices, tax amounts). It parses both 0x-hex and decimal input
// and always serializes as 0x-hex so values survive JSON and SQL text
// columns without precision loss.
type U256 struct {
	i uint256.Int
}

// ParseU256 accepts "0x..." hex or plain decimal.
func ParseU256(s string) (U256, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return U256{}, fmt.Errorf("empty u256")
	}
	var z uint256.Int
	if strings.HasPrefix(s, "0X") {
		s = "0x" + s[2:]
	}
	if strings.HasPrefix(s, "0x") {
		if err := z.SetFromHex(s); err != nil {
			return U256{}, fmt.Errorf("invalid u256 hex %q: %w", s, err)
		}
		return U256{i: z}, nil
	}
	if err := z.SetFromDecimal(s); err != nil {
		return U256{}, fmt.Errorf("invalid u256 decimal %q: %w", s, err)
	}
	return U256{i: z}, nil
}

// MustU256 is for constants in tests and wiring.
func MustU256(s string) U256 {
	u, err := ParseU256(s)
	if err != nil {
		panic(err)
	}
	return u
}

func U256FromUint64(v uint64) U256 {
	var z uint256.Int
	z.SetUint64(v)
	return U256{i: z}
}

func (u U256) Hex() string      { return u.i.Hex() }
func (u U256) Dec() string      { return u.i.Dec() }
func (u U256) String() string   { return u.i.Hex() }
func (u U256) IsZero() bool     { return u.i.IsZero() }
func (u U256) Uint64() uint64   { return u.i.Uint64() }
func (u U256) Cmp(o U256) int   { return u.i.Cmp(&o.i) }
func (u U256) Eq(o U256) bool   { return u.i.Eq(&o.i) }
func (u U256) Float64() float64 { return u.i.Float64() }

// Add returns u + o with wrapping semantics (amounts never approach 2^256
// in practice).
func (u U256) Add(o U256) U256 {
	var z uint256.Int
	z.Add(&u.i, &o.i)
	return U256{i: z}
}

// SubSat returns u - o, saturating at zero.
func (u U256) SubSat(o U256) U256 {
	if u.i.Lt(&o.i) {
		return U256{}
	}
	var z uint256.Int
	z.Sub(&u.i, &o.i)
	return U256{i: z}
}

// Rsh returns u >> n.
func (u U256) Rsh(n uint) U256 {
	var z uint256.Int
	z.Rsh(&u.i, n)
	return U256{i: z}
}

// MulDiv returns floor(u * mul / div). div must be non-zero.
func (u U256) MulDiv(mul, div uint64) U256 {
	var m, d, z uint256.Int
	m.SetUint64(mul)
	d.SetUint64(div)
	z.Mul(&u.i, &m)
	z.Div(&z, &d)
	return U256{i: z}
}

func (u U256) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Hex())
}

func (u *U256) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Tolerate bare JSON numbers from upstream payloads.
		s = strings.Trim(string(data), `"`)
	}
	parsed, err := ParseU256(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Value stores the canonical hex form in TEXT columns.
func (u U256) Value() (driver.Value, error) {
	return u.Hex(), nil
}

func (u *U256) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*u = U256{}
		return nil
	case string:
		parsed, err := ParseU256(v)
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	case []byte:
		parsed, err := ParseU256(string(v))
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("negative value %d for u256", v)
		}
		*u = U256FromUint64(uint64(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into U256", src)
	}
}

// SumU256 adds every value in the map. Used for inflow/outflow totals.
func SumU256(m map[string]U256) U256 {
	var total U256
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}
