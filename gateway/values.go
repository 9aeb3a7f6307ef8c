package gateway

import (
	"fmt"
	"math"
)

// Int converts a decoded JSON value to an int. Numbers arrive as float64 and
// must be integral.
func Int(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
}

// MinInt returns a validator accepting integers >= floor.
func MinInt(floor int) Validator {
	return func(value any) error {
		n, err := Int(value)
		if err != nil {
			return err
		}
		if n < floor {
			return fmt.Errorf("%d is less than %d", n, floor)
		}
		return nil
	}
}
