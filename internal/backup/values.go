package backup

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// NullMarker is written in place of NULL column values.
const NullMarker = "$@NULL@$"

// formatValue renders a column value as document text. The second result
// reports whether the value was NULL.
func formatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return NullMarker, true
	case string:
		return x, false
	case []byte:
		return string(x), false
	case int:
		return strconv.Itoa(x), false
	case int16:
		return strconv.FormatInt(int64(x), 10), false
	case int32:
		return strconv.FormatInt(int64(x), 10), false
	case int64:
		return strconv.FormatInt(x, 10), false
	case uint32:
		return strconv.FormatUint(uint64(x), 10), false
	case uint64:
		return strconv.FormatUint(x, 10), false
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), false
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), false
	case bool:
		if x {
			return "1", false
		}

		return "0", false
	case time.Time:
		return strconv.FormatInt(x.Unix(), 10), false
	case driver.Valuer:
		inner, err := x.Value()
		if err != nil {
			return fmt.Sprint(v), false
		}

		return formatValue(inner)
	case fmt.Stringer:
		return x.String(), false
	default:
		return fmt.Sprint(v), false
	}
}

// applyAliases returns row with aliased columns renamed to their field names.
func applyAliases(row Row, aliases map[string]string) Row {
	if len(aliases) == 0 {
		return row
	}

	out := make(Row, len(row))
	for k, v := range row {
		if field, ok := aliases[k]; ok {
			out[field] = v

			continue
		}
		if _, shadowed := out[k]; !shadowed {
			out[k] = v
		}
	}

	return out
}
