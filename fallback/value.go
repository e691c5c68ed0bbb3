package fallback

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/tabquery/domain/model"
)

// normalize maps Go values onto the interpreter's value set: nil, int64,
// float64, string and bool.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, int64, float64, string, bool:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return int64(x) //nolint:gosec // row values never approach the overflow range
	case uint64:
		return int64(x) //nolint:gosec // row values never approach the overflow range
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// applyAffinity converts a value on its way into a column the way SQLite's
// REAL and TEXT column affinities do.
func applyAffinity(v any, typ model.ColumnType) any {
	switch typ {
	case model.ColumnTypeNumeric:
		switch x := v.(type) {
		case int64:
			return float64(x)
		case bool:
			if x {
				return float64(1)
			}
			return float64(0)
		case string:
			if f, ok := model.ParseNumeric(x); ok {
				return f
			}
		}
		return v
	default:
		switch x := v.(type) {
		case int64, float64:
			return toText(x)
		case bool:
			if x {
				return "1"
			}
			return "0"
		}
		return v
	}
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		return model.ParseNumeric(x)
	}
	return 0, false
}

func isNumberType(v any) bool {
	switch v.(type) {
	case int64, float64, bool:
		return true
	}
	return false
}

func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', 1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(v)
}

// compare orders two non-null values. Numbers sort before text; text that
// looks numeric compares numerically against a number.
func compare(a, b any) int {
	an, aNum := a, isNumberType(a)
	bn, bNum := b, isNumberType(b)
	if aNum && !bNum {
		if f, ok := toNumber(b); ok {
			bn, bNum = f, true
		}
	}
	if bNum && !aNum {
		if f, ok := toNumber(a); ok {
			an, aNum = f, true
		}
	}

	switch {
	case aNum && bNum:
		x, _ := toNumber(an)
		y, _ := toNumber(bn)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(toText(a), toText(b))
}

// truth evaluates v as a condition. known is false for NULL.
func truth(v any) (value, known bool) {
	if v == nil {
		return false, false
	}
	f, ok := toNumber(v)
	if !ok {
		return false, true
	}
	return f != 0, true
}

func boolValue(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

// likeMatch implements LIKE with % and _ wildcards, case-insensitive.
func likeMatch(s, pattern string) bool {
	return likeRunes([]rune(strings.ToLower(s)), []rune(strings.ToLower(pattern)))
}

func likeRunes(s, p []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			for len(p) > 0 && p[0] == '%' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeRunes(s[i:], p) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
		}
		s, p = s[1:], p[1:]
	}
	return len(s) == 0
}

func distinctKey(vals []any) string {
	var sb strings.Builder
	for _, v := range vals {
		fmt.Fprintf(&sb, "%T:%v\x00", v, v)
	}
	return sb.String()
}
