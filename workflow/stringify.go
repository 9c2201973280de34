package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// orderedMap is an insertion-ordered map wrapper that Stringify renders
// with its keys in insertion order. Expression evaluation does not build
// one: object literals evaluate to map[string]any, whose keys render sorted.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: map[string]any{}}
}

func (o *orderedMap) set(k string, v any) {
	if _, exists := o.values[k]; !exists {
		o.keys = append(o.keys, k)
	}
	o.values[k] = v
}

// Stringify renders a value for interpolation into prompt text. A bare
// bool renders as "True"/"False"; the same bool nested inside a list or
// map renders JSON-conventionally as "true"/"false"/"null".
// Non-JSON-representable values fall back to fmt's default string form.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []any:
		return stringifyContainer(val)
	case map[string]any:
		return stringifyContainer(val)
	case *orderedMap:
		return stringifyContainer(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func stringifyContainer(v any) string {
	var b strings.Builder
	writeJSONValue(&b, v)
	return b.String()
}

func writeJSONValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(val))
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case []any:
		b.WriteByte('[')
		for i, el := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONValue(b, el)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeJSONValue(b, val[k])
		}
		b.WriteByte('}')
	case *orderedMap:
		b.WriteByte('{')
		for i, k := range val.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeJSONValue(b, val.values[k])
		}
		b.WriteByte('}')
	default:
		b.WriteString(strconv.Quote(fmt.Sprintf("%v", val)))
	}
}
