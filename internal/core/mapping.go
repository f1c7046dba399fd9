package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ResolveMapping decides which column feeds each placeholder.
//
// A non-empty explicit mapping is returned verbatim; columns it names that
// do not exist simply resolve to empty values later. Without one, each
// placeholder name is matched against the trimmed headers by exact,
// case-sensitive equality, trying the raw headers first and then the
// display aliases. Unmatched placeholders are left out of the mapping,
// which also resolves them to empty.
func ResolveMapping(placeholders []Placeholder, headers []string, explicit ColumnMapping, display []string) ColumnMapping {
	if len(explicit) > 0 {
		out := make(ColumnMapping, len(explicit))
		for k, v := range explicit {
			out[k] = v
		}
		return out
	}

	raw := make(map[string]string, len(headers))
	for _, h := range headers {
		if t := strings.TrimSpace(h); t != "" {
			raw[t] = h
		}
	}
	alias := make(map[string]string, len(display))
	for _, d := range display {
		if t := strings.TrimSpace(d); t != "" {
			alias[t] = d
		}
	}

	out := make(ColumnMapping)
	for _, p := range placeholders {
		if h, ok := raw[p.Name]; ok {
			out[p.Name] = h
		} else if d, ok := alias[p.Name]; ok {
			out[p.Name] = d
		}
	}
	return out
}

// RowRecord keys a row's values by column header. Raw headers are inserted
// first; display aliases are added as extra keys without overwriting them.
func RowRecord(data SheetData, row SourceRow) map[string]any {
	rec := make(map[string]any, len(data.Headers)*2)
	for i, h := range data.Headers {
		rec[strings.TrimSpace(h)] = valueAt(row.Values, i)
	}
	if !sameHeaders(data.Headers, data.Display) {
		for i, d := range data.Display {
			key := strings.TrimSpace(d)
			if key == "" {
				continue
			}
			if _, taken := rec[key]; !taken {
				rec[key] = valueAt(row.Values, i)
			}
		}
	}
	return rec
}

func valueAt(values []any, i int) any {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func sameHeaders(a, b []string) bool {
	if len(b) == 0 {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != strings.TrimSpace(b[i]) {
			return false
		}
	}
	return true
}

// SubstitutionTable builds the raw-token to value table for one row.
// Placeholders without a mapping, or mapped to an unknown column, get "".
func SubstitutionTable(tokens []Placeholder, mapping ColumnMapping, record map[string]any) map[string]string {
	table := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		col, ok := mapping[tok.Name]
		if !ok {
			table[tok.RawToken] = ""
			continue
		}
		table[tok.RawToken] = Stringify(record[strings.TrimSpace(col)])
	}
	return table
}

// Stringify renders a cell value for insertion into slide text.
// Whole numbers print without a decimal point; nil prints as "".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case time.Time:
		return val.Format("2006-01-02")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
