package passviz

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DialectOpCount is one element of an entry's dialectOpCounts array.
type DialectOpCount struct {
	DialectName string `json:"dialectName"`
	OpCount     int    `json:"opCount"`
}

// Entry is the census recorded after one pass.
type Entry struct {
	PassName        string           `json:"passName"`
	DialectOpCounts []DialectOpCount `json:"dialectOpCounts"`
}

// ParseReport decodes a finished document. Unknown or missing members are
// rejected so that the result mirrors the emitted schema exactly. A census
// never holds null members or empty dialects, so those are rejected too.
func ParseReport(data []byte) ([]Entry, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("report is not an array of objects: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("report is null, want an array")
	}
	entries := make([]Entry, 0, len(raw))
	for i, obj := range raw {
		if err := exactKeys(obj, "passName", "dialectOpCounts"); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if err := notNull(obj); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		var e Entry
		if err := json.Unmarshal(obj["passName"], &e.PassName); err != nil {
			return nil, fmt.Errorf("entry %d: passName: %w", i, err)
		}
		var counts []map[string]json.RawMessage
		if err := json.Unmarshal(obj["dialectOpCounts"], &counts); err != nil {
			return nil, fmt.Errorf("entry %d: dialectOpCounts: %w", i, err)
		}
		e.DialectOpCounts = make([]DialectOpCount, 0, len(counts))
		for j, c := range counts {
			if err := exactKeys(c, "dialectName", "opCount"); err != nil {
				return nil, fmt.Errorf("entry %d count %d: %w", i, j, err)
			}
			if err := notNull(c); err != nil {
				return nil, fmt.Errorf("entry %d count %d: %w", i, j, err)
			}
			var dc DialectOpCount
			if err := json.Unmarshal(c["dialectName"], &dc.DialectName); err != nil {
				return nil, fmt.Errorf("entry %d count %d: dialectName: %w", i, j, err)
			}
			if err := json.Unmarshal(c["opCount"], &dc.OpCount); err != nil {
				return nil, fmt.Errorf("entry %d count %d: opCount: %w", i, j, err)
			}
			if dc.DialectName == "" {
				return nil, fmt.Errorf("entry %d count %d: empty dialectName", i, j)
			}
			if dc.OpCount < 1 {
				return nil, fmt.Errorf("entry %d count %d: opCount %d for %q", i, j, dc.OpCount, dc.DialectName)
			}
			e.DialectOpCounts = append(e.DialectOpCounts, dc)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func exactKeys(obj map[string]json.RawMessage, keys ...string) error {
	if len(obj) != len(keys) {
		return fmt.Errorf("expected members %v, got %d members", keys, len(obj))
	}
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return fmt.Errorf("missing member %q", k)
		}
	}
	return nil
}

func notNull(obj map[string]json.RawMessage) error {
	for k, v := range obj {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("member %q is null", k)
		}
	}
	return nil
}
