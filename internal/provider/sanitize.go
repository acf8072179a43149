package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var allowedTopLevel = map[string]struct{}{
	"document_type": {},
	"confidence":    {},
	"summary":       {},
	"fields":        {},
}

var allowedFieldKeys = map[string]struct{}{
	"name":            {},
	"value":           {},
	"confidence":      {},
	"source_location": {},
}

// SanitizeModelJSON removes or normalizes parts of a model response that break
// the strict response schema, so an otherwise usable answer still validates.
// We only touch shape, never field values:
//   - drops unknown top-level keys and unknown keys inside field objects
//   - drops null/empty optionals (summary, confidence, source_location)
//   - coerces string-encoded confidences to numbers
//   - drops field entries that are not objects or have no name
func SanitizeModelJSON(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string

	for k := range m {
		if _, ok := allowedTopLevel[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	if v, ok := m["summary"]; ok {
		s, isStr := v.(string)
		if !isStr || strings.TrimSpace(s) == "" {
			delete(m, "summary")
			dropped = append(dropped, "summary(empty)")
		}
	}

	if v, exists := m["confidence"]; exists {
		if conf, changed := coerceConfidence(v); changed {
			if conf == nil {
				delete(m, "confidence")
				dropped = append(dropped, "confidence(invalid)")
			} else {
				m["confidence"] = *conf
				dropped = append(dropped, "confidence(coerced)")
			}
		}
	}

	if fv, ok := m["fields"]; ok {
		arr, isArr := fv.([]any)
		if !isArr {
			delete(m, "fields")
			dropped = append(dropped, "fields(type)")
		} else {
			clean := make([]any, 0, len(arr))
			for i, item := range arr {
				obj, isObj := item.(map[string]any)
				if !isObj {
					dropped = append(dropped, fmt.Sprintf("fields[%d](type)", i))
					continue
				}
				name, _ := obj["name"].(string)
				if strings.TrimSpace(name) == "" {
					dropped = append(dropped, fmt.Sprintf("fields[%d](unnamed)", i))
					continue
				}
				for k := range obj {
					if _, ok := allowedFieldKeys[k]; !ok {
						delete(obj, k)
						dropped = append(dropped, fmt.Sprintf("fields[%d].%s(unknown)", i, k))
					}
				}
				if v, ok := obj["source_location"]; ok {
					if s, isStr := v.(string); !isStr || strings.TrimSpace(s) == "" {
						delete(obj, "source_location")
						dropped = append(dropped, fmt.Sprintf("fields[%d].source_location(empty)", i))
					}
				}
				if v, exists := obj["confidence"]; exists {
					if conf, changed := coerceConfidence(v); changed {
						if conf == nil {
							delete(obj, "confidence")
							dropped = append(dropped, fmt.Sprintf("fields[%d].confidence(invalid)", i))
						} else {
							obj["confidence"] = *conf
							dropped = append(dropped, fmt.Sprintf("fields[%d].confidence(coerced)", i))
						}
					}
				}
				clean = append(clean, obj)
			}
			m["fields"] = clean
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

// coerceConfidence returns (value, changed). A nil value with changed=true
// means the entry is unusable and should be dropped. Callers only invoke this
// for keys that exist, so an untyped nil is an explicit JSON null.
func coerceConfidence(v any) (*float64, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case float64:
		return nil, false
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f, true
		}
		return nil, true
	default:
		return nil, true
	}
}
