package interpreter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// decodeResult reads a JSON object of field name to values, keeping key order.
// A string value becomes a single-element list; any other non-list value
// becomes an empty list.
func decodeResult(body []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Result{}, errors.New("response is not a JSON object")
	}

	var result Result
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Result{}, fmt.Errorf("read field name: %w", err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Result{}, fmt.Errorf("read field %q: %w", key, err)
		}
		result.set(key, decodeValues(raw))
	}
	if _, err := dec.Token(); err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	return result, nil
}

func decodeValues(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			return []string{}
		}
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var mixed []any
	if err := json.Unmarshal(raw, &mixed); err == nil {
		values := make([]string, 0, len(mixed))
		for _, v := range mixed {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
		return values
	}
	return []string{}
}
