package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"spikecurate/internal/ledger"
)

// parseInterval reads "start,end" in seconds.
func parseInterval(value string) (ledger.Interval, error) {
	startText, endText, ok := strings.Cut(strings.TrimSpace(value), ",")
	if !ok {
		return ledger.Interval{}, fmt.Errorf("interval %q: expected start,end", value)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(startText), 64)
	if err != nil {
		return ledger.Interval{}, fmt.Errorf("interval %q: %w", value, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(endText), 64)
	if err != nil {
		return ledger.Interval{}, fmt.Errorf("interval %q: %w", value, err)
	}
	if end < start {
		return ledger.Interval{}, fmt.Errorf("interval %q: end precedes start", value)
	}
	return ledger.Interval{start, end}, nil
}

// readJSONArg decodes value into v. A value starting with "@" names a file
// to read instead.
func readJSONArg(value string, v any) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	data := []byte(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		data = raw
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}
