package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
)

var (
	// ErrMalformed means the request was not a JSON object.
	ErrMalformed = errors.New("request must be JSON")
	// ErrMissingFields means a required field was absent.
	ErrMissingFields = errors.New("missing required fields")
)

// requiredFields must be present in every ingested payload. Any other
// field, including timestamp, is ignored.
var requiredFields = []string{
	"device_id",
	"cpu_usage",
	"heap_free",
	"min_heap_free",
	"task_count",
	"stack_hwm",
}

// IsJSONContentType accepts application/json and any +json media type.
func IsJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodePayload parses body as a JSON object keyed by field name.
func decodePayload(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, ErrMalformed
	}
	// trailing data after the object
	if dec.More() {
		return nil, ErrMalformed
	}
	return fields, nil
}

// checkRequired reports the first missing field. Values are not inspected.
func checkRequired(fields map[string]json.RawMessage) error {
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingFields, name)
		}
	}
	return nil
}

// toReading converts the required fields into a Reading. Numbers may be
// sent as JSON numbers, numeric strings or booleans; integer fields must
// hold integral values.
func toReading(fields map[string]json.RawMessage) (storage.Reading, error) {
	var (
		r   storage.Reading
		err error
	)

	if r.DeviceID, err = scalar(fields, "device_id"); err != nil {
		return storage.Reading{}, err
	}
	if r.CPUUsage, err = floatField(fields, "cpu_usage"); err != nil {
		return storage.Reading{}, err
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"heap_free", &r.HeapFree},
		{"min_heap_free", &r.MinHeapFree},
		{"task_count", &r.TaskCount},
		{"stack_hwm", &r.StackHWM},
	}
	for _, f := range ints {
		if *f.dst, err = intField(fields, f.name); err != nil {
			return storage.Reading{}, err
		}
	}

	return r, nil
}

// scalar returns the field as a JSON string or number literal. Booleans
// read as 1 and 0.
func scalar(fields map[string]json.RawMessage, name string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(fields[name]))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case nil:
		return "", fmt.Errorf("%s: value is null", name)
	default:
		return "", fmt.Errorf("%s: unsupported value %s", name, fields[name])
	}
}

func floatField(fields map[string]json.RawMessage, name string) (float64, error) {
	s, err := scalar(fields, name)
	if err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %q is not a number", name, s)
	}
	return f, nil
}

func intField(fields map[string]json.RawMessage, name string) (int64, error) {
	s, err := scalar(fields, name)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}

	// 1e3 or 512.0 are integral even though ParseInt refuses them
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%s: %q is not an integer", name, s)
	}
	return int64(f), nil
}
