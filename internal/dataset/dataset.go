// Package dataset loads extracted trip-generation statistics keyed by
// land-use code.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// DataFormatError reports a dataset that is not a JSON object of objects.
type DataFormatError struct {
	Path string
	Err  error
}

func (e *DataFormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid dataset: %v", e.Err)
	}
	return fmt.Sprintf("invalid dataset %s: %v", e.Path, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// FieldError reports a record field that cannot be used as a number.
type FieldError struct {
	Code  string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("code %s: field %s: %v", e.Code, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// PeakStats holds the statistics for one period. Nil fields were absent or
// null in the dataset. Numbers keep their JSON spelling.
type PeakStats struct {
	Rate       *json.Number `json:"rate"`
	Entering   *json.Number `json:"entering"`
	Exiting    *json.Number `json:"exiting"`
	RSquared   *json.Number `json:"r_squared"`
	SampleSize *json.Number `json:"sample_size"`
}

// Record is the extracted data for one code.
type Record struct {
	AMPeak  *PeakStats `json:"am_peak"`
	PMPeak  *PeakStats `json:"pm_peak"`
	Weekday *PeakStats `json:"weekday"`
}

// Entry is a code and its undecoded record.
type Entry struct {
	Code string
	Raw  json.RawMessage
}

// Record decodes the entry. Type errors surface here rather than at load
// time so one bad code does not hide the rest of the dataset.
func (e Entry) Record() (*Record, error) {
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(e.Raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, &FieldError{Code: e.Code, Field: fieldOf(err), Err: err}
	}
	return &rec, nil
}

func fieldOf(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field
	}
	return "record"
}

// Dataset is the ordered set of entries; order follows the file.
type Dataset struct {
	Entries []Entry
	index   map[string]int
}

// Len returns the number of codes.
func (d *Dataset) Len() int { return len(d.Entries) }

// Get returns the entry for code.
func (d *Dataset) Get(code string) (Entry, bool) {
	i, ok := d.index[code]
	if !ok {
		return Entry{}, false
	}
	return d.Entries[i], true
}

// Load reads and parses the dataset at path.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	ds, err := Parse(data)
	if err != nil {
		var dfe *DataFormatError
		if errors.As(err, &dfe) {
			dfe.Path = path
		}
		return nil, err
	}
	return ds, nil
}

// Parse decodes a dataset from memory, keeping key order.
func Parse(data []byte) (*Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, &DataFormatError{Err: err}
	}

	ds := &Dataset{index: make(map[string]int)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &DataFormatError{Err: err}
		}
		code, ok := tok.(string)
		if !ok {
			return nil, &DataFormatError{Err: fmt.Errorf("expected object key, got %v", tok)}
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, &DataFormatError{Err: fmt.Errorf("code %s: %w", code, err)}
		}
		if len(raw) == 0 || raw[0] != '{' {
			return nil, &DataFormatError{Err: fmt.Errorf("code %s: expected object, got %s", code, abbreviate(raw))}
		}
		if i, dup := ds.index[code]; dup {
			ds.Entries[i].Raw = raw
			continue
		}
		ds.index[code] = len(ds.Entries)
		ds.Entries = append(ds.Entries, Entry{Code: code, Raw: raw})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, &DataFormatError{Err: err}
	}
	if _, err := dec.Token(); err == nil {
		return nil, &DataFormatError{Err: errors.New("trailing data after top-level object")}
	}
	return ds, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func abbreviate(raw json.RawMessage) string {
	const max = 32
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

// Int parses n as a non-negative integer.
func Int(n json.Number) (int64, error) {
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", n.String())
	}
	if v < 0 {
		return 0, fmt.Errorf("negative count: %d", v)
	}
	return v, nil
}

// Float parses n as a finite float.
func Float(n json.Number) (float64, error) {
	v, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", n.String())
	}
	return v, nil
}
