// Package patch applies extracted dataset values to a parsed data file and
// collects notes about significant directional-split changes.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"

	"ratesync/internal/dataset"
	"ratesync/internal/jsdb"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// DefaultSplitTolerance is the largest entering/exiting difference that is
// not reported.
const DefaultSplitTolerance = 5

// Period names a peak-hour block.
type Period string

const (
	AM      Period = "AM"
	PM      Period = "PM"
	Weekday Period = "Weekday"
)

// Key returns the property name of the period's block in the data file.
func (p Period) Key() string {
	switch p {
	case AM:
		return "am_peak"
	case PM:
		return "pm_peak"
	default:
		return "weekday"
	}
}

// Scope controls how far a lookup may reach from the code's record.
type Scope int

const (
	// Strict: the peak block is a direct child of the record and the fields
	// are direct members of the block.
	Strict Scope = iota
	// Loose: the peak block and its fields may be nested anywhere below.
	Loose
)

// Note records a directional split whose old and new values differ by more
// than the tolerance.
type Note struct {
	Code        string
	Period      Period
	OldEntering int64
	OldExiting  int64
	NewEntering int64
	NewExiting  int64
}

func (n Note) String() string {
	return fmt.Sprintf("%s %s: %d/%d -> %d/%d",
		n.Code, n.Period, n.OldEntering, n.OldExiting, n.NewEntering, n.NewExiting)
}

// Change is one scalar whose text was replaced.
type Change struct {
	Code   string
	Period Period
	Field  string
	Old    string
	New    string
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s %s: %s -> %s", c.Code, c.Period, c.Field, c.Old, c.New)
}

// Options configure a patch run.
type Options struct {
	// SplitTolerance is the largest entering/exiting difference that is
	// not noted.
	SplitTolerance int64
	// Extended also patches r_squared, sample_size and the weekday block.
	Extended bool
	// KeepGoing skips codes with malformed values instead of aborting.
	KeepGoing bool
	Logger    *zap.Logger
}

// Result is the outcome of a patch run. The document itself is mutated in
// place.
type Result struct {
	Notes   []Note
	Changes []Change
	// Skipped lists dataset codes with no record in the document.
	Skipped []string
	// Err aggregates per-code errors in KeepGoing mode.
	Err error
}

// Patcher applies a dataset to a document.
type Patcher struct {
	opts   Options
	logger *zap.Logger
}

// DefaultOptions returns fail-fast options with the default tolerance.
func DefaultOptions() Options {
	return Options{SplitTolerance: DefaultSplitTolerance}
}

// New returns a Patcher.
func New(opts Options) *Patcher {
	if opts.SplitTolerance < 0 {
		opts.SplitTolerance = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Patcher{opts: opts, logger: logger}
}

// Apply patches doc with every entry of ds, in dataset order.
func (p *Patcher) Apply(ds *dataset.Dataset, doc *jsdb.Document) (*Result, error) {
	res := &Result{}
	var errs *multierror.Error
	for _, entry := range ds.Entries {
		if err := p.applyEntry(entry, doc, res); err != nil {
			if !p.opts.KeepGoing {
				return nil, err
			}
			p.logger.Warn("Skipping code", zap.String("code", entry.Code), zap.Error(err))
			errs = multierror.Append(errs, err)
		}
	}
	res.Err = errs.ErrorOrNil()
	return res, nil
}

// codePatch accumulates the edits for one code so that a malformed value
// leaves the document untouched for that code.
type codePatch struct {
	code    string
	edits   []pendingEdit
	notes   []Note
	changes []Change
}

type pendingEdit struct {
	period Period
	field  string
	value  *jsdb.Value
	text   string
}

func (cp *codePatch) set(period Period, field string, v *jsdb.Value, text string) {
	cp.edits = append(cp.edits, pendingEdit{period: period, field: field, value: v, text: text})
}

func (p *Patcher) applyEntry(entry dataset.Entry, doc *jsdb.Document, res *Result) error {
	record, found := doc.Lookup(entry.Code)
	if !found {
		p.logger.Debug("Code not found in document", zap.String("code", entry.Code))
		res.Skipped = append(res.Skipped, entry.Code)
		return nil
	}

	rec, err := entry.Record()
	if err != nil {
		return err
	}

	cp := &codePatch{code: entry.Code}
	if rec.AMPeak != nil {
		if err := p.planPeak(cp, record, AM, rec.AMPeak, []Scope{Strict, Loose}); err != nil {
			return err
		}
	}
	if rec.PMPeak != nil {
		if err := p.planPeak(cp, record, PM, rec.PMPeak, []Scope{Loose}); err != nil {
			return err
		}
	}
	if p.opts.Extended && rec.Weekday != nil {
		if err := p.planExtended(cp, record.FindObject(Weekday.Key()), Weekday, rec.Weekday, true); err != nil {
			return err
		}
	}

	for _, e := range cp.edits {
		old := e.value.Text()
		changed, err := doc.Set(e.value, e.text)
		if err != nil {
			return fmt.Errorf("code %s: %s %s: %w", cp.code, e.period, e.field, err)
		}
		if changed {
			cp.changes = append(cp.changes, Change{Code: cp.code, Period: e.period, Field: e.field, Old: old, New: e.text})
		}
	}
	res.Notes = append(res.Notes, cp.notes...)
	res.Changes = append(res.Changes, cp.changes...)
	if len(cp.changes) > 0 {
		p.logger.Debug("Patched code", zap.String("code", entry.Code), zap.Int("changes", len(cp.changes)))
	}
	return nil
}

// planPeak plans the rate and split edits for one period. Old values are
// read before any edit is applied.
func (p *Patcher) planPeak(cp *codePatch, record *jsdb.Object, period Period, stats *dataset.PeakStats, scopes []Scope) error {
	block := record.FindObject(period.Key())

	if stats.Rate != nil {
		if _, err := dataset.Float(*stats.Rate); err != nil {
			return &dataset.FieldError{Code: cp.code, Field: period.Key() + ".rate", Err: err}
		}
		if block != nil {
			if v := block.Scalar("rate"); v != nil && v.IsNumber() {
				cp.set(period, "rate", v, stats.Rate.String())
			}
		}
	}

	if stats.Entering != nil && stats.Exiting != nil {
		newEntering, err := dataset.Int(*stats.Entering)
		if err != nil {
			return &dataset.FieldError{Code: cp.code, Field: period.Key() + ".entering", Err: err}
		}
		newExiting, err := dataset.Int(*stats.Exiting)
		if err != nil {
			return &dataset.FieldError{Code: cp.code, Field: period.Key() + ".exiting", Err: err}
		}

		for _, scope := range scopes {
			pair, ok := findSplit(record, period, scope)
			if !ok {
				continue
			}
			if exceeds(pair.oldEntering, newEntering, p.opts.SplitTolerance) || exceeds(pair.oldExiting, newExiting, p.opts.SplitTolerance) {
				cp.notes = append(cp.notes, Note{
					Code:        cp.code,
					Period:      period,
					OldEntering: pair.oldEntering,
					OldExiting:  pair.oldExiting,
					NewEntering: newEntering,
					NewExiting:  newExiting,
				})
			}
			cp.set(period, "entering", pair.entering, stats.Entering.String())
			cp.set(period, "exiting", pair.exiting, stats.Exiting.String())
			break
		}
	}

	if p.opts.Extended {
		return p.planExtended(cp, block, period, stats, false)
	}
	return nil
}

// planExtended plans r_squared and sample_size edits, plus rate for the
// weekday block. Null targets are replaced; missing ones are not inserted.
func (p *Patcher) planExtended(cp *codePatch, block *jsdb.Object, period Period, stats *dataset.PeakStats, withRate bool) error {
	var fields []extField
	if withRate {
		fields = append(fields, extField{name: "rate", value: stats.Rate})
	}
	fields = append(fields,
		extField{name: "r_squared", value: stats.RSquared},
		extField{name: "sample_size", value: stats.SampleSize, integer: true},
	)

	for _, f := range fields {
		if f.value == nil {
			continue
		}
		var err error
		if f.integer {
			_, err = dataset.Int(*f.value)
		} else {
			_, err = dataset.Float(*f.value)
		}
		if err != nil {
			return &dataset.FieldError{Code: cp.code, Field: period.Key() + "." + f.name, Err: err}
		}
		if block == nil {
			continue
		}
		if v := block.Scalar(f.name); v != nil && (v.IsNumber() || v.IsNull()) {
			cp.set(period, f.name, v, f.value.String())
		}
	}
	return nil
}

type extField struct {
	name    string
	value   *json.Number
	integer bool
}

type split struct {
	entering    *jsdb.Value
	exiting     *jsdb.Value
	oldEntering int64
	oldExiting  int64
}

// findSplit locates the entering/exiting pair of a period within scope.
// Both values must be integer literals.
func findSplit(record *jsdb.Object, period Period, scope Scope) (split, bool) {
	var entering, exiting *jsdb.Value
	switch scope {
	case Strict:
		block := record.Object(period.Key())
		if block == nil {
			return split{}, false
		}
		entering, exiting = block.Scalar("entering"), block.Scalar("exiting")
	default:
		block := record.FindObject(period.Key())
		if block == nil {
			return split{}, false
		}
		entering, exiting = block.FindScalar("entering"), block.FindScalar("exiting")
	}
	if entering == nil || exiting == nil {
		return split{}, false
	}
	oldEntering, err := entering.Int()
	if err != nil {
		return split{}, false
	}
	oldExiting, err := exiting.Int()
	if err != nil {
		return split{}, false
	}
	return split{entering: entering, exiting: exiting, oldEntering: oldEntering, oldExiting: oldExiting}, true
}

func exceeds(old, new, tolerance int64) bool {
	d := old - new
	if d < 0 {
		d = -d
	}
	return d > tolerance
}

// IsFieldError reports whether err is, or wraps, a dataset field error.
func IsFieldError(err error) bool {
	var fe *dataset.FieldError
	return errors.As(err, &fe)
}
