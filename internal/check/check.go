// Package check compares a data file against the extracted dataset and
// lists rate and directional-split discrepancies without changing anything.
package check

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"ratesync/internal/dataset"
	"ratesync/internal/jsdb"
	"ratesync/internal/patch"
)

// Default tolerances.
const (
	DefaultRateTolerancePct = 10.0
	DefaultSplitTolerance   = 10
)

// Options configure a check.
type Options struct {
	// RateTolerancePct is the relative rate difference, in percent of the
	// extracted rate, above which a rate is reported.
	RateTolerancePct float64
	// SplitTolerance is the entering-share difference in points above which
	// a split is reported.
	SplitTolerance int64
}

// Issue is one discrepancy.
type Issue struct {
	Code      string
	Period    patch.Period
	Field     string // "rate" or "entering"
	Database  string
	Extracted string
	Diff      float64
}

func (i Issue) String() string {
	var d string
	if i.Field == "rate" {
		d = strconv.FormatFloat(i.Diff, 'f', 1, 64) + "%"
	} else {
		d = strconv.FormatFloat(i.Diff, 'f', -1, 64) + " pts"
	}
	return fmt.Sprintf("%s %s %s: DB=%s, extracted=%s (diff: %s)",
		i.Code, i.Period, i.Field, i.Database, i.Extracted, d)
}

// Run checks every dataset code that has a record in doc. Values that
// cannot be read on either side are not compared. Malformed dataset records
// are returned as errors.
func Run(ds *dataset.Dataset, doc *jsdb.Document, opts Options) ([]Issue, error) {
	if opts.RateTolerancePct <= 0 {
		opts.RateTolerancePct = DefaultRateTolerancePct
	}
	if opts.SplitTolerance <= 0 {
		opts.SplitTolerance = DefaultSplitTolerance
	}

	var issues []Issue
	for _, entry := range ds.Entries {
		record, ok := doc.Lookup(entry.Code)
		if !ok {
			continue
		}
		rec, err := entry.Record()
		if err != nil {
			return nil, err
		}
		for _, pk := range []struct {
			period patch.Period
			stats  *dataset.PeakStats
		}{{patch.AM, rec.AMPeak}, {patch.PM, rec.PMPeak}} {
			if pk.stats == nil {
				continue
			}
			block := record.FindObject(pk.period.Key())
			if block == nil {
				continue
			}
			issues = append(issues, comparePeak(entry.Code, pk.period, pk.stats, block, opts)...)
		}
	}
	return issues, nil
}

func comparePeak(code string, period patch.Period, ext *dataset.PeakStats, block *jsdb.Object, opts Options) []Issue {
	var issues []Issue

	if ext.Rate != nil {
		extRate, err := dataset.Float(*ext.Rate)
		dbRate := block.Scalar("rate")
		if err == nil && extRate != 0 && dbRate != nil {
			if db, err := dbRate.Float(); err == nil && db != 0 {
				pct := math.Abs(extRate-db) / extRate * 100
				if pct > opts.RateTolerancePct {
					issues = append(issues, Issue{
						Code:      code,
						Period:    period,
						Field:     "rate",
						Database:  dbRate.Text(),
						Extracted: ext.Rate.String(),
						Diff:      pct,
					})
				}
			}
		}
	}

	if ext.Entering != nil {
		extEntering, err := dataset.Int(*ext.Entering)
		dbEntering := block.FindScalar("entering")
		if err == nil && extEntering != 0 && dbEntering != nil {
			if db, err := dbEntering.Int(); err == nil && db != 0 {
				d := extEntering - db
				if d < 0 {
					d = -d
				}
				if d > opts.SplitTolerance {
					issues = append(issues, Issue{
						Code:      code,
						Period:    period,
						Field:     "entering",
						Database:  splitText(dbEntering, block.FindScalar("exiting")),
						Extracted: ext.Entering.String() + "/" + numberText(ext.Exiting),
						Diff:      float64(d),
					})
				}
			}
		}
	}
	return issues
}

func splitText(entering, exiting *jsdb.Value) string {
	out := entering.Text() + "/"
	if exiting == nil {
		return out + "?"
	}
	return out + exiting.Text()
}

func numberText(n *json.Number) string {
	if n == nil {
		return "?"
	}
	return n.String()
}
