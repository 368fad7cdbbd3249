package patch

import (
	"fmt"
	"strings"
	"testing"

	"ratesync/internal/dataset"
	"ratesync/internal/jsdb"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, data, src string) (*dataset.Dataset, *jsdb.Document) {
	t.Helper()
	ds, err := dataset.Parse([]byte(data))
	require.NoError(t, err)
	doc, err := jsdb.Parse([]byte(src))
	require.NoError(t, err)
	return ds, doc
}

func apply(t *testing.T, ds *dataset.Dataset, doc *jsdb.Document) *Result {
	t.Helper()
	res, err := New(DefaultOptions()).Apply(ds, doc)
	require.NoError(t, err)
	return res
}

func TestApply_EndToEnd(t *testing.T) {
	src := `const DB = { "101": { am_peak: { rate: 1.8, entering: 50, exiting: 10 } } };`
	ds, doc := setup(t, `{"101": {"am_peak": {"rate": 2.5, "entering": 80, "exiting": 20}}}`, src)

	res := apply(t, ds, doc)

	assert.Equal(t,
		`const DB = { "101": { am_peak: { rate: 2.5, entering: 80, exiting: 20 } } };`,
		string(doc.Bytes()))
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "101 AM: 50/10 -> 80/20", res.Notes[0].String())
	assert.Len(t, res.Changes, 3)
	assert.Empty(t, res.Skipped)
	assert.NoError(t, res.Err)
}

func TestApply_EndToEndBareRecord(t *testing.T) {
	src := `"101": { am_peak: { rate: 1.8, entering: 50, exiting: 10 } }`
	ds, doc := setup(t, `{"101": {"am_peak": {"rate": 2.5, "entering": 80, "exiting": 20}}}`, src)

	res := apply(t, ds, doc)

	assert.Equal(t, `"101": { am_peak: { rate: 2.5, entering: 80, exiting: 20 } }`, string(doc.Bytes()))
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "101 AM: 50/10 -> 80/20", res.Notes[0].String())
	assert.Empty(t, res.Skipped)
}

func TestApply_RateOnlyChangesOneSpan(t *testing.T) {
	src := `var DB = {
  "210": {
    name: "Housing", // rate: 9
    am_peak: { rate: 0.74, entering: 25, exiting: 75, sample_size: 10 },
    pm_peak: { rate: 0.99, entering: 63, exiting: 37 }
  },
  "220": { am_peak: { rate: 0.74 } }
};`
	ds, doc := setup(t, `{"210": {"am_peak": {"rate": 0.70}}}`, src)

	res := apply(t, ds, doc)

	want := strings.Replace(src, "rate: 0.74, entering: 25", "rate: 0.70, entering: 25", 1)
	assert.Equal(t, want, string(doc.Bytes()))
	assert.Empty(t, res.Notes)
	assert.Equal(t, []Change{{Code: "210", Period: AM, Field: "rate", Old: "0.74", New: "0.70"}}, res.Changes)
}

func TestApply_AbsentCodeLeavesDocumentUnchanged(t *testing.T) {
	src := `x = { "110": { am_peak: { rate: 1, entering: 50, exiting: 50 } } }`
	ds, doc := setup(t, `{"999": {"am_peak": {"rate": 3, "entering": 10, "exiting": 90}}}`, src)

	res := apply(t, ds, doc)

	assert.Equal(t, src, string(doc.Bytes()))
	assert.False(t, doc.Changed())
	assert.Empty(t, res.Notes)
	assert.Equal(t, []string{"999"}, res.Skipped)
}

func TestApply_ToleranceBoundary(t *testing.T) {
	tests := []struct {
		name     string
		entering int
		exiting  int
		wantNote bool
	}{
		{"no change", 50, 50, false},
		{"difference of 5", 55, 45, false},
		{"difference of 6 entering", 56, 50, true},
		{"difference of 6 exiting", 50, 44, true},
		{"negative difference of 6", 44, 56, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, doc := setup(t,
				fmt.Sprintf(`{"1": {"pm_peak": {"entering": %d, "exiting": %d}}}`, tt.entering, tt.exiting),
				`x = { "1": { pm_peak: { entering: 50, exiting: 50 } } }`)

			res := apply(t, ds, doc)
			assert.Equal(t, tt.wantNote, len(res.Notes) == 1)
			assert.Contains(t, string(doc.Bytes()), fmt.Sprintf("entering: %d, exiting: %d", tt.entering, tt.exiting))
		})
	}
}

func TestApply_CustomTolerance(t *testing.T) {
	ds, doc := setup(t, `{"1": {"am_peak": {"entering": 60, "exiting": 40}}}`,
		`x = { "1": { am_peak: { entering: 50, exiting: 50 } } }`)

	res, err := New(Options{SplitTolerance: 10}).Apply(ds, doc)
	require.NoError(t, err)
	assert.Empty(t, res.Notes)

	ds, doc = setup(t, `{"1": {"am_peak": {"entering": 51, "exiting": 49}}}`,
		`x = { "1": { am_peak: { entering: 50, exiting: 50 } } }`)
	res, err = New(Options{SplitTolerance: -3}).Apply(ds, doc)
	require.NoError(t, err)
	assert.Len(t, res.Notes, 1, "negative tolerance is treated as zero")
}

func TestApply_Idempotent(t *testing.T) {
	data := `{
		"101": {"am_peak": {"rate": 2.5, "entering": 80, "exiting": 20}, "pm_peak": {"rate": 3.1, "entering": 30, "exiting": 70}},
		"102": {"pm_peak": {"entering": 5, "exiting": 95}}
	}`
	src := `x = {
  "101": { am_peak: { rate: 1.8, entering: 50, exiting: 10 }, pm_peak: { rate: 2, entering: 60, exiting: 40 } },
  "102": { details: { pm_peak: { counts: { entering: 50, exiting: 50 } } } }
}`
	ds, doc := setup(t, data, src)
	first := apply(t, ds, doc)
	require.Len(t, first.Notes, 3)

	patched := doc.Bytes()
	doc2, err := jsdb.Parse(patched)
	require.NoError(t, err)
	second := apply(t, ds, doc2)

	assert.Empty(t, second.Notes)
	assert.Empty(t, second.Changes)
	assert.Equal(t, string(patched), string(doc2.Bytes()))
}

func TestApply_AMStrictBeforeLoose(t *testing.T) {
	// The strict pair sits directly in am_peak; a nested pair must not be
	// preferred over it.
	src := `x = { "1": { am_peak: { detail: { entering: 1, exiting: 2 }, entering: 50, exiting: 50 } } }`
	ds, doc := setup(t, `{"1": {"am_peak": {"entering": 70, "exiting": 30}}}`, src)

	res := apply(t, ds, doc)

	assert.Equal(t,
		`x = { "1": { am_peak: { detail: { entering: 1, exiting: 2 }, entering: 70, exiting: 30 } } }`,
		string(doc.Bytes()))
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "1 AM: 50/50 -> 70/30", res.Notes[0].String())
}

func TestApply_AMFallsBackToLoose(t *testing.T) {
	src := `x = { "1": { periods: { am_peak: { split: { entering: 50, exiting: 50 } } } } }`
	ds, doc := setup(t, `{"1": {"am_peak": {"entering": 70, "exiting": 30}}}`, src)

	res := apply(t, ds, doc)

	assert.Equal(t,
		`x = { "1": { periods: { am_peak: { split: { entering: 70, exiting: 30 } } } } }`,
		string(doc.Bytes()))
	require.Len(t, res.Notes, 1)
}

func TestApply_PMLooseOnly(t *testing.T) {
	src := `x = { "1": { pm_peak: { split: { entering: 40, exiting: 60 } } } }`
	ds, doc := setup(t, `{"1": {"pm_peak": {"entering": 41, "exiting": 59}}}`, src)

	res := apply(t, ds, doc)

	assert.Contains(t, string(doc.Bytes()), "entering: 41, exiting: 59")
	assert.Empty(t, res.Notes)
}

func TestApply_LookupStaysInsideRecord(t *testing.T) {
	src := `x = {
  "1": { name: "no peaks" },
  "2": { am_peak: { rate: 5, entering: 50, exiting: 50 } }
}`
	ds, doc := setup(t, `{"1": {"am_peak": {"rate": 9, "entering": 90, "exiting": 10}}}`, src)

	res := apply(t, ds, doc)

	assert.Equal(t, src, string(doc.Bytes()))
	assert.Empty(t, res.Notes)
	assert.Empty(t, res.Changes)
}

func TestApply_NotesUseValuesBeforeMutation(t *testing.T) {
	// AM has no direct split, so both periods resolve to the same nested
	// pair. The PM note must compare against the text as parsed, not the
	// values planned for AM.
	src := `x = { "1": { am_peak: { pm_peak: { entering: 50, exiting: 50 } } } }`
	ds, doc := setup(t, `{"1": {
		"am_peak": {"entering": 90, "exiting": 10},
		"pm_peak": {"entering": 60, "exiting": 40}
	}}`, src)

	res := apply(t, ds, doc)

	want := []Note{
		{Code: "1", Period: AM, OldEntering: 50, OldExiting: 50, NewEntering: 90, NewExiting: 10},
		{Code: "1", Period: PM, OldEntering: 50, OldExiting: 50, NewEntering: 60, NewExiting: 40},
	}
	if diff := cmp.Diff(want, res.Notes); diff != "" {
		t.Errorf("notes mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, string(doc.Bytes()), "entering: 60, exiting: 40")
}

func TestApply_OnlyNumericTargetsReplaced(t *testing.T) {
	src := `x = { "1": { am_peak: { rate: null, entering: "50", exiting: 50 } } }`
	ds, doc := setup(t, `{"1": {"am_peak": {"rate": 2, "entering": 70, "exiting": 30}}}`, src)

	res := apply(t, ds, doc)

	assert.Equal(t, src, string(doc.Bytes()))
	assert.Empty(t, res.Notes)
}

func TestApply_NotesInDatasetOrder(t *testing.T) {
	src := `x = {
  "a": { am_peak: { entering: 0, exiting: 100 }, pm_peak: { entering: 0, exiting: 100 } },
  "b": { am_peak: { entering: 0, exiting: 100 } }
}`
	ds, doc := setup(t, `{
		"b": {"am_peak": {"entering": 50, "exiting": 50}},
		"a": {"am_peak": {"entering": 50, "exiting": 50}, "pm_peak": {"entering": 50, "exiting": 50}}
	}`, src)

	res := apply(t, ds, doc)

	var got []string
	for _, n := range res.Notes {
		got = append(got, n.String())
	}
	want := []string{"b AM: 0/100 -> 50/50", "a AM: 0/100 -> 50/50", "a PM: 0/100 -> 50/50"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notes mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_FailFast(t *testing.T) {
	src := `x = { "1": { am_peak: { rate: 1 } }, "2": { am_peak: { rate: 1 } } }`
	ds, doc := setup(t, `{"1": {"am_peak": {"rate": "1e"}}, "2": {"am_peak": {"rate": 2}}}`, src)

	_, err := New(DefaultOptions()).Apply(ds, doc)
	require.Error(t, err)
	assert.True(t, IsFieldError(err))
	assert.False(t, doc.Changed())
}

func TestApply_FailFastOnNegativeCount(t *testing.T) {
	src := `x = { "1": { am_peak: { rate: 1, entering: 5, exiting: 5 } } }`
	ds, doc := setup(t, `{"1": {"am_peak": {"rate": 2, "entering": -5, "exiting": 5}}}`, src)

	_, err := New(DefaultOptions()).Apply(ds, doc)
	require.Error(t, err)
	assert.True(t, IsFieldError(err))
	assert.Contains(t, err.Error(), "am_peak.entering")
	assert.Equal(t, src, string(doc.Bytes()), "no partial edits for a failed code")
}

func TestApply_KeepGoing(t *testing.T) {
	src := `x = { "1": { am_peak: { rate: 1 } }, "2": { am_peak: { rate: 1 } }, "3": { am_peak: { rate: 1 } } }`
	ds, doc := setup(t, `{
		"1": {"am_peak": {"rate": 1.5}},
		"2": {"am_peak": {"entering": 4.5, "exiting": 1}},
		"3": {"am_peak": {"rate": 3}}
	}`, src)

	opts := DefaultOptions()
	opts.KeepGoing = true
	res, err := New(opts).Apply(ds, doc)
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.True(t, IsFieldError(res.Err))
	assert.Equal(t, `x = { "1": { am_peak: { rate: 1.5 } }, "2": { am_peak: { rate: 1 } }, "3": { am_peak: { rate: 3 } } }`,
		string(doc.Bytes()))
}

func TestApply_Extended(t *testing.T) {
	src := `x = { "1": {
  am_peak: { rate: 1, entering: 50, exiting: 50, r_squared: null, sample_size: 3 },
  weekday: { rate: 10, r_squared: 0.5 }
} }`
	data := `{"1": {
		"am_peak": {"rate": 1, "r_squared": 0.81, "sample_size": 12},
		"weekday": {"rate": 9.44, "r_squared": 0.9, "sample_size": 30}
	}}`

	ds, doc := setup(t, data, src)
	res := apply(t, ds, doc)
	assert.Empty(t, res.Changes, "extended fields are off by default")

	ds, doc = setup(t, data, src)
	opts := DefaultOptions()
	opts.Extended = true
	res, err := New(opts).Apply(ds, doc)
	require.NoError(t, err)

	assert.Equal(t, `x = { "1": {
  am_peak: { rate: 1, entering: 50, exiting: 50, r_squared: 0.81, sample_size: 12 },
  weekday: { rate: 9.44, r_squared: 0.9 }
} }`, string(doc.Bytes()))
	assert.Len(t, res.Changes, 4)
}

func TestApply_ExtendedRejectsFractionalSampleSize(t *testing.T) {
	ds, doc := setup(t, `{"1": {"am_peak": {"sample_size": 2.5}}}`,
		`x = { "1": { am_peak: { sample_size: 2 } } }`)

	opts := DefaultOptions()
	opts.Extended = true
	_, err := New(opts).Apply(ds, doc)
	assert.True(t, IsFieldError(err))
}

func TestChangeString(t *testing.T) {
	c := Change{Code: "820", Period: PM, Field: "rate", Old: "3.4", New: "3.40"}
	assert.Equal(t, "820 PM rate: 3.4 -> 3.40", c.String())
	assert.Equal(t, "weekday", Weekday.Key())
}
