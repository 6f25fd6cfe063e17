package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trialRows() []map[string]any {
	return []map[string]any{
		{"group": "A", "value": 10.0, "enrolled": "2024-01-05", "active": true},
		{"group": "A", "value": 12.0, "enrolled": "2024-01-06", "active": false},
		{"group": "B", "value": 20.0, "enrolled": "2024-01-07", "active": true},
		{"group": "B", "value": 22.0, "enrolled": "2024-01-08", "active": true},
	}
}

func TestFromRecordsInference(t *testing.T) {
	f, err := FromRecords(trialRows())
	require.NoError(t, err)

	assert.Equal(t, 4, f.NumRows())
	assert.Equal(t, 4, f.NumCols())
	// Columns come out in lexical order: JSON objects carry no key order.
	assert.Equal(t, []string{"active", "enrolled", "group", "value"}, f.Columns())

	assert.Equal(t, Boolean, f.Col("active").Kind())
	assert.Equal(t, Datetime, f.Col("enrolled").Kind())
	assert.Equal(t, Categorical, f.Col("group").Kind())
	assert.Equal(t, Numeric, f.Col("value").Kind())
}

func TestFromRecordsCoercesNumericStrings(t *testing.T) {
	rows := []map[string]any{
		{"age": "45"},
		{"age": "52"},
		{"age": "38"},
	}
	f, err := FromRecords(rows)
	require.NoError(t, err)

	c := f.Col("age")
	assert.Equal(t, Numeric, c.Kind())
	assert.InDelta(t, 45.0, c.Mean(), 1e-9)
	// Same data after a store round trip must agree.
	again, err := FromRecordsWithSchema(rows, f.Schema())
	require.NoError(t, err)
	assert.InDelta(t, 45.0, again.Col("age").Mean(), 1e-9)
}

func TestFromRecordsMissingValues(t *testing.T) {
	f, err := FromRecords([]map[string]any{
		{"score": 1.0},
		{"score": nil},
		{"score": "NA"},
		{"score": 3.0},
	})
	require.NoError(t, err)

	c := f.Col("score")
	assert.Equal(t, Numeric, c.Kind())
	assert.Equal(t, 4, c.Len())
	assert.True(t, c.IsMissing(1))
	assert.True(t, c.IsMissing(2))
	assert.Equal(t, []float64{1, 3}, c.Float())
	assert.InDelta(t, 2.0, c.Mean(), 1e-9)
}

func TestFromRecordsRejectsBadShapes(t *testing.T) {
	_, err := FromRecords(nil)
	assert.Error(t, err)

	_, err = FromRecords([]map[string]any{{}})
	assert.Error(t, err)

	_, err = FromRecords([]map[string]any{
		{"a": 1.0, "b": 2.0},
		{"a": 1.0},
	})
	assert.Error(t, err)
}

func TestMixedColumnFallsBackToCategorical(t *testing.T) {
	f, err := FromRecords([]map[string]any{
		{"code": "12"},
		{"code": "twelve"},
	})
	require.NoError(t, err)
	assert.Equal(t, Categorical, f.Col("code").Kind())
}

func TestAllMissingColumnIsCategorical(t *testing.T) {
	f, err := FromRecords([]map[string]any{
		{"note": nil},
		{"note": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, Categorical, f.Col("note").Kind())
	assert.Empty(t, f.Col("note").Strings())
}

func TestLevelsFirstAppearanceOrder(t *testing.T) {
	f, err := FromRecords([]map[string]any{
		{"arm": "placebo"},
		{"arm": "treatment"},
		{"arm": "placebo"},
		{"arm": "control"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"placebo", "treatment", "control"}, f.Levels("arm"))
}

func TestFilter(t *testing.T) {
	f, err := FromRecords(trialRows())
	require.NoError(t, err)

	a := f.Filter("group", "A")
	assert.Equal(t, 2, a.NumRows())
	assert.InDelta(t, 11.0, a.Col("value").Mean(), 1e-9)

	b := f.Filter("group", "B")
	assert.InDelta(t, 21.0, b.Col("value").Mean(), 1e-9)

	// Numeric filter values compare through their text rendering.
	ten := f.Filter("value", 10)
	assert.Equal(t, 1, ten.NumRows())

	none := f.Filter("group", "Z")
	assert.Equal(t, 0, none.NumRows())
	assert.Equal(t, 4, none.NumCols())
}

func TestColPanicsWithColumnList(t *testing.T) {
	f, err := FromRecords(trialRows())
	require.NoError(t, err)

	assert.PanicsWithValue(t,
		`unknown column "dose" (have active, enrolled, group, value)`,
		func() { f.Col("dose") })

	_, ok := f.Lookup("dose")
	assert.False(t, ok)
}

func TestBooleanFloats(t *testing.T) {
	f, err := FromRecords([]map[string]any{
		{"responded": true},
		{"responded": false},
		{"responded": true},
	})
	require.NoError(t, err)

	c := f.Col("responded")
	assert.Equal(t, Boolean, c.Kind())
	assert.Equal(t, []float64{1, 0, 1}, c.Float())
}

func TestDatetimeParsing(t *testing.T) {
	f, err := FromRecords([]map[string]any{
		{"visit": "2024-03-01"},
		{"visit": "2024-03-15"},
	})
	require.NoError(t, err)

	c := f.Col("visit")
	require.Equal(t, Datetime, c.Kind())
	times := c.Times()
	require.Len(t, times, 2)
	assert.Equal(t, time.March, times[0].Month())
	assert.Equal(t, 15, times[1].Day())
}

func TestFloatPanicsOnCategorical(t *testing.T) {
	f, err := FromRecords([]map[string]any{{"arm": "A"}})
	require.NoError(t, err)
	assert.Panics(t, func() { f.Col("arm").Float() })
}

func TestDescribe(t *testing.T) {
	f, err := FromRecords(trialRows())
	require.NoError(t, err)

	out := f.Describe()
	assert.Contains(t, out, "4 rows x 4 columns")
	assert.Contains(t, out, "value (numeric): n=4 mean=16")
	assert.Contains(t, out, "group (categorical): 2 levels")
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{Numeric, Categorical, Datetime, Boolean} {
		assert.Equal(t, k, KindFromString(k.String()))
	}
	assert.Equal(t, Categorical, KindFromString("mystery"))
}
