package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate_RoundTrip(t *testing.T) {
	d, err := ParseDate("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", d.String())
	assert.Equal(t, 2025, d.Year())
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 10, d.Day())
}

func TestParseDate_RejectsTimestamps(t *testing.T) {
	// Date-only is the contract; timestamp inputs are malformed.
	_, err := ParseDate("2025-03-10T00:00:00Z")
	assert.Error(t, err)

	_, err = ParseDate("03/10/2025")
	assert.Error(t, err)
}

func TestDate_Comparisons(t *testing.T) {
	a := MustParseDate("2024-12-31")
	b := MustParseDate("2025-01-01")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.BeforeOrEqual(a))
	assert.True(t, a.AfterOrEqual(a))
	assert.False(t, a.Equal(b))
}

func TestDate_AddDays_CrossesYearBoundary(t *testing.T) {
	d := MustParseDate("2025-01-01")
	assert.Equal(t, "2024-12-31", d.AddDays(-1).String())
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		Effective Date  `json:"effective"`
		End       *Date `json:"end"`
	}

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"effective":"2025-01-01","end":null}`), &p))
	assert.Equal(t, "2025-01-01", p.Effective.String())
	assert.Nil(t, p.End)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"effective":"2025-01-01","end":null}`, string(out))
}

func TestAgeOn(t *testing.T) {
	dob := MustParseDate("1984-03-01")

	// Birthday already passed this year.
	assert.Equal(t, 41, AgeOn(dob, MustParseDate("2025-06-15")))
	// Day before the birthday.
	assert.Equal(t, 40, AgeOn(dob, MustParseDate("2025-02-28")))
	// On the birthday itself.
	assert.Equal(t, 41, AgeOn(dob, MustParseDate("2025-03-01")))
	// Never negative.
	assert.Equal(t, 0, AgeOn(MustParseDate("2030-01-01"), MustParseDate("2025-01-01")))
}
