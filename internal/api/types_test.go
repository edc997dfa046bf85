package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Money
		err  bool
	}{
		{`150000`, 150000, false},
		{`150000.4`, 150000, false},
		{`150000.5`, 150001, false},
		{`"25000"`, 25000, false},
		{`null`, 0, false},
		{`-1`, 0, true},
		{`"abc"`, 0, true},
	}
	for _, tt := range tests {
		var m Money
		err := json.Unmarshal([]byte(tt.in), &m)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, m, tt.in)
	}
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "0 đ", Money(0).String())
	assert.Equal(t, "999 đ", Money(999).String())
	assert.Equal(t, "1.000 đ", Money(1000).String())
	assert.Equal(t, "1.250.000 đ", Money(1250000).String())
}

func TestLocalTime_RoundTripKeepsWallClock(t *testing.T) {
	var lt LocalTime
	require.NoError(t, json.Unmarshal([]byte(`"2024-06-10T08:00:00"`), &lt))
	assert.Equal(t, "2024-06-10", lt.DateKey())
	assert.Equal(t, "08:00", lt.Clock())

	out, err := json.Marshal(lt)
	require.NoError(t, err)
	assert.Equal(t, `"2024-06-10T08:00:00.000"`, string(out))

	zoned, err := ParseLocalTime("2024-06-10T08:00:00+07:00")
	require.NoError(t, err)
	assert.Equal(t, "08:00", zoned.Clock(), "wall clock must not be shifted to UTC")

	ict := time.FixedZone("ICT", 7*3600)
	assert.Equal(t, 8, lt.In(ict).Hour())
}

func TestLocalTime_NullAndGarbage(t *testing.T) {
	var lt LocalTime
	require.NoError(t, json.Unmarshal([]byte(`null`), &lt))
	assert.True(t, lt.IsZero())

	out, err := json.Marshal(LocalTime{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	assert.Error(t, json.Unmarshal([]byte(`"tomorrow"`), &lt))
}

func TestRatingStars(t *testing.T) {
	assert.Equal(t, "★★★☆☆", RatingSummary{Average: 3.2}.Stars())
	assert.Equal(t, "★★★½☆", RatingSummary{Average: 3.5}.Stars())
	assert.Equal(t, "★★★★★", RatingSummary{Average: 5}.Stars())
	assert.Equal(t, "★★★★★", RatingSummary{Average: 7}.Stars())
}

func TestInvoicePaid(t *testing.T) {
	assert.True(t, Invoice{Status: "True"}.Paid())
	assert.True(t, Invoice{Status: " true"}.Paid())
	assert.False(t, Invoice{Status: "False"}.Paid())
	assert.False(t, Invoice{}.Paid())
}

func TestServiceCategory(t *testing.T) {
	assert.True(t, CategoryHomeVisit.RequiresAddress())
	assert.False(t, CategoryOnline.RequiresAddress())
	assert.Equal(t, "online", CategoryOnline.String())
}
