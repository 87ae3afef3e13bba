package timestamp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var want = time.Date(2024, 3, 9, 14, 30, 5, 123_000_000, time.UTC)

func TestUnmarshalJSON_Shapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339 nano", `"2024-03-09T14:30:05.123Z"`, want},
		{"rfc3339 offset", `"2024-03-09T16:30:05.123+02:00"`, want},
		{"epoch millis number", `1710000000000`, time.UnixMilli(1710000000000).UTC()},
		{"epoch millis string", `"1710000000000"`, time.UnixMilli(1710000000000).UTC()},
		{"server object", `{"seconds":1710000000,"nanoseconds":500}`, time.Unix(1710000000, 500).UTC()},
		{"underscored object", `{"_seconds":1710000000,"_nanoseconds":0}`, time.Unix(1710000000, 0).UTC()},
		{"null", `null`, time.Time{}},
		{"empty string", `""`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Time
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %v want %v", ts.Time, tt.want)
		})
	}
}

func TestUnmarshalJSON_Invalid(t *testing.T) {
	for _, in := range []string{`"yesterday"`, `{"foo":1}`, `true`} {
		var ts Time
		assert.Error(t, json.Unmarshal([]byte(in), &ts), in)
	}
}

func TestMarshalJSON_RoundTrip(t *testing.T) {
	local := want.In(time.FixedZone("CET", 3600))
	data, err := json.Marshal(From(local))
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-03-09T14:30:05.123Z"`, string(data))

	var back Time
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, want.Equal(back.Time))
}

func TestMarshalJSON_Zero(t *testing.T) {
	data, err := json.Marshal(Time{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
