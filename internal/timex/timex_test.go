package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", in: `"5m"`, want: 5 * time.Minute},
		{name: "nanoseconds", in: `3000000000`, want: 3 * time.Second},
		{name: "bad string", in: `"soon"`, wantErr: true},
		{name: "bool", in: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{Duration: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))
}

func TestFromEpoch_SecondsAndMillis(t *testing.T) {
	assert.Equal(t, int64(1700000000), FromEpoch(1700000000).Unix())
	assert.Equal(t, int64(1700000000), FromEpoch(1700000000123).Unix())
	assert.Equal(t, int64(123), FromEpoch(1700000000123).UnixMilli()%1000)
	assert.True(t, FromEpoch(0).IsZero())
	assert.True(t, FromEpoch(-5).IsZero())
}

func TestParseEpoch(t *testing.T) {
	got, err := ParseEpoch(" 1700000000 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got.Unix())

	_, err = ParseEpoch("NaN-ish")
	require.Error(t, err)

	_, err = ParseEpoch("0")
	require.Error(t, err)

	assert.Equal(t, "1700000000", FormatEpoch(got))
}

func TestEpoch_JSON(t *testing.T) {
	var payload struct {
		A Epoch `json:"a"`
		B Epoch `json:"b"`
		C Epoch `json:"c"`
		D Epoch `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":1700000000,"b":"1700000000000","c":null}`), &payload))

	assert.Equal(t, int64(1700000000), payload.A.Unix())
	assert.Equal(t, int64(1700000000), payload.B.Unix())
	assert.True(t, payload.C.IsZero())
	assert.True(t, payload.D.IsZero())

	b, err := json.Marshal(payload.A)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", string(b))

	b, err = json.Marshal(payload.C)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	require.Error(t, json.Unmarshal([]byte(`{"a":"tomorrow"}`), &payload))
}
