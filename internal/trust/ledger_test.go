package trust

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholds_TierOf(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		score int
		want  Tier
	}{
		{0, TierNone},
		{99, TierNone},
		{100, TierLow},
		{299, TierLow},
		{300, TierMedium},
		{599, TierMedium},
		{600, TierHigh},
		{1 << 20, TierHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.TierOf(tt.score), "score %d", tt.score)
	}
}

func TestThresholds_Validate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Low: 0, Medium: 1, High: 2}.Validate())
	assert.Error(t, Thresholds{Low: 10, Medium: 10, High: 20}.Validate())
	assert.Error(t, Thresholds{Low: 10, Medium: 30, High: 20}.Validate())
}

func TestLedger_CreditIsMonotone(t *testing.T) {
	l := NewLedger(DefaultThresholds())
	var r Record

	assert.False(t, l.Credit(&r, 0))
	assert.False(t, l.Credit(&r, -50))
	assert.Equal(t, 0, r.Score)

	assert.False(t, l.Credit(&r, 60))
	assert.True(t, l.Credit(&r, 40), "crossing 100 changes tier")
	assert.Equal(t, TierLow, r.Level)
	assert.Equal(t, 100, r.Score)
}

func TestLedger_Normalize(t *testing.T) {
	l := NewLedger(DefaultThresholds())
	r := Record{Level: TierHigh, Score: 120}
	l.Normalize(&r)
	assert.Equal(t, TierLow, r.Level)

	r = Record{Score: -4}
	l.Normalize(&r)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, TierNone, r.Level)
}

func TestNewLedger_InvalidThresholdsFallBack(t *testing.T) {
	l := NewLedger(Thresholds{})
	assert.Equal(t, DefaultThresholds(), l.Thresholds())
}

func TestTier_TextRoundTrip(t *testing.T) {
	b, err := json.Marshal(Record{Level: TierMedium, Score: 301})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"medium","score":301}`, string(b))

	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"level":"high","score":700}`), &r))
	assert.Equal(t, TierHigh, r.Level)

	assert.Error(t, json.Unmarshal([]byte(`{"level":"cosmic"}`), &r))
}

func TestTier_Allows(t *testing.T) {
	assert.True(t, TierHigh.Allows(TierLow))
	assert.True(t, TierLow.Allows(TierLow))
	assert.False(t, TierNone.Allows(TierLow))
}
