package indicator_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"marketwatch/internal/indicator"
	"marketwatch/internal/provider"
)

func TestSpreadAndMid(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 2.0, indicator.Spread(100, 102), 1e-12)
	require.InDelta(t, 101.0, indicator.MidPrice(100, 102), 1e-12)

	pct, err := indicator.SpreadPercentage(100, 102)
	require.NoError(t, err)
	require.InDelta(t, 2.0, pct, 1e-12)
}

func TestSpreadPercentage_ZeroBid(t *testing.T) {
	t.Parallel()

	pct, err := indicator.SpreadPercentage(0, 5)

	require.ErrorIs(t, err, indicator.ErrDivisionUndefined)
	require.True(t, math.IsNaN(pct))
	require.Equal(t, indicator.TrendUndefined, indicator.TrendOf(0, 5))
}

func TestClassify_Boundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pct  float64
		want indicator.Trend
	}{
		{pct: 0, want: indicator.Tight},
		{pct: 0.009, want: indicator.Tight},
		{pct: 0.01, want: indicator.Normal},
		{pct: 0.049, want: indicator.Normal},
		{pct: 0.05, want: indicator.Wide},
		{pct: 2, want: indicator.Wide},
		{pct: -1, want: indicator.Tight},
		{pct: math.NaN(), want: indicator.TrendUndefined},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.want, indicator.Classify(tc.pct), "pct=%v", tc.pct)
	}
}

func TestChangePercentage(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 10.0, indicator.ChangePercentage(110, 100), 1e-12)
	require.InDelta(t, -10.0, indicator.ChangePercentage(90, 100), 1e-12)
	require.Zero(t, indicator.ChangePercentage(123.45, 0))
}

func TestCompute(t *testing.T) {
	t.Parallel()

	// Arrange
	q := provider.Quote{BaseSymbol: "BTC", QuoteSymbol: "USD", Price: 110, Bid: 100, Ask: 102}

	// Act
	m := indicator.Compute(q, 100)

	// Assert
	require.InDelta(t, 2.0, m.Spread, 1e-12)
	require.InDelta(t, 2.0, m.SpreadPercentage, 1e-12)
	require.InDelta(t, 101.0, m.MidPrice, 1e-12)
	require.Equal(t, indicator.Wide, m.Trend)
	require.InDelta(t, 10.0, m.ChangePercentage, 1e-12)
	require.True(t, m.SpreadDefined)
}

func TestMetrics_MarshalJSON_UndefinedSpread(t *testing.T) {
	t.Parallel()

	m := indicator.Compute(provider.Quote{Price: 1, Bid: 0, Ask: 1}, 0)

	b, err := json.Marshal(m)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Nil(t, got["spread_pct"])
	require.Equal(t, "undefined", got["trend"])
	require.Equal(t, false, got["spread_defined"])
}
