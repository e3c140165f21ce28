package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecell/tradecell/internal/engine"
	"github.com/tradecell/tradecell/internal/position"
)

func TestEvaluateTrigger(t *testing.T) {
	tests := []struct {
		name       string
		price      string
		wantSide   position.Side
		wantReason string
	}{
		{
			name:       "buy on drop below threshold",
			price:      "145",
			wantSide:   position.SideBuy,
			wantReason: "Price $145.00 ≤ buy threshold $145.50 ($150.00 × 97.0%)",
		},
		{
			name:       "buy on exact threshold",
			price:      "145.5",
			wantSide:   position.SideBuy,
			wantReason: "Price $145.50 ≤ buy threshold $145.50 ($150.00 × 97.0%)",
		},
		{
			name:       "sell on rise above threshold",
			price:      "155",
			wantSide:   position.SideSell,
			wantReason: "Price $155.00 ≥ sell threshold $154.50 ($150.00 × 103.0%)",
		},
		{
			name:       "sell on exact threshold",
			price:      "154.5",
			wantSide:   position.SideSell,
			wantReason: "Price $154.50 ≥ sell threshold $154.50 ($150.00 × 103.0%)",
		},
		{
			name:       "no action inside the band",
			price:      "152",
			wantSide:   position.SideNone,
			wantReason: "Price $152.00 within [$145.50, $154.50]",
		},
		{
			name:       "no action just inside buy side",
			price:      "145.51",
			wantSide:   position.SideNone,
			wantReason: "Price $145.51 within [$145.50, $154.50]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell := newCell("p1", "10000", "100", "150")
			d, err := engine.EvaluateTrigger(cell, dec(tt.price))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSide, d.Side)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.True(t, d.BuyThreshold.Equal(dec("145.5")))
			assert.True(t, d.SellThreshold.Equal(dec("154.5")))
		})
	}
}

func TestEvaluateTriggerThresholdFields(t *testing.T) {
	cell := newCell("p1", "10000", "100", "150")

	buy, err := engine.EvaluateTrigger(cell, dec("140"))
	require.NoError(t, err)
	assert.True(t, buy.Threshold.Equal(dec("145.5")))
	assert.True(t, buy.ThresholdPct.Equal(dec("0.03")))

	sell, err := engine.EvaluateTrigger(cell, dec("160"))
	require.NoError(t, err)
	assert.True(t, sell.Threshold.Equal(dec("154.5")))

	none, err := engine.EvaluateTrigger(cell, dec("150"))
	require.NoError(t, err)
	assert.True(t, none.Threshold.IsZero())
}

func TestEvaluateTriggerAsymmetricThresholds(t *testing.T) {
	cell := newCell("p1", "10000", "100", "100")
	cell.Config.TriggerUpPct = dec("0.10")
	cell.Config.TriggerDownPct = dec("0.02")

	d, err := engine.EvaluateTrigger(cell, dec("98"))
	require.NoError(t, err)
	assert.Equal(t, position.SideBuy, d.Side)

	d, err = engine.EvaluateTrigger(cell, dec("109.99"))
	require.NoError(t, err)
	assert.Equal(t, position.SideNone, d.Side)

	d, err = engine.EvaluateTrigger(cell, dec("110"))
	require.NoError(t, err)
	assert.Equal(t, position.SideSell, d.Side)
}

func TestEvaluateTriggerInvalidInputs(t *testing.T) {
	unset := position.NewCell("p1", "ACME", dec("10000"), dec("100"))
	_, err := engine.EvaluateTrigger(unset, dec("100"))
	var ise *engine.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "anchor_price", ise.Field)

	cell := newCell("p1", "10000", "100", "150")
	_, err = engine.EvaluateTrigger(cell, dec("0"))
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "price", ise.Field)

	_, err = engine.EvaluateTrigger(cell, dec("-1"))
	require.Error(t, err)
}
