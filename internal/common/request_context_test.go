package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCalculateTokenCost(t *testing.T) {
	usage := CalculateTokenCost(1000, 200, 3, 15)

	assert.Equal(t, 1200, usage.TotalTokens)
	assert.InDelta(t, 0.003+0.003, usage.CostUSD, 1e-12)
}

func TestRequestContextAccumulatesTokens(t *testing.T) {
	rc := NewRequestContextWithLogger("20250101_120000", zaptest.NewLogger(t))
	require.NotEmpty(t, rc.RequestID)

	rc.StartStep("page_1")
	rc.StartSubStep("assist")
	rc.EndSubStep("no match")
	tokens := CalculateTokenCost(100, 10, 3, 15)
	rc.EndStep("success", &tokens, nil)

	rc.StartStep("page_2")
	rc.EndStep("failed", nil, errors.New("boom"))

	require.Len(t, rc.Steps, 2)
	assert.Len(t, rc.Steps[0].SubSteps, 1)
	assert.Equal(t, "boom", rc.Steps[1].Error)
	assert.Equal(t, 110, rc.TotalTokens.TotalTokens)

	summary := rc.GetSummary()
	assert.Equal(t, 2, summary["total_steps"])
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "12,345", formatNumber(12345))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
}
