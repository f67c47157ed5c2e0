package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateTieredCostMicro(t *testing.T) {
	// $3/M tokens, 阈值 200K, 超阈值倍率 2/1
	basePriceMicro := uint64(3_000_000)

	tests := []struct {
		name     string
		tokens   uint64
		expected uint64
	}{
		{"below threshold 100K", 100_000, 300_000},
		{"at threshold 200K", 200_000, 600_000},
		// 200K × $3/M + 100K × $3/M × 2
		{"above threshold 300K", 300_000, 1_200_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculateTieredCostMicro(tt.tokens, basePriceMicro, 2, 1, 200_000))
		})
	}
}

func TestCalculate(t *testing.T) {
	pt := DefaultPriceTable()

	tests := []struct {
		name   string
		model  string
		input  uint64
		output uint64
		want   uint64
	}{
		// 10K × $3/M + 20K × $15/M = 0.03 + 0.30
		{"sonnet", "claude-sonnet-4-5", 10_000, 20_000, 330_000},
		{"dated snapshot", "claude-sonnet-4-5-20250929", 10_000, 20_000, 330_000},
		// 1M × $1.25/M
		{"gpt-5 input only", "gpt-5", 1_000_000, 0, 1_250_000},
		// gpt-5-mini 优先于 gpt-5 前缀
		{"longest prefix", "gpt-5-mini", 1_000_000, 0, 250_000},
		// 200K × $3 + 100K × $3 × 2 + 10K × $15 × 1.5
		{"long context", "claude-sonnet-4-5", 300_000, 10_000, 1_425_000},
		{"unknown", "llama-3", 1_000_000, 1_000_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pt.Calculate(tt.model, tt.input, tt.output))
		})
	}
}
