package pricing

import "sync"

var (
	defaultTable *PriceTable
	defaultOnce  sync.Once
)

// DefaultPriceTable 返回默认价格表（单例）
func DefaultPriceTable() *PriceTable {
	defaultOnce.Do(func() {
		defaultTable = initDefaultPrices()
	})
	return defaultTable
}

// initDefaultPrices 初始化默认价格（按上游模型名）
func initDefaultPrices() *PriceTable {
	pt := NewPriceTable("2025.11")

	// Claude Sonnet 4.5: input=$3, output=$15；超过 200K 输入 input×2, output×1.5
	pt.Set(&ModelPricing{
		ModelID:            "claude-sonnet-4-5",
		InputPriceMicro:    3_000_000,
		OutputPriceMicro:   15_000_000,
		HasLongContextTier: true,
		InputPremiumNum:    2,
		InputPremiumDenom:  1,
		OutputPremiumNum:   3,
		OutputPremiumDenom: 2,
	})

	// Claude Haiku 4.5: input=$1, output=$5
	pt.Set(&ModelPricing{
		ModelID:          "claude-haiku-4-5",
		InputPriceMicro:  1_000_000,
		OutputPriceMicro: 5_000_000,
	})

	// gemini-3-pro-preview: input=$2, output=$12；超过 200K 输入 input×2, output×1.5
	pt.Set(&ModelPricing{
		ModelID:            "gemini-3-pro-preview",
		InputPriceMicro:    2_000_000,
		OutputPriceMicro:   12_000_000,
		HasLongContextTier: true,
		InputPremiumNum:    2,
		InputPremiumDenom:  1,
		OutputPremiumNum:   3,
		OutputPremiumDenom: 2,
	})

	// gemini-2.5-flash: input=$0.30, output=$2.50
	pt.Set(&ModelPricing{
		ModelID:          "gemini-2.5-flash",
		InputPriceMicro:  300_000,
		OutputPriceMicro: 2_500_000,
	})

	// gpt-5: input=$1.25, output=$10
	pt.Set(&ModelPricing{
		ModelID:          "gpt-5",
		InputPriceMicro:  1_250_000,
		OutputPriceMicro: 10_000_000,
	})

	// gpt-5-mini: input=$0.25, output=$2
	pt.Set(&ModelPricing{
		ModelID:          "gpt-5-mini",
		InputPriceMicro:  250_000,
		OutputPriceMicro: 2_000_000,
	})

	return pt
}
