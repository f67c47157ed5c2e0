// Package pricing estimates the cost of a generation from its token counts.
// All prices are micro-USD per million tokens.
package pricing

import (
	"strings"
	"sync"
)

// 长上下文计费阈值（输入 token）
const longContextThreshold = 200_000

// ModelPricing 单个上游模型的价格
type ModelPricing struct {
	ModelID          string
	InputPriceMicro  uint64
	OutputPriceMicro uint64

	// 输入超过 200K 后超出部分按 InputPremium 倍计费，输出按 OutputPremium 倍
	HasLongContextTier bool
	InputPremiumNum    uint64
	InputPremiumDenom  uint64
	OutputPremiumNum   uint64
	OutputPremiumDenom uint64
}

// PriceTable maps upstream model names to prices. Lookups fall back to the
// longest registered prefix so dated snapshots match their family.
type PriceTable struct {
	Version string

	mu     sync.RWMutex
	models map[string]*ModelPricing
}

func NewPriceTable(version string) *PriceTable {
	return &PriceTable{
		Version: version,
		models:  make(map[string]*ModelPricing),
	}
}

func (pt *PriceTable) Set(p *ModelPricing) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.models[p.ModelID] = p
}

// Get returns the pricing for model, or nil
func (pt *PriceTable) Get(model string) *ModelPricing {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	if p, ok := pt.models[model]; ok {
		return p
	}
	var best *ModelPricing
	for id, p := range pt.models {
		if strings.HasPrefix(model, id) && (best == nil || len(id) > len(best.ModelID)) {
			best = p
		}
	}
	return best
}

// Calculate returns the estimated cost in micro-USD, 0 for unknown models
func (pt *PriceTable) Calculate(model string, inputTokens, outputTokens uint64) uint64 {
	p := pt.Get(model)
	if p == nil {
		return 0
	}

	if p.HasLongContextTier && inputTokens > longContextThreshold {
		return CalculateTieredCostMicro(inputTokens, p.InputPriceMicro, p.InputPremiumNum, p.InputPremiumDenom, longContextThreshold) +
			CalculateLinearCostMicro(outputTokens, p.OutputPriceMicro)*p.OutputPremiumNum/p.OutputPremiumDenom
	}
	return CalculateLinearCostMicro(inputTokens, p.InputPriceMicro) +
		CalculateLinearCostMicro(outputTokens, p.OutputPriceMicro)
}

// CalculateLinearCostMicro 线性计费：tokens × price / 1M
func CalculateLinearCostMicro(tokens, priceMicro uint64) uint64 {
	return tokens * priceMicro / 1_000_000
}

// CalculateTieredCostMicro 阶梯计费：阈值内按基础价，超出部分按 num/denom 倍
func CalculateTieredCostMicro(tokens, basePriceMicro, premiumNum, premiumDenom, threshold uint64) uint64 {
	if tokens <= threshold {
		return CalculateLinearCostMicro(tokens, basePriceMicro)
	}
	base := CalculateLinearCostMicro(threshold, basePriceMicro)
	premium := CalculateLinearCostMicro(tokens-threshold, basePriceMicro) * premiumNum / premiumDenom
	return base + premium
}
