package jsonx

import (
	"github.com/bytedance/sonic"
)

// JSON 配置
var (
	// FastestConfig 用于事件推送等热路径
	FastestConfig = sonic.ConfigFastest

	// SafeConfig 与 encoding/json 行为一致，用于解析模型输出和持久化
	SafeConfig = sonic.ConfigStd
)

func Marshal(v any) ([]byte, error) {
	return FastestConfig.Marshal(v)
}

// Unmarshal decodes with std-compatible validation. Model output is untrusted,
// so callers decoding it should always go through here.
func Unmarshal(data []byte, v any) error {
	return SafeConfig.Unmarshal(data, v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return SafeConfig.MarshalIndent(v, prefix, indent)
}

// MarshalString is Marshal for callers that only ever need a string and
// cannot do anything useful with an error (log lines, debug dumps).
func MarshalString(v any) string {
	b, err := FastestConfig.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
