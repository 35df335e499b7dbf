// Package component 脚本生成所用的 eino ChatModel
package component

import (
	"context"
	"errors"
	"fmt"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"ugcstudio/internal/config"
)

// 脚本生成的默认模型与采样参数
const (
	DefaultOpenAIModel = "gpt-4o"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 800
)

// NewChatModel 按 ai.provider 创建 ChatModel
// openai 为默认，base_url 可指向兼容网关；ark 需要显式配置 model 与 base_url
func NewChatModel(ctx context.Context, cfg *config.AIConfig) (model.ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai.api_key is required")
	}
	temperature, maxTokens := Sampling(cfg.Options)

	switch cfg.Provider {
	case "openai", "":
		name := cfg.Model
		if name == "" {
			name = DefaultOpenAIModel
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:       name,
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})

	case "ark":
		if cfg.Model == "" || cfg.BaseURL == "" {
			return nil, errors.New("ai.model and ai.base_url are required for the ark provider")
		}
		return arkext.NewChatModel(ctx, &arkext.ChatModelConfig{
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

// Sampling 未配置的采样参数回落到脚本生成的默认值
func Sampling(opts config.AIOptionsConfig) (temperature float32, maxTokens int) {
	temperature, maxTokens = DefaultTemperature, DefaultMaxTokens
	if opts.Temperature > 0 {
		temperature = float32(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	return temperature, maxTokens
}
