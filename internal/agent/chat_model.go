package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"

	"kidsbook/internal/config"
	"kidsbook/internal/model"
)

const chatHTTPTimeout = 120 * time.Second

// NewChatModel 按 provider 创建编辑用的对话模型
func NewChatModel(ctx context.Context, cfg config.EditorConfig) (einomodel.BaseChatModel, error) {
	temperature := cfg.Temperature
	var maxTokens *int
	if cfg.MaxTokens > 0 {
		n := cfg.MaxTokens
		maxTokens = &n
	}
	httpClient := &http.Client{Timeout: chatHTTPTimeout}

	switch cfg.Provider {
	case config.ProviderAzure, config.ProviderOpenAI:
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.AzureAI.APIKey,
			HTTPClient:  httpClient,
			ByAzure:     cfg.Provider == config.ProviderAzure,
			BaseURL:     cfg.AzureAI.Endpoint,
			APIVersion:  cfg.APIVersion,
			Model:       cfg.DeploymentName,
			Temperature: &temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openai chat model: %w", err)
		}
		return cm, nil
	case config.ProviderArk:
		cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.AzureAI.APIKey,
			BaseURL:     cfg.AzureAI.Endpoint,
			HTTPClient:  httpClient,
			Model:       cfg.DeploymentName,
			Temperature: &temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		return cm, nil
	default:
		return nil, model.ConfigurationError("unsupported chat provider %q", cfg.Provider)
	}
}
