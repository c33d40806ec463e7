package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"kidsbook/internal/config"
	"kidsbook/internal/model"
	"kidsbook/internal/volc"
)

const imageHTTPTimeout = 120 * time.Second

// ImageGenerator 图片生成后端
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*ImageResult, error)
}

// ImageResult 单次生成返回的图片，Raw 为上游原始响应
type ImageResult struct {
	URLs []string
	Raw  json.RawMessage
}

// NewImageGenerator 按 provider 选择图片生成后端，配置了 CacheTTLSeconds 时套一层缓存
func NewImageGenerator(cfg config.IllustratorConfig) (ImageGenerator, error) {
	var gen ImageGenerator
	switch cfg.Provider {
	case config.ProviderAzure, config.ProviderOpenAI:
		gen = NewOpenAIImageGenerator(cfg)
	case config.ProviderArk:
		gen = &ArkImageGenerator{
			client: volc.NewArkClient(cfg.AzureAI.APIKey, cfg.AzureAI.Endpoint, imageHTTPTimeout),
			cfg:    cfg,
		}
	default:
		return nil, model.ConfigurationError("unsupported image provider %q", cfg.Provider)
	}
	if cfg.CacheTTLSeconds > 0 {
		gen = NewCachedImageGenerator(gen, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}
	return gen, nil
}

// OpenAIImageGenerator 走 Azure OpenAI 或 OpenAI 的 images 接口
type OpenAIImageGenerator struct {
	client openai.Client
	cfg    config.IllustratorConfig
}

func NewOpenAIImageGenerator(cfg config.IllustratorConfig, extra ...option.RequestOption) *OpenAIImageGenerator {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(imageHTTPTimeout),
	}
	if cfg.Provider == config.ProviderAzure {
		opts = append(opts,
			azure.WithEndpoint(cfg.AzureAI.Endpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.AzureAI.APIKey),
		)
	} else {
		opts = append(opts, option.WithAPIKey(cfg.AzureAI.APIKey))
		if cfg.AzureAI.Endpoint != "" {
			opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.AzureAI.Endpoint, "/")+"/"))
		}
	}
	opts = append(opts, extra...)
	return &OpenAIImageGenerator{client: openai.NewClient(opts...), cfg: cfg}
}

func (g *OpenAIImageGenerator) Generate(ctx context.Context, prompt string) (*ImageResult, error) {
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.cfg.DeploymentName),
		N:              openai.Int(int64(g.cfg.GenerationParams.N)),
		Size:           openai.ImageGenerateParamsSize(g.cfg.ImageSize),
		ResponseFormat: openai.ImageGenerateParamsResponseFormat(g.cfg.GenerationParams.ResponseFormat),
	})
	if err != nil {
		return nil, fmt.Errorf("images.generate: %w", err)
	}
	urls := make([]string, 0, len(resp.Data))
	for _, img := range resp.Data {
		switch {
		case img.URL != "":
			urls = append(urls, img.URL)
		case img.B64JSON != "":
			urls = append(urls, "data:image/png;base64,"+img.B64JSON)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("no images returned")
	}
	return &ImageResult{URLs: urls, Raw: json.RawMessage(resp.RawJSON())}, nil
}

// ArkImageGenerator 走火山方舟 seedream 接口
type ArkImageGenerator struct {
	client *volc.ArkClient
	cfg    config.IllustratorConfig
}

func (g *ArkImageGenerator) Generate(ctx context.Context, prompt string) (*ImageResult, error) {
	res, err := g.client.GenerateImages(ctx, volc.ImageGenParams{
		Model:          g.cfg.DeploymentName,
		Prompt:         prompt,
		Size:           g.cfg.ImageSize,
		ResponseFormat: g.cfg.GenerationParams.ResponseFormat,
		MaxImages:      g.cfg.GenerationParams.N,
	})
	if err != nil {
		return nil, err
	}
	return &ImageResult{URLs: res.URLs, Raw: res.Raw}, nil
}
