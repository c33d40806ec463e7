package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"kidsbook/internal/model"
)

const (
	EnvAPIKey   = "AZURE_API_KEY"
	EnvEndpoint = "AZURE_ENDPOINT"
)

const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

const (
	PromptModeSummary = "summary"
	PromptModeScenes  = "scenes"

	IllustrationModeCover  = "cover"
	IllustrationModeScenes = "scenes"
)

// Credentials 托管AI服务的凭证，只从环境变量注入
type Credentials struct {
	APIKey   string `json:"api_key" yaml:"api_key"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// AgentConfig 可从配置文件按 agent key 加载的配置
type AgentConfig interface {
	SetCredentials(Credentials)
	Validate() error
}

// RetryConfig 上游调用的有限重试，MaxRetries 为 0 时不重试
type RetryConfig struct {
	MaxRetries        int `json:"max_retries" yaml:"max_retries"`
	InitialIntervalMS int `json:"initial_interval_ms" yaml:"initial_interval_ms"`
}

// EditorPrompt 编辑agent的提示词
type EditorPrompt struct {
	System string `json:"system" yaml:"system"`
	Scenes string `json:"scenes" yaml:"scenes"`
}

// EditorConfig editor_agent 配置
type EditorConfig struct {
	Provider              string       `json:"provider" yaml:"provider"`
	DeploymentName        string       `json:"deployment_name" yaml:"deployment_name"`
	APIVersion            string       `json:"api_version" yaml:"api_version"`
	Prompt                EditorPrompt `json:"prompt" yaml:"prompt"`
	Temperature           float32      `json:"temperature" yaml:"temperature"`
	MaxTokens             int          `json:"max_tokens" yaml:"max_tokens"`
	IllustratorPromptMode string       `json:"illustrator_prompt_mode" yaml:"illustrator_prompt_mode"`
	SummaryLength         int          `json:"summary_length" yaml:"summary_length"`
	Retry                 RetryConfig  `json:"retry" yaml:"retry"`

	AzureAI Credentials `json:"-" yaml:"-"`
}

func (c *EditorConfig) SetCredentials(cred Credentials) { c.AzureAI = cred }

func (c *EditorConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = ProviderAzure
	}
	if c.APIVersion == "" {
		c.APIVersion = "2025-01-01-preview"
	}
	if c.IllustratorPromptMode == "" {
		c.IllustratorPromptMode = PromptModeSummary
	}
	if c.SummaryLength <= 0 {
		c.SummaryLength = 200
	}
	if c.DeploymentName == "" {
		return model.ConfigurationError("%s: deployment_name is required", EditorAgentKey)
	}
	if strings.TrimSpace(c.Prompt.System) == "" {
		return model.ConfigurationError("%s: prompt.system is required", EditorAgentKey)
	}
	if err := validateProvider(EditorAgentKey, c.Provider); err != nil {
		return err
	}
	switch c.IllustratorPromptMode {
	case PromptModeSummary, PromptModeScenes:
	default:
		return model.ConfigurationError("%s: unknown illustrator_prompt_mode %q", EditorAgentKey, c.IllustratorPromptMode)
	}
	return nil
}

// StyleGuide 插画风格
type StyleGuide struct {
	ArtStyle string `json:"art_style" yaml:"art_style"`
}

// IllustratorPromptConfig 插画agent的提示词
type IllustratorPromptConfig struct {
	System     string     `json:"system" yaml:"system"`
	StyleGuide StyleGuide `json:"style_guide" yaml:"style_guide"`
}

// GenerationParams 图片生成参数
type GenerationParams struct {
	N              int    `json:"n" yaml:"n"`
	ResponseFormat string `json:"response_format" yaml:"response_format"`
}

// IllustratorConfig illustrator_agent 配置
type IllustratorConfig struct {
	Provider          string                  `json:"provider" yaml:"provider"`
	DeploymentName    string                  `json:"deployment_name" yaml:"deployment_name"`
	APIVersion        string                  `json:"api_version" yaml:"api_version"`
	ImageSize         string                  `json:"image_size" yaml:"image_size"`
	Mode              string                  `json:"mode" yaml:"mode"`
	GenerationParams  GenerationParams        `json:"generation_params" yaml:"generation_params"`
	PromptConfig      IllustratorPromptConfig `json:"prompt_config" yaml:"prompt_config"`
	RequestsPerMinute int                     `json:"requests_per_minute" yaml:"requests_per_minute"`
	CacheTTLSeconds   int                     `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"` // 相同提示词的出图结果缓存，0 不缓存
	Retry             RetryConfig             `json:"retry" yaml:"retry"`

	AzureAI Credentials `json:"-" yaml:"-"`
}

func (c *IllustratorConfig) SetCredentials(cred Credentials) { c.AzureAI = cred }

func (c *IllustratorConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = ProviderAzure
	}
	if c.APIVersion == "" {
		c.APIVersion = "2024-02-01"
	}
	if c.ImageSize == "" {
		c.ImageSize = "1024x1024"
	}
	if c.Mode == "" {
		c.Mode = IllustrationModeCover
	}
	if c.GenerationParams.N <= 0 {
		c.GenerationParams.N = 1
	}
	if c.GenerationParams.ResponseFormat == "" {
		c.GenerationParams.ResponseFormat = "url"
	}
	if c.PromptConfig.StyleGuide.ArtStyle == "" {
		c.PromptConfig.StyleGuide.ArtStyle = "cartoon"
	}
	if c.DeploymentName == "" {
		return model.ConfigurationError("%s: deployment_name is required", IllustratorAgentKey)
	}
	if err := validateProvider(IllustratorAgentKey, c.Provider); err != nil {
		return err
	}
	switch c.Mode {
	case IllustrationModeCover, IllustrationModeScenes:
	default:
		return model.ConfigurationError("%s: unknown mode %q", IllustratorAgentKey, c.Mode)
	}
	return nil
}

func validateProvider(agentKey, provider string) error {
	switch provider {
	case ProviderAzure, ProviderOpenAI, ProviderArk:
		return nil
	default:
		return model.ConfigurationError("%s: unsupported provider %q", agentKey, provider)
	}
}

// LoadCredentials 从环境变量读取API key和endpoint，两者都必须非空
func LoadCredentials() (Credentials, error) {
	cred := Credentials{
		APIKey:   strings.TrimSpace(os.Getenv(EnvAPIKey)),
		Endpoint: strings.TrimSpace(os.Getenv(EnvEndpoint)),
	}
	if cred.APIKey == "" || cred.Endpoint == "" {
		return Credentials{}, model.ConfigurationError("%s and %s must be set in the environment", EnvAPIKey, EnvEndpoint)
	}
	return cred, nil
}

// Load 读取配置文件中 agentKey 对应的配置，并注入凭证到 azure_ai 字段
func Load(path, agentKey string) (map[string]any, error) {
	settings := map[string]any{}
	if err := decodeSection(path, agentKey, &settings); err != nil {
		return nil, err
	}
	cred, err := LoadCredentials()
	if err != nil {
		return nil, err
	}
	settings["azure_ai"] = map[string]any{
		"api_key":  cred.APIKey,
		"endpoint": cred.Endpoint,
	}
	return settings, nil
}

// LoadAgent 读取 agentKey 对应的配置到 out，注入凭证并校验
func LoadAgent(path, agentKey string, out AgentConfig) error {
	if err := decodeSection(path, agentKey, out); err != nil {
		return err
	}
	cred, err := LoadCredentials()
	if err != nil {
		return err
	}
	out.SetCredentials(cred)
	if err := out.Validate(); err != nil {
		return err
	}
	logrus.WithField("agent", agentKey).Info("agent config loaded")
	return nil
}

func decodeSection(path, agentKey string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ConfigurationError("read config %s: %v", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var sections map[string]yaml.Node
		if err := yaml.Unmarshal(data, &sections); err != nil {
			return model.ConfigurationError("parse config %s: %v", path, err)
		}
		node, ok := sections[agentKey]
		if !ok || node.Kind == 0 {
			return model.ConfigurationError("agent key '%s' not found in the configuration", agentKey)
		}
		if err := node.Decode(out); err != nil {
			return model.ConfigurationError("decode %s: %v", agentKey, err)
		}
	default:
		var sections map[string]json.RawMessage
		if err := json.Unmarshal(data, &sections); err != nil {
			return model.ConfigurationError("parse config %s: %v", path, err)
		}
		raw, ok := sections[agentKey]
		if !ok || string(raw) == "null" {
			return model.ConfigurationError("agent key '%s' not found in the configuration", agentKey)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return model.ConfigurationError("decode %s: %v", agentKey, err)
		}
	}
	return nil
}

// String 输出时隐藏凭证
func (c Credentials) String() string {
	return fmt.Sprintf("{endpoint:%s api_key:***}", c.Endpoint)
}
