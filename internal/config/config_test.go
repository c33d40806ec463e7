package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kidsbook/internal/model"
)

const sampleJSON = `{
  "editor_agent": {
    "deployment_name": "gpt-4o",
    "prompt": {"system": "You are a children's book editor."},
    "temperature": 0.7,
    "max_tokens": 1500
  },
  "illustrator_agent": {
    "deployment_name": "dall-e-3",
    "image_size": "1024x1024",
    "mode": "scenes",
    "generation_params": {"n": 1, "response_format": "url"},
    "prompt_config": {"system": "You illustrate kids books."}
  }
}`

const sampleYAML = `
editor_agent:
  provider: ark
  deployment_name: ep-chat
  prompt:
    system: Edit gently.
  illustrator_prompt_mode: scenes
illustrator_agent:
  deployment_name: seedream
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAPIKey, "secret")
	t.Setenv(EnvEndpoint, "https://example.openai.azure.com/")
}

func assertKind(t *testing.T, err error, want model.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var e *model.Error
	if !errors.As(err, &e) || e.Kind != want {
		t.Fatalf("expected %s error, got %v", want, err)
	}
}

func TestLoadInjectsCredentials(t *testing.T) {
	setCredentials(t)
	path := writeConfig(t, "azure_config.json", sampleJSON)

	settings, err := Load(path, EditorAgentKey)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if settings["deployment_name"] != "gpt-4o" {
		t.Fatalf("unexpected deployment_name: %v", settings["deployment_name"])
	}
	azure, ok := settings["azure_ai"].(map[string]any)
	if !ok {
		t.Fatalf("azure_ai not injected: %#v", settings)
	}
	if azure["api_key"] != "secret" || azure["endpoint"] != "https://example.openai.azure.com/" {
		t.Fatalf("unexpected credentials: %#v", azure)
	}
}

func TestLoadMissingKey(t *testing.T) {
	setCredentials(t)
	path := writeConfig(t, "azure_config.json", sampleJSON)

	_, err := Load(path, "narrator_agent")
	assertKind(t, err, model.KindConfiguration)
}

func TestLoadMissingCredentials(t *testing.T) {
	path := writeConfig(t, "azure_config.json", sampleJSON)

	cases := map[string][2]string{
		"no key":       {"", "https://example.com"},
		"no endpoint":  {"secret", ""},
		"blank key":    {"   ", "https://example.com"},
		"both missing": {"", ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(EnvAPIKey, env[0])
			t.Setenv(EnvEndpoint, env[1])
			_, err := Load(path, EditorAgentKey)
			assertKind(t, err, model.KindConfiguration)
		})
	}
}

func TestLoadAgentAppliesDefaults(t *testing.T) {
	setCredentials(t)
	path := writeConfig(t, "azure_config.json", sampleJSON)

	var editor EditorConfig
	if err := LoadAgent(path, EditorAgentKey, &editor); err != nil {
		t.Fatalf("load editor: %v", err)
	}
	if editor.Provider != ProviderAzure || editor.IllustratorPromptMode != PromptModeSummary {
		t.Fatalf("defaults not applied: %+v", editor)
	}
	if editor.SummaryLength != 200 || editor.MaxTokens != 1500 {
		t.Fatalf("unexpected lengths: %+v", editor)
	}
	if editor.AzureAI.APIKey != "secret" {
		t.Fatalf("credentials not injected")
	}

	var illustrator IllustratorConfig
	if err := LoadAgent(path, IllustratorAgentKey, &illustrator); err != nil {
		t.Fatalf("load illustrator: %v", err)
	}
	if illustrator.Mode != IllustrationModeScenes {
		t.Fatalf("expected scenes mode, got %q", illustrator.Mode)
	}
	if illustrator.PromptConfig.StyleGuide.ArtStyle != "cartoon" {
		t.Fatalf("expected default art style, got %q", illustrator.PromptConfig.StyleGuide.ArtStyle)
	}
}

func TestLoadAgentYAML(t *testing.T) {
	setCredentials(t)
	path := writeConfig(t, "agents.yaml", sampleYAML)

	var editor EditorConfig
	if err := LoadAgent(path, EditorAgentKey, &editor); err != nil {
		t.Fatalf("load editor: %v", err)
	}
	if editor.Provider != ProviderArk || editor.IllustratorPromptMode != PromptModeScenes {
		t.Fatalf("unexpected editor config: %+v", editor)
	}

	var illustrator IllustratorConfig
	if err := LoadAgent(path, IllustratorAgentKey, &illustrator); err != nil {
		t.Fatalf("load illustrator: %v", err)
	}
	if illustrator.Mode != IllustrationModeCover {
		t.Fatalf("expected cover mode default, got %q", illustrator.Mode)
	}
}

func TestLoadAgentRejectsInvalidSettings(t *testing.T) {
	setCredentials(t)

	cases := map[string]string{
		"unknown provider": `{"editor_agent": {"provider": "bard", "deployment_name": "x", "prompt": {"system": "s"}}}`,
		"missing prompt":   `{"editor_agent": {"deployment_name": "x"}}`,
		"unknown mode":     `{"editor_agent": {"deployment_name": "x", "prompt": {"system": "s"}, "illustrator_prompt_mode": "poem"}}`,
		"null section":     `{"editor_agent": null}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "azure_config.json", body)
			var editor EditorConfig
			assertKind(t, LoadAgent(path, EditorAgentKey, &editor), model.KindConfiguration)
		})
	}
}

func TestLoadAppConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REQUEST_TIMEOUT", "90s")
	t.Setenv("COMPOSE_WORKERS", "not-a-number")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AZURE_SQL_CONNECTION_STRING", "postgres://kids@localhost/books")

	cfg := LoadAppConfig()
	if cfg.Port != "9090" {
		t.Fatalf("unexpected port %q", cfg.Port)
	}
	if cfg.RequestTimeout != 90*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.RequestTimeout)
	}
	if cfg.ComposeWorkers != DefaultComposeWorkers {
		t.Fatalf("expected default workers, got %d", cfg.ComposeWorkers)
	}
	if cfg.DatabaseURL != "postgres://kids@localhost/books" {
		t.Fatalf("expected fallback connection string, got %q", cfg.DatabaseURL)
	}
}
