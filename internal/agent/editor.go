package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"kidsbook/internal/config"
	"kidsbook/internal/model"
)

const (
	StageEditing = "editing"

	summaryPrefix = "Create illustrations for: "

	defaultSceneInstruction = "You plan picture books for children. Read the story and describe up to 5 key scenes " +
		"that would make good illustrations. Reply with one short visual description per scene, separated by ||, " +
		"and nothing else."
)

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// Editor 编辑agent：改写故事并派生插画提示词
type Editor struct {
	cfg    config.EditorConfig
	runner compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewEditor 用对话模型构建 START -> model -> END 的编排图
func NewEditor(ctx context.Context, cfg config.EditorConfig, cm einomodel.BaseChatModel) (*Editor, error) {
	if cm == nil {
		return nil, errors.New("chat model is nil")
	}
	g := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := g.AddChatModelNode("model", cm); err != nil {
		return nil, fmt.Errorf("add model node: %w", err)
	}
	if err := g.AddEdge(compose.START, "model"); err != nil {
		return nil, err
	}
	if err := g.AddEdge("model", compose.END); err != nil {
		return nil, err
	}
	runner, err := g.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile editor graph: %w", err)
	}
	return &Editor{cfg: cfg, runner: runner}, nil
}

// Edit 改写故事。上游失败或返回空内容都视为失败
func (e *Editor) Edit(ctx context.Context, story string) (*model.EditResult, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(e.cfg.Prompt.System),
		schema.UserMessage(story),
	}
	out, err := e.invoke(ctx, "edit", msgs)
	if err != nil {
		return nil, model.ServiceError(StageEditing, "Story editing failed", err)
	}
	final := strings.TrimSpace(out.Content)
	if final == "" {
		return nil, model.ServiceError(StageEditing, "Story editing failed", errors.New("empty completion"))
	}

	res := &model.EditResult{
		FinalStory:   final,
		EditorPrompt: e.cfg.Prompt.System,
		RawResponse:  rawJSON(out),
	}

	switch e.cfg.IllustratorPromptMode {
	case config.PromptModeScenes:
		res.IllustratorPrompt = e.scenePrompt(ctx, final)
	default:
		res.IllustratorPrompt = SummaryPrompt(final, e.cfg.SummaryLength)
	}
	return res, nil
}

// scenePrompt 再调用一次模型抽取场景，抽取失败时退回摘要提示词
func (e *Editor) scenePrompt(ctx context.Context, final string) string {
	instruction := e.cfg.Prompt.Scenes
	if strings.TrimSpace(instruction) == "" {
		instruction = defaultSceneInstruction
	}
	out, err := e.invoke(ctx, "scenes", []*schema.Message{
		schema.SystemMessage(instruction),
		schema.UserMessage(final),
	})
	if err == nil {
		if scenes := ParseScenes(out.Content); len(scenes) > 0 {
			return strings.Join(scenes, " "+model.SceneDelimiter+" ")
		}
		err = errors.New("no scenes in completion")
	}
	if ctx.Err() == nil {
		stageLog(ctx, StageEditing).WithError(err).Warn("scene extraction failed, falling back to summary prompt")
	}
	return SummaryPrompt(final, e.cfg.SummaryLength)
}

func (e *Editor) invoke(ctx context.Context, name string, msgs []*schema.Message) (*schema.Message, error) {
	return withRetry(ctx, e.cfg.Retry, StageEditing, name, func() (*schema.Message, error) {
		out, err := e.runner.Invoke(ctx, msgs)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, errors.New("nil message from model")
		}
		return out, nil
	})
}

// SummaryPrompt 取故事前 n 个字符拼成插画提示词
func SummaryPrompt(story string, n int) string {
	r := []rune(story)
	if n > 0 && len(r) > n {
		r = r[:n]
	}
	return summaryPrefix + string(r)
}

// ParseScenes 解析模型返回的场景列表，兼容 || 分隔和逐行列表两种写法
func ParseScenes(content string) []string {
	var parts []string
	if strings.Contains(content, model.SceneDelimiter) {
		parts = strings.Split(content, model.SceneDelimiter)
	} else {
		parts = strings.Split(content, "\n")
	}
	scenes := make([]string, 0, model.MaxIllustrations)
	for _, p := range parts {
		p = strings.TrimSpace(listMarker.ReplaceAllString(p, ""))
		if p == "" {
			continue
		}
		scenes = append(scenes, p)
		if len(scenes) == model.MaxIllustrations {
			break
		}
	}
	return scenes
}

func rawJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
