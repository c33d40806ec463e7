package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"kidsbook/internal/filter"
	"kidsbook/internal/model"
)

// StoryEditor 编辑阶段
type StoryEditor interface {
	Edit(ctx context.Context, story string) (*model.EditResult, error)
}

// StoryEditTool 实现eino框架的故事编辑工具：先过滤再编辑
type StoryEditTool struct {
	editor StoryEditor
	filter *filter.Filter
}

// StoryEditArgs 故事编辑请求参数
type StoryEditArgs struct {
	Story string `json:"story"` // 原始故事
}

// StoryEditResp 故事编辑响应
type StoryEditResp struct {
	FilteredStory     string `json:"filtered_story"`
	FinalStory        string `json:"final_story"`
	IllustratorPrompt string `json:"illustrator_prompt"`
	Message           string `json:"message"`
}

// NewStoryEditTool 创建故事编辑工具，f 为空时使用默认关键词过滤
func NewStoryEditTool(editor StoryEditor, f *filter.Filter) *StoryEditTool {
	if f == nil {
		f = filter.New(filter.BannedKeywords...)
	}
	return &StoryEditTool{editor: editor, filter: f}
}

// Info 获取故事编辑工具信息
func (t *StoryEditTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"story": {Type: schema.String, Required: true, Desc: "需要改写成儿童绘本的故事原文"},
	}
	return &schema.ToolInfo{
		Name:        "story_edit",
		Desc:        "过滤不适合儿童的句子，并把故事改写成适合儿童阅读的版本，同时给出插画提示词",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

// InvokableRun 执行故事编辑
func (t *StoryEditTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args StoryEditArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", model.ValidationError("invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(args.Story) == "" {
		return "", model.ValidationError("story required")
	}

	filtered := t.filter.Apply(args.Story)
	if filtered == "" {
		return "", model.ValidationError("story has no content left after filtering")
	}
	res, err := t.editor.Edit(ctx, filtered)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", errors.New("editor returned no result")
	}

	b, err := json.Marshal(StoryEditResp{
		FilteredStory:     filtered,
		FinalStory:        res.FinalStory,
		IllustratorPrompt: res.IllustratorPrompt,
		Message:           "故事编辑完成",
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ einotool.InvokableTool = (*StoryEditTool)(nil)
