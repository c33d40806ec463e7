package tools

import (
	"context"
	"encoding/json"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"kidsbook/internal/model"
)

// StoryIllustrator 插画阶段
type StoryIllustrator interface {
	Illustrate(ctx context.Context, illustratorPrompt string) (*model.IllustrationSet, error)
}

type IllustrateTool struct {
	illustrator StoryIllustrator
}

type IllustrateArgs struct {
	Prompt string `json:"prompt"`
}

type IllustrateResp struct {
	Images []string `json:"images"`
	Count  int      `json:"count"`
}

func NewIllustrateTool(ill StoryIllustrator) *IllustrateTool {
	return &IllustrateTool{illustrator: ill}
}

func (t *IllustrateTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"prompt": {Type: schema.String, Required: true, Desc: "插画提示词，多个场景用 || 分隔，最多5个"},
	}
	return &schema.ToolInfo{
		Name:        "illustrate",
		Desc:        "根据提示词生成儿童绘本插图，返回图片URL列表",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *IllustrateTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args IllustrateArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", model.ValidationError("invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(args.Prompt) == "" {
		return "", model.ValidationError("prompt required")
	}
	set, err := t.illustrator.Illustrate(ctx, args.Prompt)
	if err != nil {
		return "", err
	}
	if set.Len() == 0 {
		return "", model.ServiceError("illustrating", "Illustration generation failed", nil)
	}
	b, err := json.Marshal(IllustrateResp{Images: set.URLs, Count: set.Len()})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ einotool.InvokableTool = (*IllustrateTool)(nil)
