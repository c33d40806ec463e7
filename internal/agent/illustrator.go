package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"kidsbook/internal/config"
	"kidsbook/internal/model"
)

const (
	StageIllustrating = "illustrating"

	kidsInstruction = "Use the following interesting points to create a colorful, engaging and age-appropriate illustration " +
		"for a children's book. Ensure the style is bright and playful, suitable for children ages 4-10."
)

// Illustrator 插画agent：cover 模式只出一张封面，scenes 模式逐场景出图
type Illustrator struct {
	cfg     config.IllustratorConfig
	gen     ImageGenerator
	limiter *rate.Limiter
}

func NewIllustrator(cfg config.IllustratorConfig, gen ImageGenerator) *Illustrator {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Illustrator{cfg: cfg, gen: gen, limiter: rate.NewLimiter(limit, 1)}
}

// Illustrate 根据插画提示词生成插图，结果不超过 MaxIllustrations 张
func (i *Illustrator) Illustrate(ctx context.Context, illustratorPrompt string) (*model.IllustrationSet, error) {
	scenes := SplitScenes(illustratorPrompt)
	if len(scenes) == 0 {
		return &model.IllustrationSet{}, nil
	}
	if i.cfg.Mode == config.IllustrationModeScenes {
		return i.illustrateScenes(ctx, scenes)
	}
	return i.illustrateCover(ctx, scenes[0])
}

func (i *Illustrator) illustrateCover(ctx context.Context, scene string) (*model.IllustrationSet, error) {
	prompt := BuildPrompt(i.cfg.PromptConfig, scene)
	res, err := i.generate(ctx, prompt)
	if err != nil {
		return nil, model.ServiceError(StageIllustrating, "Illustration generation failed", err)
	}
	return &model.IllustrationSet{
		URLs:        res.URLs[:1],
		Prompts:     []string{prompt},
		RawResponse: string(res.Raw),
	}, nil
}

// illustrateScenes 单个场景失败只记日志跳过，预算耗尽时中止
func (i *Illustrator) illustrateScenes(ctx context.Context, scenes []string) (*model.IllustrationSet, error) {
	set := &model.IllustrationSet{}
	raws := make([]json.RawMessage, 0, len(scenes))
	for idx, scene := range scenes {
		prompt := BuildPrompt(i.cfg.PromptConfig, scene)
		res, err := i.generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			stageLog(ctx, StageIllustrating).WithError(err).WithField("scene", idx+1).Warn("scene illustration failed, skipping")
			continue
		}
		set.URLs = append(set.URLs, res.URLs[0])
		set.Prompts = append(set.Prompts, prompt)
		if len(res.Raw) > 0 {
			raws = append(raws, res.Raw)
		}
	}
	set.RawResponse = rawJSON(raws)
	stageLog(ctx, StageIllustrating).Infof("generated %d/%d scene illustrations", set.Len(), len(scenes))
	return set, nil
}

func (i *Illustrator) generate(ctx context.Context, prompt string) (*ImageResult, error) {
	return withRetry(ctx, i.cfg.Retry, StageIllustrating, "illustrate", func() (*ImageResult, error) {
		if err := i.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := i.gen.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		if res == nil || len(res.URLs) == 0 {
			return nil, errors.New("no image for prompt")
		}
		return res, nil
	})
}

// SplitScenes 按 || 拆分场景，去掉空段，最多保留 MaxIllustrations 个
func SplitScenes(prompt string) []string {
	scenes := make([]string, 0, model.MaxIllustrations)
	for _, s := range strings.Split(prompt, model.SceneDelimiter) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		scenes = append(scenes, s)
		if len(scenes) == model.MaxIllustrations {
			break
		}
	}
	return scenes
}

// BuildPrompt 拼接系统提示词、儿童向要求、画风和场景描述
func BuildPrompt(pc config.IllustratorPromptConfig, scene string) string {
	parts := make([]string, 0, 4)
	if s := strings.TrimSpace(pc.System); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, kidsInstruction)
	if pc.StyleGuide.ArtStyle != "" {
		parts = append(parts, "Style: "+pc.StyleGuide.ArtStyle+".")
	}
	parts = append(parts, "Details: "+strings.TrimSuffix(scene, ".")+".")
	return strings.Join(parts, " ")
}
