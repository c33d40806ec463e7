package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/util"
	"golang.org/x/sync/semaphore"

	"kidsbook/internal/model"
)

const StageComposing = "composing"

// Composer 把故事和插图合成为最终产物。渲染在独立的 worker goroutine 中执行，
// 并发数由信号量限制，调用方按 ctx 等待结果
type Composer struct {
	workers *semaphore.Weighted
	md      goldmark.Markdown
	now     func() time.Time
}

func New(workers int) *Composer {
	if workers <= 0 {
		workers = 1
	}
	return &Composer{
		workers: semaphore.NewWeighted(int64(workers)),
		md:      newInlineMarkdown(),
		now:     time.Now,
	}
}

// newInlineMarkdown 只保留段落块解析和行内语法，不解析原始 HTML，
// 标题、列表、分隔线等块语法一律按普通文本成段
func newInlineMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithParser(parser.NewParser(
		parser.WithBlockParsers(
			util.Prioritized(parser.NewParagraphParser(), 1000),
		),
		parser.WithInlineParsers(
			util.Prioritized(parser.NewCodeSpanParser(), 100),
			util.Prioritized(parser.NewLinkParser(), 200),
			util.Prioritized(parser.NewAutoLinkParser(), 300),
			util.Prioritized(parser.NewEmphasisParser(), 500),
		),
	)))
}

// ParseFormat 解析合成格式，空串默认 html
func ParseFormat(s string) (model.CompositeFormat, error) {
	switch f := model.CompositeFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return model.FormatHTML, nil
	case model.FormatText, model.FormatJSON, model.FormatHTML:
		return f, nil
	default:
		return "", model.ConfigurationError("unknown output format %q", s)
	}
}

type result struct {
	content string
	err     error
}

// Compose 按格式渲染，ctx 结束时立即返回 ctx.Err()
func (c *Composer) Compose(ctx context.Context, format model.CompositeFormat, in model.CompositeInput) (*model.CompositeArtifact, error) {
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	generatedAt := c.now().UTC()
	done := make(chan result, 1)
	go func() {
		defer c.workers.Release(1)
		content, err := c.render(format, in, generatedAt)
		done <- result{content: content, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, model.ServiceError(StageComposing, "Story composition failed", r.err)
		}
		return &model.CompositeArtifact{Format: format, Content: r.content, GeneratedAt: generatedAt}, nil
	}
}

func (c *Composer) render(format model.CompositeFormat, in model.CompositeInput, at time.Time) (string, error) {
	switch format {
	case model.FormatText:
		return renderText(in), nil
	case model.FormatJSON:
		return renderJSON(in, at)
	case model.FormatHTML:
		return c.renderHTML(in, at)
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

func renderText(in model.CompositeInput) string {
	var b strings.Builder
	b.WriteString(in.FinalStory)
	b.WriteString("\n\n")
	for _, u := range in.Illustrations {
		b.WriteString("Illustration URL: ")
		b.WriteString(u)
		b.WriteString("\n")
	}
	b.WriteString("Prompt used: ")
	b.WriteString(in.IllustratorPrompt)
	return b.String()
}

type jsonEnvelope struct {
	Story             string    `json:"story"`
	Illustrations     []string  `json:"illustrations"`
	IllustratorPrompt string    `json:"illustrator_prompt"`
	GeneratedAt       time.Time `json:"generated_at"`
}

func renderJSON(in model.CompositeInput, at time.Time) (string, error) {
	illustrations := in.Illustrations
	if illustrations == nil {
		illustrations = []string{}
	}
	b, err := json.Marshal(jsonEnvelope{
		Story:             in.FinalStory,
		Illustrations:     illustrations,
		IllustratorPrompt: in.IllustratorPrompt,
		GeneratedAt:       at,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type page struct {
	Cover       template.URL
	Paragraphs  []template.HTML
	Gallery     []template.URL
	GeneratedAt string
}

// imageURL 只放行 http(s) 和 data:image 地址
func imageURL(u string) template.URL {
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "data:image/") {
		return template.URL(u)
	}
	return template.URL("#")
}

func (c *Composer) renderHTML(in model.CompositeInput, at time.Time) (string, error) {
	p := page{GeneratedAt: at.Format("2006-01-02 15:04:05 MST")}
	if len(in.Illustrations) > 0 {
		p.Cover = imageURL(in.Illustrations[0])
		for _, u := range in.Illustrations[1:] {
			p.Gallery = append(p.Gallery, imageURL(u))
		}
	}
	// 每个非空行单独成段，行内允许 Markdown
	for _, line := range strings.Split(in.FinalStory, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(line), &buf); err != nil {
			return "", err
		}
		p.Paragraphs = append(p.Paragraphs, template.HTML(strings.TrimSpace(buf.String())))
	}

	var out bytes.Buffer
	if err := bookTemplate.Execute(&out, p); err != nil {
		return "", err
	}
	return out.String(), nil
}

var bookTemplate = template.Must(template.New("book").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Your Story Book</title>
<style>
body { font-family: Georgia, serif; max-width: 760px; margin: 2em auto; line-height: 1.6; color: #333; }
.cover img { width: 100%; border-radius: 12px; }
.gallery img { width: 48%; margin: 1%; border-radius: 8px; }
footer { color: #888; font-size: 0.85em; margin-top: 2em; }
</style>
</head>
<body>
<h1>Your Story Book</h1>
{{- if .Cover}}
<div class="cover"><img src="{{.Cover}}" alt="Story cover illustration"></div>
{{- end}}
<div class="story">
{{- range .Paragraphs}}
{{.}}
{{- end}}
</div>
{{- if .Gallery}}
<div class="gallery">
{{- range .Gallery}}
<img src="{{.}}" alt="Scene illustration">
{{- end}}
</div>
{{- end}}
<footer>Generated on {{.GeneratedAt}}</footer>
</body>
</html>
`))
