package composer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"kidsbook/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func newTestComposer(workers int) *Composer {
	c := New(workers)
	c.now = func() time.Time { return fixedNow }
	return c
}

var sample = model.CompositeInput{
	FinalStory:        "Once upon a time a *little* fox lived by a pond.\n\n   \nOne night the moon smiled at her.\n",
	Illustrations:     []string{"https://img.example/cover.png", "https://img.example/scene2.png"},
	IllustratorPrompt: "a fox || a moon",
}

func TestComposeText(t *testing.T) {
	c := newTestComposer(1)
	in := model.CompositeInput{
		FinalStory:        "A fox smiled.",
		Illustrations:     []string{"https://img.example/1.png"},
		IllustratorPrompt: "Create illustrations for: A fox smiled.",
	}
	art, err := c.Compose(context.Background(), model.FormatText, in)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	want := "A fox smiled.\n\nIllustration URL: https://img.example/1.png\nPrompt used: Create illustrations for: A fox smiled."
	if art.Content != want {
		t.Fatalf("unexpected text composite:\n%s", art.Content)
	}
	if art.Format != model.FormatText || !art.GeneratedAt.Equal(fixedNow) {
		t.Fatalf("unexpected artifact metadata %+v", art)
	}
}

func TestComposeJSON(t *testing.T) {
	c := newTestComposer(1)
	art, err := c.Compose(context.Background(), model.FormatJSON, model.CompositeInput{FinalStory: "A fox."})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	var env jsonEnvelope
	if err := json.Unmarshal([]byte(art.Content), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Story != "A fox." || env.Illustrations == nil || !env.GeneratedAt.Equal(fixedNow) {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestComposeHTML(t *testing.T) {
	c := newTestComposer(2)
	art, err := c.Compose(context.Background(), model.FormatHTML, sample)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	html := art.Content

	if n := strings.Count(html, "<p>"); n != 2 {
		t.Fatalf("expected 2 paragraphs for 2 non-empty lines, got %d:\n%s", n, html)
	}
	if strings.Contains(html, "<p></p>") {
		t.Fatalf("blank lines must not produce empty paragraphs")
	}
	checks := []string{
		`<div class="cover"><img src="https://img.example/cover.png"`,
		`<em>little</em>`,
		`<img src="https://img.example/scene2.png" alt="Scene illustration">`,
		"Generated on 2025-03-01 10:30:00 UTC",
	}
	for _, want := range checks {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestComposeHTMLEscapesUnsafeContent(t *testing.T) {
	c := newTestComposer(1)
	in := model.CompositeInput{
		FinalStory:    "Hello <script>alert(1)</script> fox.",
		Illustrations: []string{"javascript:alert(1)"},
	}
	art, err := c.Compose(context.Background(), model.FormatHTML, in)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if strings.Contains(art.Content, "<script>") || strings.Contains(art.Content, "javascript:") {
		t.Fatalf("unsafe content leaked:\n%s", art.Content)
	}
	if !strings.Contains(art.Content, "<p>Hello &lt;script&gt;alert(1)&lt;/script&gt; fox.</p>") {
		t.Fatalf("story text must be escaped, not dropped:\n%s", art.Content)
	}
}

func TestComposeHTMLBlockSyntaxStaysParagraphs(t *testing.T) {
	c := newTestComposer(1)
	story := "# The Fox\n- Hello friend\n\n1. First step\n<div>The owl hooted.</div>\n---\n> Quiet now\nThe *end*."
	art, err := c.Compose(context.Background(), model.FormatHTML, model.CompositeInput{FinalStory: story})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	html := art.Content

	if n := strings.Count(html, "<p>"); n != 7 {
		t.Fatalf("expected 7 paragraphs for 7 non-empty lines, got %d:\n%s", n, html)
	}
	want := []string{
		"<p># The Fox</p>",
		"<p>- Hello friend</p>",
		"<p>1. First step</p>",
		"<p>&lt;div&gt;The owl hooted.&lt;/div&gt;</p>",
		"<p>---</p>",
		"<p>&gt; Quiet now</p>",
		"<p>The <em>end</em>.</p>",
	}
	for _, w := range want {
		if !strings.Contains(html, w) {
			t.Errorf("html missing %q", w)
		}
	}
	for _, bad := range []string{"<ul>", "<ol>", "<hr", "<blockquote>", "<h1>The Fox", "raw HTML omitted"} {
		if strings.Contains(html, bad) {
			t.Errorf("block markup %q leaked into story", bad)
		}
	}
}

func TestComposeHTMLWithoutIllustrations(t *testing.T) {
	c := newTestComposer(1)
	art, err := c.Compose(context.Background(), model.FormatHTML, model.CompositeInput{FinalStory: "Just words."})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if strings.Contains(art.Content, `class="cover"`) || strings.Contains(art.Content, `class="gallery"`) {
		t.Fatalf("unexpected image blocks:\n%s", art.Content)
	}
}

func TestComposeUnknownFormat(t *testing.T) {
	_, err := newTestComposer(1).Compose(context.Background(), model.CompositeFormat("pdf"), sample)
	if model.KindOf(err) != model.KindService {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestComposeRespectsContext(t *testing.T) {
	c := newTestComposer(1)
	// 占满唯一的 worker
	if err := c.workers.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer c.workers.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Compose(ctx, model.FormatText, sample)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]model.CompositeFormat{
		"":      model.FormatHTML,
		"TEXT":  model.FormatText,
		" json": model.FormatJSON,
		"html":  model.FormatHTML,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("pdf"); model.KindOf(err) != model.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
