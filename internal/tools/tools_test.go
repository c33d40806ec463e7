package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"kidsbook/internal/model"
)

type stubEditor struct {
	got string
	err error
}

func (s *stubEditor) Edit(ctx context.Context, story string) (*model.EditResult, error) {
	s.got = story
	if s.err != nil {
		return nil, s.err
	}
	return &model.EditResult{FinalStory: "Edited: " + story, IllustratorPrompt: "a fox || a moon"}, nil
}

type stubIllustrator struct {
	urls []string
	err  error
}

func (s *stubIllustrator) Illustrate(ctx context.Context, prompt string) (*model.IllustrationSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.IllustrationSet{URLs: s.urls}, nil
}

func TestStoryEditToolInfo(t *testing.T) {
	info, err := NewStoryEditTool(&stubEditor{}, nil).Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Name != "story_edit" {
		t.Fatalf("unexpected tool name %q", info.Name)
	}
}

func TestStoryEditToolFiltersBeforeEditing(t *testing.T) {
	ed := &stubEditor{}
	tool := NewStoryEditTool(ed, nil)

	out, err := tool.InvokableRun(context.Background(), `{"story":"The fox ran. There was blood everywhere. The moon rose."}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ed.got != "The fox ran. The moon rose." {
		t.Fatalf("editor received unfiltered text %q", ed.got)
	}
	var resp StoryEditResp
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FinalStory != "Edited: The fox ran. The moon rose." || resp.IllustratorPrompt != "a fox || a moon" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestStoryEditToolErrors(t *testing.T) {
	cases := []struct {
		name string
		args string
		err  error
		want model.Kind
	}{
		{"bad json", `{"story":`, nil, model.KindValidation},
		{"empty story", `{"story":"  "}`, nil, model.KindValidation},
		{"all filtered", `{"story":"So much hate."}`, nil, model.KindValidation},
		{"editor failure", `{"story":"A calm day."}`, model.ServiceError("editing", "Story editing failed", errors.New("boom")), model.KindService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tool := NewStoryEditTool(&stubEditor{err: tc.err}, nil)
			_, err := tool.InvokableRun(context.Background(), tc.args)
			if err == nil || model.KindOf(err) != tc.want {
				t.Fatalf("expected %s error, got %v", tc.want, err)
			}
		})
	}
}

func TestIllustrateTool(t *testing.T) {
	tool := NewIllustrateTool(&stubIllustrator{urls: []string{"https://img/1.png", "https://img/2.png"}})

	out, err := tool.InvokableRun(context.Background(), `{"prompt":"a fox || a moon"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var resp IllustrateResp
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || resp.Images[1] != "https://img/2.png" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestIllustrateToolErrors(t *testing.T) {
	cases := []struct {
		name string
		args string
		ill  *stubIllustrator
		want model.Kind
	}{
		{"missing prompt", `{}`, &stubIllustrator{}, model.KindValidation},
		{"no images", `{"prompt":"a fox"}`, &stubIllustrator{}, model.KindService},
		{"upstream", `{"prompt":"a fox"}`, &stubIllustrator{err: errors.New("quota")}, model.KindService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewIllustrateTool(tc.ill).InvokableRun(context.Background(), tc.args)
			if err == nil || model.KindOf(err) != tc.want {
				t.Fatalf("expected %s error, got %v", tc.want, err)
			}
		})
	}
}
