package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kidsbook/internal/filter"
	"kidsbook/internal/model"
)

// 请求处理的各个状态
const (
	StateReceived     = "received"
	StateFiltering    = "filtering"
	StateEditing      = "editing"
	StateIllustrating = "illustrating"
	StateComposing    = "composing"
	StatePersisting   = "persisting"
	StateResponding   = "responding"
	StateFailed       = "failed"
)

const DefaultTimeout = 5 * time.Minute

var stageMessages = map[string]string{
	StateEditing:      "Story editing failed",
	StateIllustrating: "Illustration generation failed",
	StateComposing:    "Story composition failed",
}

type StoryEditor interface {
	Edit(ctx context.Context, story string) (*model.EditResult, error)
}

type StoryIllustrator interface {
	Illustrate(ctx context.Context, illustratorPrompt string) (*model.IllustrationSet, error)
}

type StoryComposer interface {
	Compose(ctx context.Context, format model.CompositeFormat, in model.CompositeInput) (*model.CompositeArtifact, error)
}

// StoryStore 为空时不做持久化
type StoryStore interface {
	Save(ctx context.Context, rec *model.PersistedStory) error
}

type Options struct {
	Filter      *filter.Filter
	Editor      StoryEditor
	Illustrator StoryIllustrator
	Composer    StoryComposer
	Store       StoryStore
	Format      model.CompositeFormat
	Timeout     time.Duration
}

// StoryBookService 串行执行 过滤 -> 编辑 -> 插画 -> 合成 -> 持久化，
// 全程共用一个时间预算
type StoryBookService struct {
	opts Options
}

func NewStoryBookService(opts Options) (*StoryBookService, error) {
	if opts.Editor == nil || opts.Illustrator == nil || opts.Composer == nil {
		return nil, errors.New("editor, illustrator and composer are required")
	}
	if opts.Filter == nil {
		opts.Filter = filter.New(filter.BannedKeywords...)
	}
	if opts.Format == "" {
		opts.Format = model.FormatHTML
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &StoryBookService{opts: opts}, nil
}

// Persistent 是否开启了持久化
func (s *StoryBookService) Persistent() bool {
	return s.opts.Store != nil
}

func (s *StoryBookService) Create(ctx context.Context, story string) (*model.StoryBook, error) {
	requestID := RequestID(ctx)
	ctx = WithRequestID(ctx, requestID)
	log := logrus.WithField("request_id", requestID)
	log.WithField("state", StateReceived).Info("story book request received")

	if strings.TrimSpace(story) == "" {
		return nil, s.fail(ctx, log, StateReceived, model.ValidationError("No story provided"))
	}

	budget, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	started := time.Now()

	log.WithField("state", StateFiltering).Info("stage started")
	filtered := s.opts.Filter.Apply(story)
	if filtered == "" {
		return nil, s.fail(budget, log, StateFiltering, model.ValidationError("Story has no content suitable for children"))
	}

	log.WithField("state", StateEditing).Info("stage started")
	edit, err := s.opts.Editor.Edit(budget, filtered)
	if err == nil && (edit == nil || edit.FinalStory == "") {
		err = errors.New("empty edit result")
	}
	if err == nil {
		err = budget.Err()
	}
	if err != nil {
		return nil, s.fail(budget, log, StateEditing, err)
	}

	log.WithField("state", StateIllustrating).Info("stage started")
	set, err := s.opts.Illustrator.Illustrate(budget, edit.IllustratorPrompt)
	if err == nil && set.Len() == 0 {
		err = errors.New("no illustrations generated")
	}
	if err == nil {
		err = budget.Err()
	}
	if err != nil {
		return nil, s.fail(budget, log, StateIllustrating, err)
	}

	log.WithField("state", StateComposing).Info("stage started")
	artifact, err := s.opts.Composer.Compose(budget, s.opts.Format, model.CompositeInput{
		FinalStory:        edit.FinalStory,
		Illustrations:     set.URLs,
		IllustratorPrompt: edit.IllustratorPrompt,
	})
	if err == nil && (artifact == nil || artifact.Content == "") {
		err = errors.New("empty composite")
	}
	if err != nil {
		return nil, s.fail(budget, log, StateComposing, err)
	}

	book := &model.StoryBook{
		RequestID:         requestID,
		FinalStory:        edit.FinalStory,
		IllustratorPrompt: edit.IllustratorPrompt,
		Illustrations:     set.URLs,
		Composite:         artifact,
	}

	if s.opts.Store != nil {
		log.WithField("state", StatePersisting).Info("stage started")
		rec := &model.PersistedStory{
			InputText:           story,
			EditedText:          edit.FinalStory,
			CoverImageURL:       set.Cover(),
			EditorPrompt:        edit.EditorPrompt,
			IllustratorPrompt:   edit.IllustratorPrompt,
			EditorResponse:      edit.RawResponse,
			IllustratorResponse: set.RawResponse,
		}
		if err := s.opts.Store.Save(budget, rec); err != nil {
			return nil, s.fail(budget, log, StatePersisting, err)
		}
		book.StoryID = rec.ID
	}

	log.WithFields(logrus.Fields{
		"state":         StateResponding,
		"illustrations": set.Len(),
		"story_id":      book.StoryID,
		"elapsed":       time.Since(started).Round(time.Millisecond),
	}).Info("story book created")
	return book, nil
}

// fail 统一错误分类：预算耗尽一律按超时处理，其余未分类错误按所在阶段包装
func (s *StoryBookService) fail(ctx context.Context, log *logrus.Entry, stage string, err error) error {
	var typed *model.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = model.TimeoutError(stage, err)
	case stage == StatePersisting:
		if !errors.As(err, &typed) {
			err = model.PersistenceError(err)
		}
	case !errors.As(err, &typed):
		msg, ok := stageMessages[stage]
		if !ok {
			msg = "Story processing failed"
		}
		err = model.ServiceError(stage, msg, err)
	}
	log.WithError(err).WithFields(logrus.Fields{
		"state": StateFailed,
		"stage": stage,
		"kind":  model.KindOf(err),
	}).Error("story book request failed")
	return err
}

// WithRequestID 把请求ID放入 ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return model.WithRequestID(ctx, id)
}

// RequestID 取出请求ID，没有时生成一个新的
func RequestID(ctx context.Context) string {
	if id := model.RequestIDFrom(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
