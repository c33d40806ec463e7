package model

import "time"

// MaxIllustrations 单次请求最多生成的插图数量
const MaxIllustrations = 5

// SceneDelimiter 插画提示词中分隔多个场景描述的标记
const SceneDelimiter = "||"

// EditResult 编辑阶段的产出，创建后不再修改
type EditResult struct {
	FinalStory        string `json:"final_story"`        // 编辑后的故事
	IllustratorPrompt string `json:"illustrator_prompt"` // 派生出的插画提示词
	EditorPrompt      string `json:"-"`                  // 实际发送的系统提示词
	RawResponse       string `json:"-"`                  // 上游原始响应(JSON)
}

// IllustrationSet 有序的插图URL集合，长度不超过 MaxIllustrations
type IllustrationSet struct {
	URLs        []string `json:"urls"`
	Prompts     []string `json:"-"` // 每张图实际使用的提示词
	RawResponse string   `json:"-"`
}

// Cover 返回封面图，即第一张插图
func (s *IllustrationSet) Cover() string {
	if s == nil || len(s.URLs) == 0 {
		return ""
	}
	return s.URLs[0]
}

// Len 返回插图数量
func (s *IllustrationSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.URLs)
}

// CompositeFormat 合成产物的格式
type CompositeFormat string

const (
	FormatText CompositeFormat = "text"
	FormatJSON CompositeFormat = "json"
	FormatHTML CompositeFormat = "html"
)

// CompositeInput 合成阶段的输入
type CompositeInput struct {
	FinalStory        string
	Illustrations     []string
	IllustratorPrompt string
}

// CompositeArtifact 合成阶段的产物
type CompositeArtifact struct {
	Format      CompositeFormat `json:"format"`
	Content     string          `json:"content"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// StoryBook 一次成功请求的完整结果
type StoryBook struct {
	RequestID         string             `json:"request_id"`
	FinalStory        string             `json:"final_story"`
	IllustratorPrompt string             `json:"illustrator_prompt"`
	Illustrations     []string           `json:"illustrations"`
	Composite         *CompositeArtifact `json:"composite"`
	StoryID           uint               `json:"story_id,omitempty"`
}

// PersistedStory 持久化的故事记录
type PersistedStory struct {
	ID                  uint      `json:"id" gorm:"primaryKey"`
	InputText           string    `json:"input_text" gorm:"type:text;not null"`
	EditedText          string    `json:"edited_text" gorm:"type:text;not null"`
	CoverImageURL       string    `json:"cover_image_url" gorm:"size:500"`
	EditorPrompt        string    `json:"editor_prompt" gorm:"type:text"`
	IllustratorPrompt   string    `json:"illustrator_prompt" gorm:"type:text"`
	EditorResponse      string    `json:"editor_response" gorm:"type:text"`
	IllustratorResponse string    `json:"illustrator_response" gorm:"type:text"`
	CreatedAt           time.Time `json:"created_at"`
}

// TableName 与原有库表保持一致
func (PersistedStory) TableName() string {
	return "stories"
}
