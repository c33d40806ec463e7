package server

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kidsbook/internal/model"
	"kidsbook/internal/service"
	"kidsbook/internal/store"
)

//go:embed web/index.html
var indexHTML []byte

//go:embed web/scripts.js
var scriptsJS []byte

const requestIDHeader = "X-Request-ID"

// BookCreator 绘本生成流程
type BookCreator interface {
	Create(ctx context.Context, story string) (*model.StoryBook, error)
}

// StoryReader 已持久化故事的读取
type StoryReader interface {
	Get(ctx context.Context, id uint) (*model.PersistedStory, error)
}

// Handlers 路由依赖，Stories 和工具为空时不注册对应路由
type Handlers struct {
	Books     BookCreator
	Stories   StoryReader
	EditTool  einotool.InvokableTool
	IllusTool einotool.InvokableTool
	AgentInfo gin.H
}

// NewRouter 初始化Gin路由
func NewRouter(h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog())

	router.GET("/", handleIndex)
	router.GET("/static/js/scripts.js", handleScripts)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/create_kids_book/", handleCreateKidsBook(h.Books))
	router.GET("/agent/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.AgentInfo)
	})
	if h.Stories != nil {
		router.GET("/stories/:id", handleGetStory(h.Stories))
	}
	if h.EditTool != nil {
		router.POST("/tools/story-edit", handleTool(h.EditTool))
	}
	if h.IllusTool != nil {
		router.POST("/tools/illustrate", handleTool(h.IllusTool))
	}
	return router
}

// requestID 为每个请求分配ID，并放进请求的 ctx
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(service.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logrus.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).Round(time.Millisecond),
			"client_ip":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request completed with error")
			return
		}
		entry.Info("request completed")
	}
}

func handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func handleScripts(c *gin.Context) {
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", scriptsJS)
}

// handleCreateKidsBook 接收表单或JSON中的 story 字段
func handleCreateKidsBook(books BookCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		story, err := readStory(c)
		if err != nil {
			writeError(c, err)
			return
		}

		book, err := books.Create(c.Request.Context(), story)
		if err != nil {
			writeError(c, err)
			return
		}

		resp := gin.H{
			"status":              "success",
			"request_id":          book.RequestID,
			"final_story":         book.FinalStory,
			"illustrations":       book.Illustrations,
			"illustrator_prompt":  book.IllustratorPrompt,
			"processing_complete": true,
		}
		if a := book.Composite; a != nil {
			if a.Format == model.FormatHTML {
				resp["html_content"] = a.Content
			} else {
				resp["composite_story"] = a.Content
			}
			resp["generated_at"] = a.GeneratedAt
		}
		if book.StoryID != 0 {
			resp["story_id"] = book.StoryID
		}
		c.JSON(http.StatusOK, resp)
	}
}

func readStory(c *gin.Context) (string, error) {
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		var req struct {
			Story string `json:"story"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			return "", model.ValidationError("Invalid request body")
		}
		return req.Story, nil
	}
	return c.PostForm("story"), nil
}

func handleGetStory(stories StoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || id == 0 {
			writeError(c, model.ValidationError("Invalid story id"))
			return
		}
		rec, err := stories.Get(c.Request.Context(), uint(id))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Story not found"})
			return
		}
		if err != nil {
			writeError(c, model.PersistenceError(err))
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// handleTool 直接把请求体作为工具参数
func handleTool(t einotool.InvokableTool) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			writeError(c, model.ValidationError("Invalid request body"))
			return
		}
		result, err := t.InvokableRun(c.Request.Context(), string(body))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(result))
	}
}

func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"status":              "error",
		"error":               model.Message(err),
		"processing_complete": false,
	})
}
