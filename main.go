package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"kidsbook/internal/agent"
	"kidsbook/internal/composer"
	"kidsbook/internal/config"
	"kidsbook/internal/filter"
	"kidsbook/internal/server"
	"kidsbook/internal/service"
	"kidsbook/internal/store"
	"kidsbook/internal/tools"
)

func main() {
	config.LoadDotEnv()
	appCfg := config.LoadAppConfig()

	// 初始化日志
	logCloser, err := config.InitLogging(appCfg)
	if err != nil {
		logrus.WithError(err).Fatal("init logging failed")
	}
	defer logCloser.Close()

	if err := run(appCfg); err != nil {
		logrus.WithError(err).Error("kidsbook exited with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(appCfg *config.AppConfig) error {
	ctx := context.Background()

	// 加载两个agent的配置
	var editorCfg config.EditorConfig
	if err := config.LoadAgent(appCfg.AgentConfigPath, config.EditorAgentKey, &editorCfg); err != nil {
		return err
	}
	var illustratorCfg config.IllustratorConfig
	if err := config.LoadAgent(appCfg.AgentConfigPath, config.IllustratorAgentKey, &illustratorCfg); err != nil {
		return err
	}
	format, err := composer.ParseFormat(appCfg.OutputFormat)
	if err != nil {
		return err
	}

	// 初始化编辑和插画agent
	chatModel, err := agent.NewChatModel(ctx, editorCfg)
	if err != nil {
		return err
	}
	editor, err := agent.NewEditor(ctx, editorCfg, chatModel)
	if err != nil {
		return err
	}
	imageGen, err := agent.NewImageGenerator(illustratorCfg)
	if err != nil {
		return err
	}
	illustrator := agent.NewIllustrator(illustratorCfg, imageGen)

	contentFilter := filter.New(filter.BannedKeywords...)
	opts := service.Options{
		Filter:      contentFilter,
		Editor:      editor,
		Illustrator: illustrator,
		Composer:    composer.New(appCfg.ComposeWorkers),
		Format:      format,
		Timeout:     appCfg.RequestTimeout,
	}

	handlers := server.Handlers{
		EditTool:  tools.NewStoryEditTool(editor, contentFilter),
		IllusTool: tools.NewIllustrateTool(illustrator),
	}

	// 配置了数据库才开启持久化
	if appCfg.DatabaseURL != "" {
		st, err := store.Open(appCfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Store = st
		handlers.Stories = st
	}

	books, err := service.NewStoryBookService(opts)
	if err != nil {
		return err
	}
	handlers.Books = books
	handlers.AgentInfo = gin.H{
		"name":              "kidsbook",
		"description":       "turns a story into an edited children's book with illustrations",
		"stages":            []string{service.StateFiltering, service.StateEditing, service.StateIllustrating, service.StateComposing, service.StatePersisting},
		"editor_provider":   editorCfg.Provider,
		"editor_model":      editorCfg.DeploymentName,
		"prompt_mode":       editorCfg.IllustratorPromptMode,
		"image_provider":    illustratorCfg.Provider,
		"image_model":       illustratorCfg.DeploymentName,
		"illustration_mode": illustratorCfg.Mode,
		"output_format":     format,
		"persistence":       books.Persistent(),
		"request_timeout":   appCfg.RequestTimeout.String(),
	}

	// 初始化Gin路由
	gin.SetMode(appCfg.GinMode)
	srv := &http.Server{
		Addr:    ":" + appCfg.Port,
		Handler: server.NewRouter(handlers),
	}

	// 在goroutine中启动服务器
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("服务器启动在 :%s", appCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logrus.Info("关闭服务器...")

	// 优雅关闭服务器，等待进行中的请求完成
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("服务器已关闭")
	return nil
}
