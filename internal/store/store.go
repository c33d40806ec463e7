package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kidsbook/internal/model"
)

// 连接池参数：5 个常驻连接，额外允许 2 个溢出，30 分钟回收
const (
	maxIdleConns    = 5
	maxOpenConns    = maxIdleConns + 2
	connMaxLifetime = 30 * time.Minute
)

var ErrNotFound = errors.New("story not found")

// Store 故事记录的持久化
type Store struct {
	db *gorm.DB
}

// Open 按 DSN 选择驱动：postgres 连接串走 postgres，其余按 sqlite 文件处理
func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, model.ConfigurationError("database connection string is empty")
	}
	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := db.AutoMigrate(&model.PersistedStory{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate stories table: %w", err)
	}
	logrus.WithField("driver", db.Dialector.Name()).Info("story store ready")
	return &Store{db: db}, nil
}

func dialector(dsn string) gorm.Dialector {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
}

// Save 在单个事务中写入记录，成功后 rec.ID 才有值
func (s *Store) Save(ctx context.Context, rec *model.PersistedStory) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
	if err != nil {
		rec.ID = 0
		return model.PersistenceError(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uint) (*model.PersistedStory, error) {
	var rec model.PersistedStory
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
