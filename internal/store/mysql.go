package store

import (
	"context"
	"fmt"
	"time"

	"github.com/user/weather-bot-go/internal/config"
	"github.com/user/weather-bot-go/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// MySQLBackend persists subscribers in MySQL through gorm
type MySQLBackend struct {
	db *gorm.DB
}

// NewMySQLBackend connects to MySQL and migrates the subscribers table
func NewMySQLBackend(cfg *config.DBConfig) (*MySQLBackend, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&model.Subscriber{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLBackend{db: db}, nil
}

// Load retrieves all subscribers ordered by id
func (b *MySQLBackend) Load(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	result := b.db.WithContext(ctx).Order("id").Find(&subs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", result.Error)
	}
	return subs, nil
}

// Save upserts the changed subscriber
func (b *MySQLBackend) Save(ctx context.Context, changed model.Subscriber, _ []model.Subscriber) error {
	result := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"location", "delivery_time", "mode", "pending", "updated_at"}),
	}).Create(&changed)
	if result.Error != nil {
		return fmt.Errorf("failed to save subscriber: %w", result.Error)
	}
	return nil
}

// Ping checks database connectivity
func (b *MySQLBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (b *MySQLBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.Close()
}
