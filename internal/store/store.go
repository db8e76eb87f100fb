// Package store opens the pooled gorm handle shared by every repository.
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"librarydesk/internal/config"
	"librarydesk/internal/models"
)

// PoolConfig bounds the underlying database/sql pool.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// Open connects to postgres, sizes the pool and pings the server once.
func Open(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	pool := PoolConfig{
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		ConnLifetime: cfg.ConnLifetime,
	}
	if err := Configure(db, pool); err != nil {
		return nil, err
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := Ping(pingCtx, db); err != nil {
		Close(db)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Printf("[INFO] store: connected to %s:%d/%s (max_open=%d)", cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.MaxOpenConns)
	return db, nil
}

// Configure applies pool limits to db.
func Configure(db *gorm.DB, pool PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get generic DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnLifetime)
	return nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("[WARN] store: close: %v", err)
	}
}

// AutoMigrate creates the three tables from the model definitions. Production
// schemas are managed with scripts/schema.sql; this exists for throwaway stores.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Book{}, &models.Member{}, &models.Transaction{})
}
