// Package store keeps a Postgres history of narration requests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lexiqai/article-voice/internal/pipeline"
)

// ErrNotFound is returned when finishing an unknown request
var ErrNotFound = errors.New("narration not found")

// Narration is one request and its outcome
type Narration struct {
	ID          string `gorm:"primaryKey;type:text"`
	Requester   string `gorm:"type:text;not null;index"`
	URL         string `gorm:"type:text;not null"`
	Status      string `gorm:"type:text;not null"`
	FailedStage string `gorm:"type:text"`
	FailedPart  *int
	Detail      string `gorm:"type:text"`
	Parts       int
	CreatedAt   time.Time `gorm:"type:timestamp with time zone"`
	UpdatedAt   time.Time `gorm:"type:timestamp with time zone"`
}

// TableName overrides the table name
func (Narration) TableName() string {
	return "narrations"
}

// StatusReceived marks a request that has not finished yet
const StatusReceived = "received"

// Repository implements pipeline.History on gorm
type Repository struct {
	DB *gorm.DB
}

// NewRepository wraps an open gorm handle
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

// Open connects to Postgres and migrates the narrations table
func Open(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&Narration{}); err != nil {
		return nil, fmt.Errorf("failed to migrate narrations: %w", err)
	}
	return NewRepository(db), nil
}

// Start inserts a received row for req
func (r *Repository) Start(ctx context.Context, req pipeline.Request) error {
	n := Narration{
		ID:        req.ID,
		Requester: req.Requester,
		URL:       req.URL,
		Status:    StatusReceived,
	}
	if err := r.DB.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("failed to insert narration: %w", err)
	}
	return nil
}

// Finish stores the outcome of request id
func (r *Repository) Finish(ctx context.Context, id string, outcome pipeline.Outcome) error {
	updates := map[string]interface{}{
		"status": outcome.Status,
		"parts":  outcome.Parts,
	}
	if f := outcome.Failure; f != nil {
		updates["failed_stage"] = string(f.Stage)
		updates["detail"] = f.Err.Error()
		if f.Stage == pipeline.StageSynthesize || f.Stage == pipeline.StageDeliver {
			updates["failed_part"] = f.Index
		}
	}

	res := r.DB.WithContext(ctx).
		Model(&Narration{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update narration: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Recent returns the latest narrations of requester, newest first
func (r *Repository) Recent(ctx context.Context, requester string, limit int) ([]Narration, error) {
	var out []Narration
	err := r.DB.WithContext(ctx).
		Where("requester = ?", requester).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list narrations: %w", err)
	}
	return out, nil
}

// Healthy pings the database
func (r *Repository) Healthy(ctx context.Context) (bool, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return false, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
