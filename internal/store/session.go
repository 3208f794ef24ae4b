// Package store is the durable side of the whiteboard: session records with
// their drawing snapshot, and user accounts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"stromboard/internal/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrEmptyName       = errors.New("session name is required")
)

// SessionStore is the persistence contract consumed by the relay and REST layers.
type SessionStore interface {
	CreateSession(ctx context.Context, name string) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context) ([]model.Session, error)
	UpdateDrawingData(ctx context.Context, id string, data model.DrawingData) error
	DeleteSession(ctx context.Context, id string) error
}

// GormSessionStore implements SessionStore on gorm.
type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) CreateSession(ctx context.Context, name string) (*model.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	session := &model.Session{
		ID:          uuid.NewString(),
		SessionName: name,
		DrawingData: model.EmptyDrawingData(),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *GormSessionStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &session, nil
}

// ListSessions returns sessions newest first.
func (s *GormSessionStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	sessions := make([]model.Session, 0)
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateDrawingData replaces the stored snapshot wholesale.
func (s *GormSessionStore) UpdateDrawingData(ctx context.Context, id string, data model.DrawingData) error {
	if data == nil {
		data = model.EmptyDrawingData()
	}
	result := s.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Update("drawing_data", data)
	if result.Error != nil {
		return fmt.Errorf("update drawing data %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *GormSessionStore) DeleteSession(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Session{})
	if result.Error != nil {
		return fmt.Errorf("delete session %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}
