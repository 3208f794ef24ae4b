package model

import (
	"time"
)

// Session 화이트보드 세션 (drawingData는 저장 시 통째로 교체)
type Session struct {
	ID          string      `gorm:"primaryKey;type:varchar(36)" json:"_id"`
	SessionName string      `gorm:"type:varchar(200);not null" json:"sessionName"`
	DrawingData DrawingData `gorm:"not null" json:"drawingData"`
	CreatedAt   time.Time   `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Session) TableName() string {
	return "sessions"
}

// User 사용자
type User struct {
	ID        string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string       `gorm:"type:varchar(100);not null" json:"name"`
	Email     string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  *string      `gorm:"type:varchar(255)" json:"-"`
	Provider  AuthProvider `gorm:"type:varchar(50);default:'email'" json:"provider"`
	PhotoURL  *string      `gorm:"type:text" json:"photoURL,omitempty"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"createdAt"`
}

func (User) TableName() string {
	return "users"
}
