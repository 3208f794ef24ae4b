package model

import (
	"bytes"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ErrDrawingDataNotArray drawingData는 JSON 배열이어야 함
var ErrDrawingDataNotArray = errors.New("drawingData must be a JSON array")

// DrawingData 세션 캔버스 스냅샷 (드로잉 작업의 순서 있는 JSON 배열)
type DrawingData []byte

// EmptyDrawingData 새 세션의 기본값
func EmptyDrawingData() DrawingData {
	return DrawingData("[]")
}

// NewDrawingData JSON 배열인지 검증 후 생성
func NewDrawingData(raw []byte) (DrawingData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' || !json.Valid(trimmed) {
		return nil, ErrDrawingDataNotArray
	}
	out := make(DrawingData, len(trimmed))
	copy(out, trimmed)
	return out, nil
}

// MarshalJSON 원본 JSON 그대로 출력
func (d DrawingData) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("[]"), nil
	}
	return d, nil
}

// UnmarshalJSON 배열만 허용
func (d *DrawingData) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = EmptyDrawingData()
		return nil
	}
	parsed, err := NewDrawingData(data)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value DB 저장 값
func (d DrawingData) Value() (driver.Value, error) {
	if len(d) == 0 {
		return "[]", nil
	}
	return string(d), nil
}

// Scan DB 조회 값
func (d *DrawingData) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = EmptyDrawingData()
	case []byte:
		*d = append(DrawingData(nil), v...)
	case string:
		*d = DrawingData(v)
	default:
		return fmt.Errorf("unsupported drawingData column type %T", value)
	}
	return nil
}

// GormDBDataType postgres는 jsonb, 그 외는 text
func (DrawingData) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}
