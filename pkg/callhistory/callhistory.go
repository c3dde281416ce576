package callhistory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/LingByte/LingBridge/pkg/errors"
	"github.com/LingByte/LingBridge/pkg/logger"
)

// CallRecord is one persisted call. Duration stays zero until the call ends.
type CallRecord struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	RoomID    string     `gorm:"index" json:"room_id"`
	Type      string     `json:"type"`
	StartedAt time.Time  `json:"start_time"`
	EndedAt   *time.Time `json:"end_time,omitempty"`
	Duration  int        `json:"duration"` // seconds
}

const callTypeVideo = "video"

// Service persists call records. It implements relay.Recorder so the hub can
// report room lifecycle without knowing about storage.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (*Service, error) {
	if err := db.AutoMigrate(&CallRecord{}); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeInternal, err)
	}
	return &Service{db: db}, nil
}

// Start opens a record for the room.
func (s *Service) Start(roomID string) (*CallRecord, error) {
	rec := &CallRecord{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Type:      callTypeVideo,
		StartedAt: time.Now().UTC(),
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeInternal, err)
	}
	return rec, nil
}

// End closes the most recent open record for the room and computes its
// duration. Ending a room with no open record is a no-op.
func (s *Service) End(roomID string) error {
	var rec CallRecord
	err := s.db.Where("room_id = ? AND ended_at IS NULL", roomID).
		Order("started_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodeInternal, err)
	}

	now := time.Now().UTC()
	rec.EndedAt = &now
	rec.Duration = int(now.Sub(rec.StartedAt).Seconds())
	if err := s.db.Save(&rec).Error; err != nil {
		return apperrors.WrapError(apperrors.ErrCodeInternal, err)
	}
	return nil
}

// List returns the newest records first.
func (s *Service) List(limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []CallRecord
	if err := s.db.Order("started_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeInternal, err)
	}
	return recs, nil
}

// Delete removes one record by ID.
func (s *Service) Delete(id string) error {
	res := s.db.Delete(&CallRecord{}, "id = ?", id)
	if res.Error != nil {
		return apperrors.WrapError(apperrors.ErrCodeInternal, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewAppErrorf(apperrors.ErrCodeNotFound, "call %s not found", id)
	}
	return nil
}

// CallStarted implements relay.Recorder.
func (s *Service) CallStarted(roomID string) {
	if _, err := s.Start(roomID); err != nil {
		logger.Error("[History] record start failed", zap.String("room", roomID), zap.Error(err))
	}
}

// CallEnded implements relay.Recorder.
func (s *Service) CallEnded(roomID string) {
	if err := s.End(roomID); err != nil {
		logger.Error("[History] record end failed", zap.String("room", roomID), zap.Error(err))
	}
}
