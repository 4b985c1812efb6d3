package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A SentActivity is an activity this instance has delivered. The log is
// pruned after a retention window; while an activity is in it, that activity
// echoed back to us is recognised as our own.
type SentActivity struct {
	ID        string    `gorm:"primarykey;size:255"`
	Data      string    `gorm:"type:text;not null"`
	Published time.Time `gorm:"index;not null"`
}

type SentActivities struct {
	db *gorm.DB
}

func NewSentActivities(db *gorm.DB) *SentActivities {
	return &SentActivities{db: db}
}

// Create records an activity. Recording the same id twice is not an error.
func (s *SentActivities) Create(id string, data []byte) error {
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&SentActivity{
		ID:        id,
		Data:      string(data),
		Published: time.Now(),
	}).Error
}

func (s *SentActivities) Read(id string) (*SentActivity, error) {
	var activity SentActivity
	return &activity, s.db.Where("id = ?", id).Take(&activity).Error
}

// Exists reports whether id is in the log.
func (s *SentActivities) Exists(id string) (bool, error) {
	var count int64
	err := s.db.Model(&SentActivity{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// DeleteBefore removes the activities published before t and returns the
// number removed.
func (s *SentActivities) DeleteBefore(t time.Time) (int64, error) {
	res := s.db.Where("published < ?", t).Delete(&SentActivity{})
	return res.RowsAffected, res.Error
}
