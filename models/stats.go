package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InstanceStats is a single row of counters describing the local instance.
type InstanceStats struct {
	ID                  uint32 `gorm:"primarykey;autoIncrement:false"`
	Users               int64  `gorm:"not null;default:0"`
	Articles            int64  `gorm:"not null;default:0"`
	Comments            int64  `gorm:"not null;default:0"`
	UsersActiveMonth    int64  `gorm:"not null;default:0"`
	UsersActiveHalfYear int64  `gorm:"not null;default:0"`
	UpdatedAt           time.Time
}

const statsRowID = 1

type Stats struct {
	db *gorm.DB
}

func NewStats(db *gorm.DB) *Stats {
	return &Stats{db: db}
}

// Read returns the current counters, zero if they were never refreshed.
func (s *Stats) Read() (*InstanceStats, error) {
	var stats []InstanceStats
	if err := s.db.Where("id = ?", statsRowID).Find(&stats).Error; err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return &InstanceStats{ID: statsRowID}, nil
	}
	return &stats[0], nil
}

// Refresh recounts the local instance's users, articles and comments. A user
// is active if they commented within the period.
func (s *Stats) Refresh(now time.Time) (*InstanceStats, error) {
	stats := InstanceStats{ID: statsRowID, UpdatedAt: now}
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&stats.Users, s.db.Model(&Person{}).Where("local = ?", true)},
		{&stats.Articles, s.db.Model(&Article{}).Where("local = ? AND removed = ?", true, false)},
		{&stats.Comments, s.db.Model(&Comment{}).Where("local = ? AND deleted = ?", true, false)},
		{&stats.UsersActiveMonth, s.activeSince(now.AddDate(0, -1, 0))},
		{&stats.UsersActiveHalfYear, s.activeSince(now.AddDate(0, -6, 0))},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&stats).Error
	return &stats, err
}

func (s *Stats) activeSince(t time.Time) *gorm.DB {
	return s.db.Model(&Comment{}).Where("local = ? AND published > ?", true, t).Distinct("creator_id")
}
