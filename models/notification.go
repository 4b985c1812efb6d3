package models

import (
	"time"

	"github.com/davecheney/wiki/internal/snowflake"
	"gorm.io/gorm"
)

// A Notification tells a local person about a reply in a thread they took
// part in. Notifications are not federated.
type Notification struct {
	snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	PersonID     snowflake.ID `gorm:"not null;index"`
	Person       *Person      `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	CommentID    snowflake.ID `gorm:"not null"`
	Comment      *Comment     `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	ArticleID    snowflake.ID `gorm:"not null"`
	Published    time.Time
}

type Notifications struct {
	db *gorm.DB
}

func NewNotifications(db *gorm.DB) *Notifications {
	return &Notifications{db: db}
}

// NotifyThread notifies the local creators of the comment's ancestors,
// other than its own creator.
func (n *Notifications) NotifyThread(comment *Comment) error {
	ancestors, err := NewComments(n.db).Ancestors(comment)
	if err != nil {
		return err
	}
	seen := map[snowflake.ID]bool{comment.CreatorID: true}
	var recipients []snowflake.ID
	for _, ancestor := range ancestors {
		if seen[ancestor.CreatorID] {
			continue
		}
		seen[ancestor.CreatorID] = true
		recipients = append(recipients, ancestor.CreatorID)
	}
	if len(recipients) == 0 {
		return nil
	}
	var local []Person
	if err := n.db.Where("id IN ? AND local = ?", recipients, true).Find(&local).Error; err != nil {
		return err
	}
	now := time.Now()
	for _, person := range local {
		if err := n.db.Create(&Notification{
			ID:        snowflake.Now(),
			PersonID:  person.ID,
			CommentID: comment.ID,
			ArticleID: comment.ArticleID,
			Published: now,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReadForPerson returns a person's notifications, newest first.
func (n *Notifications) ReadForPerson(personID snowflake.ID) ([]Notification, error) {
	var notifications []Notification
	return notifications, n.db.Preload("Comment").Where("person_id = ?", personID).Order("published desc").Find(&notifications).Error
}

// Delete dismisses one of a person's notifications.
func (n *Notifications) Delete(personID, id snowflake.ID) error {
	res := n.db.Where("id = ? AND person_id = ?", id, personID).Delete(&Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
