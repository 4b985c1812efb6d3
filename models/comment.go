package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/davecheney/wiki/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A Comment is attached to an Article, and optionally to a parent Comment
// on the same Article. Deleted comments keep their place in the tree.
type Comment struct {
	snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatorID    snowflake.ID  `gorm:"not null"`
	Creator      *Person       `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	ArticleID    snowflake.ID  `gorm:"not null;index"`
	Article      *Article      `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	ParentID     *snowflake.ID `gorm:"index"`
	Content      string        `gorm:"type:text;not null"`
	Depth        int           `gorm:"not null;default:0"`
	APID         string        `gorm:"column:ap_id;size:255;uniqueIndex;not null"`
	Local        bool          `gorm:"not null;default:false"`
	Deleted      bool          `gorm:"not null;default:false"`
	Published    time.Time     `gorm:"index"`
	Updated      *time.Time
}

// Redacted returns the comment as presented to readers: the content of a
// deleted comment is empty.
func (c Comment) Redacted() Comment {
	if c.Deleted {
		c.Content = ""
	}
	return c
}

// CommentForm is the input to Comments.Create.
type CommentForm struct {
	// ID is assigned if zero.
	ID        snowflake.ID
	APID      string
	CreatorID snowflake.ID
	ArticleID snowflake.ID
	ParentID  *snowflake.ID
	Content   string
	Local     bool
	Deleted   bool
	Published time.Time
	Updated   *time.Time
}

// CommentView is a redacted comment with its creator.
type CommentView struct {
	Comment Comment
	Creator Person
}

type Comments struct {
	db  *gorm.DB
	env *Env
}

// NewComments returns a comment store over db. Comments created through it
// do not dispatch notifications; use Env.Comments for that.
func NewComments(db *gorm.DB) *Comments {
	return &Comments{db: db}
}

// Comments returns a comment store which notifies the participants of a
// thread when a comment is created.
func (e *Env) Comments() *Comments {
	return &Comments{db: e.DB, env: e}
}

func (c *Comments) Read(id snowflake.ID) (*Comment, error) {
	var comment Comment
	return &comment, c.db.Where("id = ?", id).Take(&comment).Error
}

func (c *Comments) ReadByAPID(apID string) (*Comment, error) {
	var comment Comment
	return &comment, c.db.Where("ap_id = ?", apID).Take(&comment).Error
}

// ReadView returns the redacted comment with the given id.
func (c *Comments) ReadView(id snowflake.ID) (*CommentView, error) {
	var comment Comment
	if err := c.db.Preload("Creator").Where("id = ?", id).Take(&comment).Error; err != nil {
		return nil, err
	}
	return newCommentView(comment), nil
}

// ReadForArticle returns the redacted comments of an article, most recently
// published first.
func (c *Comments) ReadForArticle(articleID snowflake.ID) ([]CommentView, error) {
	var comments []Comment
	if err := c.db.Preload("Creator").Where("article_id = ?", articleID).Order("published desc").Find(&comments).Error; err != nil {
		return nil, err
	}
	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		views = append(views, *newCommentView(comment))
	}
	return views, nil
}

func newCommentView(comment Comment) *CommentView {
	var creator Person
	if comment.Creator != nil {
		creator = *comment.Creator
	}
	comment.Creator = nil
	return &CommentView{
		Comment: comment.Redacted(),
		Creator: creator,
	}
}

// Depth returns the depth of a comment with the given parent on articleID.
func (c *Comments) Depth(articleID snowflake.ID, parentID *snowflake.ID) (int, error) {
	if parentID == nil {
		return 0, nil
	}
	parent, err := c.Read(*parentID)
	if err != nil {
		return 0, fmt.Errorf("read parent %d: %w", *parentID, err)
	}
	if parent.ArticleID != articleID {
		return 0, ErrParentMismatch
	}
	return parent.Depth + 1, nil
}

// Create places a comment in its article's tree and stores it, updating the
// existing row with the same ap_id if there is one. Comments deeper than
// maxDepth are rejected with ErrMaxDepthExceeded.
func (c *Comments) Create(form *CommentForm, maxDepth int) (*Comment, error) {
	if form.APID == "" {
		return nil, errors.New("comment has no ap_id")
	}
	depth, err := c.Depth(form.ArticleID, form.ParentID)
	if err != nil {
		return nil, err
	}
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: depth %d, max %d", ErrMaxDepthExceeded, depth, maxDepth)
	}
	comment := &Comment{
		ID:        form.ID,
		CreatorID: form.CreatorID,
		ArticleID: form.ArticleID,
		ParentID:  form.ParentID,
		Content:   form.Content,
		Depth:     depth,
		APID:      form.APID,
		Local:     form.Local,
		Deleted:   form.Deleted,
		Published: form.Published,
		Updated:   form.Updated,
	}
	if comment.ID == 0 {
		comment.ID = snowflake.Now()
	}
	if comment.Published.IsZero() {
		comment.Published = comment.ID.ToTime()
	}
	err = c.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ap_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content",
			"deleted",
			"updated",
		}),
	}).Create(comment).Error
	if err != nil {
		return nil, err
	}
	stored, err := c.ReadByAPID(comment.APID)
	if err != nil {
		return nil, err
	}
	if c.env != nil {
		c.env.Go(func() {
			if err := NewNotifications(c.env.DB).NotifyThread(stored); err != nil {
				c.env.Log().Warn("notify", "comment", stored.APID, "error", err)
			}
		})
	}
	return stored, nil
}

// UpdateFields applies a sparse update to a comment.
func (c *Comments) UpdateFields(id snowflake.ID, fields map[string]any) (*Comment, error) {
	return updateFields[Comment](c.db, id, fields)
}

// Delete marks the comment deleted. Its row, and its place in the tree, remain.
func (c *Comments) Delete(id snowflake.ID) (*Comment, error) {
	now := time.Now()
	return c.UpdateFields(id, map[string]any{"deleted": true, "updated": now})
}

// Ancestors returns the parents of comment, nearest first.
func (c *Comments) Ancestors(comment *Comment) ([]Comment, error) {
	var ancestors []Comment
	for parentID := comment.ParentID; parentID != nil; {
		parent, err := c.Read(*parentID)
		if err != nil {
			return nil, err
		}
		ancestors = append(ancestors, *parent)
		parentID = parent.ParentID
	}
	return ancestors, nil
}
