package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/davecheney/wiki/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// An Article is a wiki page. The instance it belongs to is authoritative
// for its content; other instances hold copies.
type Article struct {
	snowflake.ID  `gorm:"primarykey;autoIncrement:false"`
	Title         string       `gorm:"size:255;not null;uniqueIndex:idx_article_instance_title"`
	Text          string       `gorm:"type:text;not null"`
	LatestVersion string       `gorm:"size:64;not null"`
	APID          string       `gorm:"column:ap_id;size:255;uniqueIndex;not null"`
	InstanceID    snowflake.ID `gorm:"not null;uniqueIndex:idx_article_instance_title"`
	Instance      *Instance    `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	Local         bool         `gorm:"not null;default:false"`
	Protected     bool         `gorm:"not null;default:false"`
	Removed       bool         `gorm:"not null;default:false"`
	Published     time.Time    `gorm:"index"`
	Updated       time.Time
}

// Version returns the version identifier of text.
func Version(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

type Articles struct {
	db *gorm.DB
}

func NewArticles(db *gorm.DB) *Articles {
	return &Articles{db: db}
}

func (a *Articles) Read(id snowflake.ID) (*Article, error) {
	var article Article
	return &article, a.db.Preload("Instance").Where("id = ?", id).Take(&article).Error
}

func (a *Articles) ReadByAPID(apID string) (*Article, error) {
	var article Article
	return &article, a.db.Preload("Instance").Where("ap_id = ?", apID).Take(&article).Error
}

// ReadLocalByTitle returns the local article with the given title.
func (a *Articles) ReadLocalByTitle(title string) (*Article, error) {
	var article Article
	return &article, a.db.Preload("Instance").Where("title = ? AND local = ?", title, true).Take(&article).Error
}

// ReadAll returns articles ordered by most recently published. A nil local
// matches any locality; a nil instanceID matches any instance.
func (a *Articles) ReadAll(local *bool, instanceID *snowflake.ID, includeRemoved bool) ([]Article, error) {
	query := a.db.Preload("Instance")
	if local != nil {
		query = query.Where("local = ?", *local)
	}
	if instanceID != nil {
		query = query.Where("instance_id = ?", *instanceID)
	}
	if !includeRemoved {
		query = query.Where("removed = ?", false)
	}
	var articles []Article
	return articles, query.Order("published desc").Find(&articles).Error
}

// Upsert inserts article, or updates the existing row with the same ap_id.
func (a *Articles) Upsert(article *Article) (*Article, error) {
	if article.ID == 0 {
		article.ID = snowflake.Now()
	}
	if article.LatestVersion == "" {
		article.LatestVersion = Version(article.Text)
	}
	err := a.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ap_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title",
			"text",
			"latest_version",
			"protected",
			"updated",
		}),
	}).Create(article).Error
	if err != nil {
		return nil, err
	}
	return a.ReadByAPID(article.APID)
}

func (a *Articles) UpdateFields(id snowflake.ID, fields map[string]any) (*Article, error) {
	if _, err := updateFields[Article](a.db, id, fields); err != nil {
		return nil, err
	}
	return a.Read(id)
}

// CreateLocal creates an article on the local instance.
func (a *Articles) CreateLocal(instance *Instance, title, text string) (*Article, error) {
	now := time.Now()
	article := &Article{
		ID:            snowflake.TimeToID(now),
		Title:         title,
		Text:          text,
		LatestVersion: Version(text),
		APID:          ArticleAPID(instance, title),
		InstanceID:    instance.ID,
		Local:         true,
		Published:     now,
		Updated:       now,
	}
	if err := a.db.Create(article).Error; err != nil {
		return nil, err
	}
	return a.Read(article.ID)
}

// Edit replaces the text of a local article.
func (a *Articles) Edit(id snowflake.ID, text string) (*Article, error) {
	return a.UpdateFields(id, map[string]any{
		"text":           text,
		"latest_version": Version(text),
		"updated":        time.Now(),
	})
}

// Protect sets whether edits to the article are restricted to administrators.
func (a *Articles) Protect(id snowflake.ID, protected bool) (*Article, error) {
	return a.UpdateFields(id, map[string]any{"protected": protected})
}

// Remove sets whether the article is hidden from listings.
func (a *Articles) Remove(id snowflake.ID, removed bool) (*Article, error) {
	return a.UpdateFields(id, map[string]any{"removed": removed})
}

// Fork copies a remote article to the local instance under a new title.
func (a *Articles) Fork(article *Article, title string, local *Instance) (*Article, error) {
	if article.Local {
		return nil, fmt.Errorf("fork %s: article is already local", article.APID)
	}
	return a.CreateLocal(local, title, article.Text)
}

// ArticleAPID returns the ap_id of title on instance.
func ArticleAPID(instance *Instance, title string) string {
	return fmt.Sprintf("%s/article/%s", strings.TrimSuffix(instance.APID, "/"), url.PathEscape(title))
}
