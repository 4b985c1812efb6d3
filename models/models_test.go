package models

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/davecheney/wiki/internal/crypto"
	"github.com/davecheney/wiki/internal/log"
	"github.com/davecheney/wiki/internal/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockInstance creates a remote instance in the database.
func MockInstance(t *testing.T, tx *gorm.DB, domain string) *Instance {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(err)

	apID := fmt.Sprintf("https://%s/", domain)
	instance := &Instance{
		ID:              snowflake.Now(),
		Domain:          domain,
		APID:            apID,
		ArticlesURL:     apID + "all_articles",
		InboxURL:        apID + "inbox",
		PublicKey:       string(kp.PublicKey),
		LastRefreshedAt: time.Now(),
	}
	require.NoError(tx.Create(instance).Error)
	return instance
}

// MockPerson creates a person on instance.
func MockPerson(t *testing.T, tx *gorm.DB, instance *Instance, name string) *Person {
	t.Helper()
	require := require.New(t)

	person := &Person{
		ID:              snowflake.Now(),
		Username:        name,
		APID:            fmt.Sprintf("%suser/%s", instance.APID, name),
		InboxURL:        instance.InboxURL,
		PublicKey:       instance.PublicKey,
		LastRefreshedAt: time.Now(),
		Local:           instance.Local,
	}
	require.NoError(tx.Create(person).Error)
	return person
}

// MockArticle creates an article on instance.
func MockArticle(t *testing.T, tx *gorm.DB, instance *Instance, title string) *Article {
	t.Helper()
	require := require.New(t)

	now := time.Now()
	article := &Article{
		ID:            snowflake.Now(),
		Title:         title,
		Text:          "about " + title,
		LatestVersion: Version("about " + title),
		APID:          ArticleAPID(instance, title),
		InstanceID:    instance.ID,
		Local:         instance.Local,
		Published:     now,
		Updated:       now,
	}
	require.NoError(tx.Create(article).Error)
	article.Instance = instance
	return article
}

// MockComment creates a comment on article by creator, below parent if not nil.
func MockComment(t *testing.T, tx *gorm.DB, creator *Person, article *Article, parent *Comment) *Comment {
	t.Helper()
	require := require.New(t)

	form := &CommentForm{
		ID:        snowflake.Now(),
		CreatorID: creator.ID,
		ArticleID: article.ID,
		Content:   "hello",
		Local:     creator.Local,
		Published: time.Now(),
	}
	if parent != nil {
		form.ParentID = &parent.ID
	}
	form.APID = fmt.Sprintf("%s/comment/%d", strings.TrimSuffix(article.Instance.APID, "/"), form.ID)
	comment, err := NewComments(tx).Create(form, 50)
	require.NoError(err)
	return comment
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: logger.Default.LogMode(func() logger.LogLevel {
			return logger.Warn
		}()),
	})
	require.NoError(err)

	sqlDB, err := db.DB()
	require.NoError(err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	err = db.AutoMigrate(AllTables()...)
	require.NoError(err)

	// enable foreign key constraints
	err = db.Exec("PRAGMA foreign_keys = ON").Error
	require.NoError(err)

	return db
}

func setupTestEnv(t *testing.T) *Env {
	t.Helper()
	return &Env{
		DB:     setupTestDB(t),
		Logger: log.Discard(),
	}
}
