package activitypub

import (
	"context"
	"fmt"
	"time"

	"github.com/davecheney/wiki/internal/snowflake"
	"github.com/davecheney/wiki/models"
	"github.com/go-json-experiment/json"
)

// PublishArticle announces the current form of a local article to the
// local instance's followers.
func (e *Env) PublishArticle(ctx context.Context, article *models.Article) error {
	if !article.Local {
		return fmt.Errorf("publish %s: article is not local", article.APID)
	}
	local, err := e.LocalInstance()
	if err != nil {
		return err
	}
	article.Instance = local
	update := &UpdateArticle{
		base:   base{id: e.newActivityID(), actor: local.APID},
		Kind:   "Update",
		Object: articleObject(article),
	}
	return e.announce(ctx, update)
}

// ProtectArticle sets whether edits to an article are restricted to
// administrators. A change to a local article is published.
func (e *Env) ProtectArticle(ctx context.Context, article *models.Article, protected bool) (*models.Article, error) {
	updated, err := models.NewArticles(e.DB).Protect(article.ID, protected)
	if err != nil {
		return nil, err
	}
	if !updated.Local {
		return updated, nil
	}
	return updated, e.PublishArticle(ctx, updated)
}

// RemoveArticle hides an article from listings, or restores it. A
// restored local article is published again.
func (e *Env) RemoveArticle(ctx context.Context, article *models.Article, removed bool) (*models.Article, error) {
	updated, err := models.NewArticles(e.DB).Remove(article.ID, removed)
	if err != nil {
		return nil, err
	}
	if removed || !updated.Local {
		return updated, nil
	}
	return updated, e.PublishArticle(ctx, updated)
}

// ForkArticle copies the remote article with the given ap_id to the local
// instance under title, and publishes the copy.
func (e *Env) ForkArticle(ctx context.Context, apID, title string) (*models.Article, error) {
	local, err := e.LocalInstance()
	if err != nil {
		return nil, err
	}
	remote, err := e.Resolver().Article(WithFetchBudget(ctx, e.Federation.FetchLimit), apID)
	if err != nil {
		return nil, err
	}
	fork, err := models.NewArticles(e.DB).Fork(remote, title, local)
	if err != nil {
		return nil, err
	}
	return fork, e.PublishArticle(ctx, fork)
}

// CreateComment stores a comment by a local person and federates it.
func (e *Env) CreateComment(ctx context.Context, creator *models.Person, article *models.Article, parent *models.Comment, content string) (*models.Comment, error) {
	id := snowflake.Now()
	form := &models.CommentForm{
		ID:        id,
		APID:      e.url("/comment/%s", id),
		CreatorID: creator.ID,
		ArticleID: article.ID,
		Content:   content,
		Local:     true,
		Published: time.Now(),
	}
	if parent != nil {
		form.ParentID = &parent.ID
	}
	comment, err := e.Comments().Create(form, e.Federation.MaxCommentDepth)
	if err != nil {
		return nil, err
	}
	return comment, e.federateComment(ctx, "Create", creator, comment)
}

// UpdateComment replaces the content of a local comment and federates the edit.
func (e *Env) UpdateComment(ctx context.Context, creator *models.Person, comment *models.Comment, content string) (*models.Comment, error) {
	if comment.CreatorID != creator.ID {
		return nil, fmt.Errorf("%s is not the author of %s", creator.APID, comment.APID)
	}
	updated, err := models.NewComments(e.DB).UpdateFields(comment.ID, map[string]any{
		"content": content,
		"updated": time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return updated, e.federateComment(ctx, "Update", creator, updated)
}

// DeleteComment marks a local comment deleted and federates the deletion.
func (e *Env) DeleteComment(ctx context.Context, creator *models.Person, comment *models.Comment) (*models.Comment, error) {
	if comment.CreatorID != creator.ID {
		return nil, fmt.Errorf("%s is not the author of %s", creator.APID, comment.APID)
	}
	deleted, err := models.NewComments(e.DB).Delete(comment.ID)
	if err != nil {
		return nil, err
	}
	del := &DeleteComment{
		base:   base{id: e.newActivityID(), actor: creator.APID},
		Object: deleted.APID,
	}
	return deleted, e.deliverToArticle(ctx, creator, deleted.ArticleID, del)
}

func (e *Env) federateComment(ctx context.Context, kind string, creator *models.Person, comment *models.Comment) error {
	note, err := e.noteOf(comment)
	if err != nil {
		return err
	}
	activity := &CreateOrUpdateComment{
		base:   base{id: e.newActivityID(), actor: creator.APID},
		Kind:   kind,
		Object: note,
	}
	return e.deliverToArticle(ctx, creator, comment.ArticleID, activity)
}

// deliverToArticle sends a comment activity to the instance which owns the
// article, or announces it if that instance is this one.
func (e *Env) deliverToArticle(ctx context.Context, creator *models.Person, articleID snowflake.ID, activity Activity) error {
	article, err := models.NewArticles(e.DB).Read(articleID)
	if err != nil {
		return err
	}
	if article.Local {
		if err := e.recordSent(activity); err != nil {
			return err
		}
		return e.announce(ctx, activity)
	}
	client, err := NewClient(creator.KeyID(), creator.PrivateKey, e.transport())
	if err != nil {
		return err
	}
	e.Send(ctx, client, activity, []string{article.Instance.InboxURL})
	return nil
}

// recordSent adds an activity which is only delivered wrapped in an
// Announce to the outbox log.
func (e *Env) recordSent(activity Activity) error {
	body, err := json.Marshal(activity.JSON())
	if err != nil {
		return err
	}
	return models.NewSentActivities(e.DB).Create(activity.ID(), body)
}

// noteOf returns the federated form of a stored comment.
func (e *Env) noteOf(comment *models.Comment) (*NoteObject, error) {
	creator, err := models.NewPersons(e.DB).Read(comment.CreatorID)
	if err != nil {
		return nil, err
	}
	var inReplyTo string
	if comment.ParentID != nil {
		parent, err := models.NewComments(e.DB).Read(*comment.ParentID)
		if err != nil {
			return nil, err
		}
		inReplyTo = parent.APID
	} else {
		article, err := models.NewArticles(e.DB).Read(comment.ArticleID)
		if err != nil {
			return nil, err
		}
		inReplyTo = article.APID
	}
	return noteObject(comment, creator, inReplyTo), nil
}

// FollowInstance follows the instance with the given ap_id, then
// synchronises its articles.
func (e *Env) FollowInstance(ctx context.Context, apID string) (*SyncResult, error) {
	local, err := e.LocalInstance()
	if err != nil {
		return nil, err
	}
	target, err := e.Resolver().Instance(WithFetchBudget(ctx, e.Federation.FetchLimit), apID)
	if err != nil {
		return nil, err
	}
	if target.Local {
		return nil, fmt.Errorf("follow %s: cannot follow the local instance", apID)
	}
	instances := models.NewInstances(e.DB)
	if err := instances.Follow(target, local, true); err != nil {
		return nil, err
	}
	client, err := e.instanceClient()
	if err != nil {
		return nil, err
	}
	follow := &Follow{
		base:   base{id: e.newActivityID(), actor: local.APID},
		Object: target.APID,
	}
	e.Send(ctx, client, follow, []string{target.InboxURL})
	return e.FetchArticles(ctx, target)
}

// UnfollowInstance withdraws the local instance's follow of target.
func (e *Env) UnfollowInstance(ctx context.Context, target *models.Instance) error {
	local, err := e.LocalInstance()
	if err != nil {
		return err
	}
	if err := models.NewInstances(e.DB).Unfollow(target, local); err != nil {
		return err
	}
	client, err := e.instanceClient()
	if err != nil {
		return err
	}
	undo := &Undo{
		base: base{id: e.newActivityID(), actor: local.APID},
		Object: &Follow{
			base:   base{id: e.newActivityID(), actor: local.APID},
			Object: target.APID,
		},
	}
	e.Send(ctx, client, undo, []string{target.InboxURL})
	return nil
}
