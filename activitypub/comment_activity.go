package activitypub

import (
	"context"
	"errors"
	"fmt"

	"github.com/davecheney/wiki/models"
	"gorm.io/gorm"
)

// CreateOrUpdateComment is a Create or Update of a Note by its author.
type CreateOrUpdateComment struct {
	base
	Kind   string
	Object *NoteObject
}

func (c *CreateOrUpdateComment) Verify(ctx context.Context, env *Env) error {
	if err := c.verifyActor(); err != nil {
		return err
	}
	if err := verifyDomainsMatch(c.Object.ID, c.actor); err != nil {
		return err
	}
	if c.Object.AttributedTo != c.actor {
		return fmt.Errorf("note %s is attributed to %s, not %s", c.Object.ID, c.Object.AttributedTo, c.actor)
	}
	return env.verifyIsRemote(c.Object.ID)
}

// Receive stores the comment. Comments on local articles are announced to
// the local instance's followers once the activity has been acknowledged.
func (c *CreateOrUpdateComment) Receive(ctx context.Context, env *Env) error {
	comment, err := env.storeComment(ctx, c.Object)
	if err != nil {
		return err
	}
	article, err := models.NewArticles(env.DB).Read(comment.ArticleID)
	if err != nil {
		return err
	}
	if article.Local {
		env.dispatch(ctx, "announce comment", c.id, func(ctx context.Context) error {
			return env.announce(ctx, c)
		})
	}
	return nil
}

func (c *CreateOrUpdateComment) JSON() map[string]any {
	return envelopeJSON(&c.base, c.Kind, c.Object.JSON(), []any{PublicCollection})
}

// storeComment places a remote comment in its article's tree. An update
// older than the stored copy is ignored.
func (e *Env) storeComment(ctx context.Context, note *NoteObject) (*models.Comment, error) {
	if err := e.verifyIsRemote(note.ID); err != nil {
		return nil, err
	}
	comments := e.Comments()
	existing, err := comments.ReadByAPID(note.ID)
	switch {
	case err == nil:
		if note.Updated != nil && existing.Updated != nil && note.Updated.Before(*existing.Updated) {
			e.Log().Info("ignoring stale comment update", "id", note.ID, "updated", *note.Updated, "stored", *existing.Updated)
			return existing, nil
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, err
	}
	parent, err := e.Resolver().ArticleOrComment(ctx, note.InReplyTo)
	if err != nil {
		return nil, err
	}
	creator, err := e.Resolver().Person(ctx, note.AttributedTo)
	if err != nil {
		return nil, err
	}
	form := &models.CommentForm{
		APID:      note.ID,
		CreatorID: creator.ID,
		Content:   note.Source,
		Published: note.Published,
		Updated:   note.Updated,
	}
	if parent.Article != nil {
		form.ArticleID = parent.Article.ID
	} else {
		form.ArticleID = parent.Comment.ArticleID
		form.ParentID = &parent.Comment.ID
	}
	return comments.Create(form, e.Federation.MaxCommentDepth)
}
