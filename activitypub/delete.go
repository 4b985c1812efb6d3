package activitypub

import (
	"context"
	"errors"
	"fmt"

	"github.com/davecheney/wiki/models"
	"gorm.io/gorm"
)

// DeleteComment is the deletion of a comment by its author.
type DeleteComment struct {
	base
	// Object is the ap_id of the deleted comment.
	Object string
}

func (d *DeleteComment) Verify(ctx context.Context, env *Env) error {
	if err := d.verifyActor(); err != nil {
		return err
	}
	if err := verifyDomainsMatch(d.Object, d.actor); err != nil {
		return err
	}
	return env.verifyIsRemote(d.Object)
}

// Receive marks the comment deleted. Deleting an unknown comment is not an error.
func (d *DeleteComment) Receive(ctx context.Context, env *Env) error {
	comments := models.NewComments(env.DB)
	comment, err := comments.ReadByAPID(d.Object)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	creator, err := env.Resolver().Person(ctx, d.actor)
	if err != nil {
		return err
	}
	if comment.CreatorID != creator.ID {
		return fmt.Errorf("%s is not the author of %s", d.actor, d.Object)
	}
	if _, err := comments.Delete(comment.ID); err != nil {
		return err
	}
	article, err := models.NewArticles(env.DB).Read(comment.ArticleID)
	if err != nil {
		return err
	}
	if article.Local {
		env.dispatch(ctx, "announce delete", d.id, func(ctx context.Context) error {
			return env.announce(ctx, d)
		})
	}
	return nil
}

func (d *DeleteComment) JSON() map[string]any {
	return envelopeJSON(&d.base, "Delete", d.Object, []any{PublicCollection})
}
