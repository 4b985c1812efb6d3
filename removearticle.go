package main

import (
	"context"
	"fmt"

	"github.com/davecheney/wiki/models"
)

type RemoveArticleCmd struct {
	Title   string `required:"" help:"title of the local article"`
	Restore bool   `help:"restore a removed article and publish it again"`
}

func (c *RemoveArticleCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	defer env.Wait()

	article, err := models.NewArticles(env.DB).ReadLocalByTitle(c.Title)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Title, err)
	}
	article, err = env.RemoveArticle(context.Background(), article, !c.Restore)
	if err != nil {
		return err
	}
	fmt.Println(article.APID, "removed:", article.Removed)
	return nil
}
