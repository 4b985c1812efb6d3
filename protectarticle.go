package main

import (
	"context"
	"fmt"

	"github.com/davecheney/wiki/models"
)

type ProtectArticleCmd struct {
	Title     string `required:"" help:"title of the local article"`
	Unprotect bool   `help:"allow anyone to edit the article again"`
}

func (c *ProtectArticleCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	defer env.Wait()

	article, err := models.NewArticles(env.DB).ReadLocalByTitle(c.Title)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Title, err)
	}
	article, err = env.ProtectArticle(context.Background(), article, !c.Unprotect)
	if err != nil {
		return err
	}
	fmt.Println(article.APID, "protected:", article.Protected)
	return nil
}
