package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/davecheney/wiki/models"
	"gorm.io/gorm"
)

type CreateArticleCmd struct {
	Title string `required:"" help:"title of the article"`
	File  string `required:"" type:"existingfile" help:"file holding the article text"`
}

func (c *CreateArticleCmd) Run(ctx *Context) error {
	text, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	defer env.Wait()

	local, err := env.LocalInstance()
	if err != nil {
		return fmt.Errorf("local instance: %w", err)
	}
	articles := models.NewArticles(env.DB)
	article, err := articles.ReadLocalByTitle(c.Title)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		article, err = articles.CreateLocal(local, c.Title, string(text))
	case err == nil:
		article, err = articles.Edit(article.ID, string(text))
	}
	if err != nil {
		return err
	}
	fmt.Println(article.APID, article.LatestVersion)
	return env.PublishArticle(context.Background(), article)
}
