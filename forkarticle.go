package main

import (
	"context"
	"fmt"
)

type ForkArticleCmd struct {
	Article string `arg:"" help:"ap_id of the remote article to fork"`
	Title   string `required:"" help:"title of the local copy"`
}

func (c *ForkArticleCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	defer env.Wait()

	fork, err := env.ForkArticle(context.Background(), c.Article, c.Title)
	if err != nil {
		return err
	}
	fmt.Println("forked", c.Article, "to", fork.APID)
	return nil
}
