package main

import (
	"context"

	"github.com/davecheney/wiki/workers"
)

type HouseKeepingCmd struct {
}

func (c *HouseKeepingCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	workers.RunOnce(context.Background(), env.Env, env.Federation.RetentionWindow)
	return nil
}
