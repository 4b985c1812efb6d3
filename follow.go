package main

import (
	"context"
	"fmt"

	"github.com/davecheney/wiki/models"
)

type FollowCmd struct {
	Instance string `arg:"" help:"ap_id of the instance to follow"`
}

func (f *FollowCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	defer env.Wait()

	res, err := env.FollowInstance(context.Background(), f.Instance)
	if err != nil {
		return err
	}
	fmt.Printf("applied %d, skipped %d, failed %d\n", res.Applied, res.Skipped, len(res.Failures))
	for _, failure := range res.Failures {
		fmt.Printf("  %s: %v\n", failure.ID, failure.Err)
	}
	return nil
}

type UnfollowCmd struct {
	Instance string `arg:"" help:"ap_id of the instance to unfollow"`
}

func (u *UnfollowCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	defer env.Wait()

	target, err := models.NewInstances(env.DB).ReadByAPID(u.Instance)
	if err != nil {
		return fmt.Errorf("%s: %w", u.Instance, err)
	}
	return env.UnfollowInstance(context.Background(), target)
}
