package main

import (
	"context"
	"fmt"

	"github.com/davecheney/wiki/models"
)

type CreateInstanceCmd struct {
	Name  string `help:"display name of the instance"`
	Topic string `help:"topic of the instance"`
	Admin string `help:"username of the admin account to create"`
}

func (c *CreateInstanceCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	var topic *string
	if c.Topic != "" {
		topic = &c.Topic
	}
	instances := models.NewInstances(env.DB)
	instance, err := instances.CreateLocal(env.Federation.Scheme(), env.Federation.Domain, topic)
	if err != nil {
		return err
	}
	if c.Name != "" {
		if instance, err = instances.UpdateFields(instance.ID, map[string]any{"name": c.Name}); err != nil {
			return err
		}
	}
	fmt.Println("created instance", instance.APID)
	if c.Admin == "" {
		return nil
	}
	admin, err := models.NewPersons(env.DB).CreateLocal(instance, c.Admin, true)
	if err != nil {
		return err
	}
	fmt.Println("created admin", admin.APID)
	return nil
}
