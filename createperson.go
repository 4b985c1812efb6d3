package main

import (
	"context"
	"fmt"

	"github.com/davecheney/wiki/models"
)

type CreatePersonCmd struct {
	Username string `required:"" help:"username of the person to create"`
	Admin    bool   `help:"create an admin account"`
}

func (c *CreatePersonCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	local, err := env.LocalInstance()
	if err != nil {
		return fmt.Errorf("local instance: %w", err)
	}
	person, err := models.NewPersons(env.DB).CreateLocal(local, c.Username, c.Admin)
	if err != nil {
		return err
	}
	fmt.Println("created", person.APID)
	return nil
}
