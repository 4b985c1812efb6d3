package main

import (
	"context"
	"fmt"

	"github.com/davecheney/wiki/internal/snowflake"
	"github.com/davecheney/wiki/models"
)

type NotificationsCmd struct {
	Username string         `arg:"" help:"local person whose notifications to list"`
	Dismiss  []snowflake.ID `help:"ids of notifications to dismiss"`
}

func (c *NotificationsCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	person, err := models.NewPersons(env.DB).ReadLocal(c.Username)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Username, err)
	}
	notifications := models.NewNotifications(env.DB)
	for _, id := range c.Dismiss {
		if err := notifications.Delete(person.ID, id); err != nil {
			return err
		}
	}
	unread, err := notifications.ReadForPerson(person.ID)
	if err != nil {
		return err
	}
	for _, n := range unread {
		fmt.Printf("%s %s %s\n", n.ID, n.Published.Format("2006-01-02 15:04"), n.Comment.APID)
	}
	return nil
}
