package main

import (
	"context"
	"os"
	"strings"

	"github.com/davecheney/wiki/activitypub"
	"github.com/davecheney/wiki/models"
	"github.com/go-json-experiment/json"
)

type FetchPersonCmd struct {
	Person string `arg:"" help:"user@host handle or ap_id of the person to fetch"`
}

func (f *FetchPersonCmd) Run(ctx *Context) error {
	env, err := ctx.newEnv(context.Background())
	if err != nil {
		return err
	}
	var person *models.Person
	if strings.HasPrefix(f.Person, "http://") || strings.HasPrefix(f.Person, "https://") {
		person, err = env.Resolver().Person(activitypub.WithFetchBudget(context.Background(), env.Federation.FetchLimit), f.Person)
	} else {
		person, err = env.ResolveAcct(context.Background(), f.Person)
	}
	if err != nil {
		return err
	}
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{Indent: "  "}, os.Stdout, map[string]any{
		"id":              person.ID,
		"ap_id":           person.APID,
		"username":        person.Username,
		"local":           person.Local,
		"lastRefreshedAt": person.LastRefreshedAt,
	})
}
