package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/davecheney/wiki/activitypub"
	"github.com/davecheney/wiki/internal/config"
	"github.com/davecheney/wiki/internal/log"
	"github.com/davecheney/wiki/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Context struct {
	Debug  bool
	Domain string

	gorm.Config

	Log *slog.Logger
}

var cli struct {
	Debug  bool   `help:"Enable debug mode."`
	DSN    string `help:"data source name" env:"WIKI_DSN" required:""`
	Domain string `help:"domain name of the local instance, overrides WIKI_FEDERATION_DOMAIN"`

	AutoMigrate    AutoMigrateCmd    `cmd:"" help:"Create or update the database schema."`
	CreateInstance CreateInstanceCmd `cmd:"" help:"Create the local instance."`
	CreatePerson   CreatePersonCmd   `cmd:"" help:"Create a local person."`
	CreateArticle  CreateArticleCmd  `cmd:"" help:"Create or edit a local article and federate it."`
	ProtectArticle ProtectArticleCmd `cmd:"" help:"Restrict edits of a local article to administrators."`
	RemoveArticle  RemoveArticleCmd  `cmd:"" help:"Hide a local article from listings."`
	ForkArticle    ForkArticleCmd    `cmd:"" help:"Copy a remote article to the local instance."`
	Notifications  NotificationsCmd  `cmd:"" help:"List or dismiss a local person's notifications."`
	Follow         FollowCmd         `cmd:"" help:"Follow a remote instance and synchronise its articles."`
	Unfollow       UnfollowCmd       `cmd:"" help:"Stop following a remote instance."`
	FetchPerson    FetchPersonCmd    `cmd:"" help:"Resolve a remote person by handle or ap_id."`
	HouseKeeping   HouseKeepingCmd   `cmd:"" help:"Run the periodic maintenance tasks once."`
	Serve          ServeCmd          `cmd:"" help:"Serve the federation endpoints."`
}

func main() {
	ctx := kong.Parse(&cli)
	level := slog.LevelInfo
	gormLevel := logger.Warn
	if cli.Debug {
		level = slog.LevelDebug
		gormLevel = logger.Info
	}
	err := ctx.Run(&Context{
		Debug:  cli.Debug,
		Domain: cli.Domain,
		Config: gorm.Config{
			Dialector:      newDialector(cli.DSN),
			TranslateError: true,
			Logger:         logger.Default.LogMode(gormLevel),
		},
		Log: slog.New(log.NewHandler(os.Stderr, "", level)),
	})
	ctx.FatalIfErrorf(err)
}

// openDB opens and configures the database.
func (c *Context) openDB() (*gorm.DB, error) {
	db, err := gorm.Open(c.Dialector, &c.Config)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		return nil, err
	}
	return db, nil
}

// newEnv opens the database and returns the federation environment
// configured from the process environment.
func (c *Context) newEnv(ctx context.Context) (*activitypub.Env, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if c.Domain != "" {
		cfg.Federation.Domain = c.Domain
	}
	db, err := c.openDB()
	if err != nil {
		return nil, err
	}
	return activitypub.NewEnv(&models.Env{DB: db, Logger: c.Log}, cfg)
}
