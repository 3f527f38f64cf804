// Command servus-demo is a guestbook service with a status echo route.
//
// Routes:
//
//	POST /message       store {"author", "message"}
//	GET  /message/all   list stored messages
//	GET  /{status}      reply with that status and the configured response
//
// A database url is required, for example badger:///var/lib/servus or
// memory: for a throwaway store.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/servus-go/internal/cli/command"
	"github.com/yndnr/servus-go/internal/server/httpserver"
	"github.com/yndnr/servus-go/internal/storage"
)

const flagResponse = "response"

var errNoDatabase = errors.New("database url is needed for this demo")

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := command.NewApp("servus-demo", "guestbook demo service", serve,
		&cli.StringFlag{
			Name:    flagResponse,
			Aliases: []string{"r"},
			Usage:   "body returned by GET /{status}",
			EnvVars: []string{"TEST_RESPONSE"},
			Value:   "ok!",
		},
	)
	return app.Run(args)
}

func serve(c *cli.Context, rt *command.Runtime) error {
	if rt.Config.Database.URL == "" {
		return errNoDatabase
	}

	book, err := storage.Open(rt.Config.Database.URL, rt.Slog())
	if err != nil {
		return fmt.Errorf("open guestbook: %w", err)
	}
	defer book.Close()

	st := &state{book: book, response: c.String(flagResponse)}
	return httpserver.Serve(c.Context, rt.Addresses(), routes(), st, rt.HostOptions()...)
}
