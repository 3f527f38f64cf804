// Command servus-echo echoes the last path segment of GET /echo/{message}.
//
// It runs only the application listener: no metrics endpoint and no shared
// state.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/servus-go/internal/cli/command"
	"github.com/yndnr/servus-go/internal/server/httpserver"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return command.NewApp("servus-echo", "echo example service", serve).Run(args)
}

func serve(c *cli.Context, rt *command.Runtime) error {
	addrs := httpserver.Addresses{HTTP: rt.Config.HTTP.Address}
	return httpserver.Serve(c.Context, addrs, routes(), nil, rt.HostOptions()...)
}

func routes() *httpserver.RouteTable {
	return httpserver.NewRouteTable().Get("/echo/{message}", echo)
}

func echo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, httpserver.PathParam(r, "message"))
}
