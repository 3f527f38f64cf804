package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/servus-go/internal/infra/buildinfo"
)

// Action runs a binary once its runtime is set up.
type Action func(c *cli.Context, rt *Runtime) error

// NewApp creates a servus binary. flags are added after the shared ones.
func NewApp(name, usage string, action Action, flags ...cli.Flag) *cli.App {
	return &cli.App{
		Name:    name,
		Usage:   usage,
		Version: buildinfo.String(),
		Flags:   append(Flags(), flags...),
		Action: func(c *cli.Context) error {
			rt, err := Setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			return action(c, rt)
		},
	}
}
