// Package main is the entrypoint for the CLI.
package main

import (
	"github.com/alecthomas/kong"
	"github.com/greenlightci/greenlight/cmd"
)

const greenlightVersion = "0.1.0"

func main() {
	ctx := kong.Parse(
		&cmd.CLI,
		cmd.FlagsVars,
		kong.DefaultEnvars("GREENLIGHT"),
		kong.Bind(cmd.Context{
			Version: greenlightVersion,
		}),
	)
	err := ctx.Run(&cmd.Context{
		Version: greenlightVersion,
	})
	ctx.FatalIfErrorf(err)
}
