package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/projectbuilder/cmd/projectbuilder/commands"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/version"
)

func main() {
	var cli commands.CLI
	global := &commands.Global{Out: os.Stdout}
	ctx := kong.Parse(&cli,
		kong.Name("projectbuilder"),
		kong.Description("Fetch, build and inspect git-backed projects."),
		kong.UsageOnError(),
		kong.Bind(global),
		kong.Vars{"version": version.String()},
	)
	if err := ctx.Run(global, &cli); err != nil {
		os.Exit(ferrors.NewCLIErrorAdapter(cli.Verbose, nil).Report(err))
	}
}
