package main

import (
	"github.com/alecthomas/kong"

	"github.com/admitflow/admitflow/cmd/cli"
)

var root struct {
	Check cli.CheckCmd `cmd:"" help:"Log into a portal, check an application's status, and download the offer if one is available."`
	Lint  cli.LintCmd  `cmd:"" help:"Validate a site configuration file without touching a browser."`
}

func main() {
	ctx := kong.Parse(&root,
		kong.Name("admitflow"),
		kong.Description("Declarative admissions-portal automation."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
