package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/presto/cmd/presto/commands"
	perrors "git.home.luguber.info/inful/presto/internal/errors"
	"git.home.luguber.info/inful/presto/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("presto"),
		kong.Description("Incrementally publish a tree of Markdown documents as HTML pages."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := parser.Run(&commands.Global{Stdout: os.Stdout, Stderr: os.Stderr}, cli)
	perrors.NewCLIErrorAdapter(cli.Verbose, nil).HandleError(err)
}
