package main

import (
	"github.com/nimburion/querykit/pkg/cli"
)

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "querykit",
		Description: "Translate HTTP query strings into MongoDB list queries",
		ConfigPath:  "",
	}))
}
