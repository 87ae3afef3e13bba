package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
