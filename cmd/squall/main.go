package main

import (
	"fmt"
	"os"

	"github.com/eleven-am/squall/internal/cli"
	"github.com/eleven-am/squall/internal/logger"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func Execute() error {
	defer logger.Sync()
	return cli.NewRootCommand().Execute()
}
