package main

import (
	"fmt"
	"os"

	cliruntime "github.com/tomasbasham/cli-runtime"

	"github.com/bucketgate/service/internal/cmd"
	"github.com/bucketgate/service/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	command := cmd.NewRootCommand(cfg)
	if code := cliruntime.Run(command); code != 0 {
		os.Exit(code)
	}
}
