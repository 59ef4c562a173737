// Package main exports and restores labeler ledger snapshots.
package main

import (
	"context"
	"flag"
	"os"

	backupcmd "github.com/imigueldiaz/pride-labeler/internal/cmd/backup"
	"github.com/imigueldiaz/pride-labeler/internal/platform/config"
)

func main() {
	cfg, err := backupcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	if err := backupcmd.Run(context.Background(), cfg, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
