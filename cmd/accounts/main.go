package main

import (
	"context"
	"os"

	"github.com/aussiebroadwan/accounts/internal/accounts/app"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = app.BuildVersion

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
