package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/dukerupert/notifly/internal/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "notiflyctl:", err)
		os.Exit(1)
	}
}
