package main

import (
	"os"

	"openbadges/cmd/badgectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
