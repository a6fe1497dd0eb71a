// Package main is the entry point for gagyebu-admin.
package main

import (
	"os"

	"gagyebu/cmd/gagyebu-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
