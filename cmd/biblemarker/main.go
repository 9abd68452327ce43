// Command biblemarker manages BibleMarker studies and verse contrasts.
package main

import (
	"context"
	"os"

	"github.com/biblemarker/biblemarker/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
