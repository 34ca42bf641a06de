package main

import (
	"fmt"
	"os"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "caelium:", err)
		os.Exit(1)
	}
}
