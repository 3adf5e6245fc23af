package main

import (
	"os"

	"github.com/oremus-labs/genui-bridge/internal/genuicli"
)

func main() {
	if err := genuicli.Execute(); err != nil {
		os.Exit(1)
	}
}
