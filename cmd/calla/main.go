package main

import (
	"os"

	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"

	"github.com/dkeye/calla/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
