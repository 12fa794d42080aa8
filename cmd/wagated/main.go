package main

import (
	"go.uber.org/fx"

	"github.com/matheus3301/wagate/internal/daemon"
)

func main() {
	fx.New(daemon.Module()).Run()
}
