package main

import (
	"context"

	"skolarena/cmd/skolarena/commands"
	"skolarena/lib/telemetry"
)

func main() {
	telemetry.InitSlog(true)

	tel, err := telemetry.SetupFromEnv(context.Background(), "skolarena-cli")
	if err == nil {
		defer tel.Shutdown(context.Background())
	}

	commands.ExecuteContext(context.Background())
}
