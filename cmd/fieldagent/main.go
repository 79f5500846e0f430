package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"fieldforce_backend/internals/configs"
	"fieldforce_backend/internals/features/attendance/agentcli"
)

func main() {
	configs.LoadAgentEnv()
	if err := agentcli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, agentcli.ErrUsage) {
			fmt.Fprintln(os.Stderr, agentcli.Usage())
			os.Exit(2)
		}
		log.Fatalf("❌ %v", err)
	}
}
