package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/basket/pocketclaw/bridge"
)

// runStatus prints the health snapshot. A daemon running in another
// process leaves <data>/daemon_state.json behind; when that exists it is
// authoritative. Otherwise fall back to the in-process bridge view,
// which reports a stopped daemon.
func runStatus(dataDir string) int {
	stateFile := filepath.Join(dataDir, "daemon_state.json")
	if data, err := os.ReadFile(stateFile); err == nil {
		_, _ = os.Stdout.Write(data)
		if len(data) == 0 || data[len(data)-1] != '\n' {
			fmt.Println()
		}
		return 0
	}

	out, err := bridge.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	fmt.Println(out)
	return 0
}
