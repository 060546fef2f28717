// Command healthcheck is a tiny HTTP probe against ioloopd's admin
// /healthz endpoint, meant for a container orchestrator's liveness
// check.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := "http://localhost:9090/healthz"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	client := http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	os.Exit(0)
}
