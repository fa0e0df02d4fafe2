// Package main is a minimal HTTP health probe for use in distroless
// containers. It targets the gateway's health endpoint, honoring the same
// ADGATE_PORT override the server reads, and exits 0 only on HTTP 200.
// Compile with CGO_ENABLED=0 for a fully static binary.
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"
)

func main() {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + gatewayPort() + "/health")
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// gatewayPort mirrors the server's ADGATE_PORT override so the probe and the
// gateway never disagree about the listen port inside one container.
func gatewayPort() string {
	if port := os.Getenv("ADGATE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 && p <= 65535 {
			return port
		}
	}
	return "8080"
}
