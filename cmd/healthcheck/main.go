// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the eventhub /health endpoint returns HTTP 200,
// and 1 otherwise. The port follows EVENTHUB_PORT. Compile with CGO_ENABLED=0
// for a fully static binary.
package main

import (
	"net/http"
	"os"
	"time"
)

func healthURL() string {
	port := os.Getenv("EVENTHUB_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://127.0.0.1:" + port + "/health"
}

func check(url string) bool {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func main() {
	if !check(healthURL()) {
		os.Exit(1)
	}
}
