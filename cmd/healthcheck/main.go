// Command healthcheck probes the scribe ops server for container HEALTHCHECK use. It exits 0
// when the probe answers 200. HEALTHCHECK_URL overrides the default liveness URL; point it at
// /readyz to also require the platform connection.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"
)

const defaultURL = "http://localhost:8080/healthz"

func main() {
	os.Exit(probe(os.Getenv("HEALTHCHECK_URL")))
}

func probe(url string) int {
	if url == "" {
		url = defaultURL
	}
	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
