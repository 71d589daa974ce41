// Command viewer is a one-shot client stub for the query API: it resolves
// a base URL and bearer token, fetches /api/v1/health and /api/v1/servers
// once, and prints the result. It exists so the API's contract has a real
// consumer to exercise in integration tests; it is not a TUI.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// viewerConfig is the optional JSON config file shape: {"api_url":"...","token":"..."}.
type viewerConfig struct {
	APIURL string `json:"api_url"`
	Token  string `json:"token"`
}

func main() {
	configPath := flag.String("c", "", "path to viewer config file")
	apiURL := flag.String("u", "", "API base URL")
	token := flag.String("t", "", "bearer token")
	flag.Parse()

	url, bearer := resolve(*configPath, *apiURL, *token)
	if url == "" {
		fmt.Fprintln(os.Stderr, "viewer: no API URL resolved from flags, config file or environment")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Printf("Connecting to %s\n", url)

	health, err := fetch(client, url+"/api/v1/health", bearer)
	if err != nil {
		fmt.Fprintln(os.Stderr, "viewer: health fetch failed: "+err.Error())
		os.Exit(1)
	}
	fmt.Println("Health:", health)

	servers, err := fetch(client, url+"/api/v1/servers", bearer)
	if err != nil {
		fmt.Fprintln(os.Stderr, "viewer: servers fetch failed: "+err.Error())
		os.Exit(1)
	}
	fmt.Println("Servers:", servers)
}

// resolve applies the precedence flags > viewer config file > environment
// for both the API URL and the bearer token, independently.
func resolve(configPath, flagURL, flagToken string) (string, string) {
	url := os.Getenv("VIEWER_API_URL")
	token := os.Getenv("VIEWER_TOKEN")

	if configPath != "" {
		if cfg, err := loadViewerConfig(configPath); err == nil {
			if cfg.APIURL != "" {
				url = cfg.APIURL
			}
			if cfg.Token != "" {
				token = cfg.Token
			}
		} else {
			fmt.Fprintln(os.Stderr, "viewer: ignoring unreadable config file: "+err.Error())
		}
	}

	if flagURL != "" {
		url = flagURL
	}
	if flagToken != "" {
		token = flagToken
	}

	return url, token
}

func loadViewerConfig(path string) (viewerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return viewerConfig{}, err
	}
	var cfg viewerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return viewerConfig{}, err
	}
	return cfg, nil
}

func fetch(client *http.Client, url, token string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}
