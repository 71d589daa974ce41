// Command agent is a minimal monitored-host stub: it serves a synthetic
// ServerMetrics snapshot from GET /metrics so a collector has a real HTTP
// agent to poll in integration tests, rather than only a mock. Live OS
// sampling (gopsutil or similar) is out of scope; the snapshot is generated
// in-process and jittered on every request.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/fleetwatch/hub/pkg/types"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	addr := getEnv("AGENT_ADDR", "0.0.0.0")
	port := getEnv("AGENT_PORT", "51243")
	secret := os.Getenv("AGENT_SECRET")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", handleMetrics(secret))

	listenAddr := fmt.Sprintf("%s:%s", addr, port)
	fmt.Printf("agent stub listening on %s\n", listenAddr)
	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		fmt.Fprintln(os.Stderr, "agent: "+err.Error())
		os.Exit(1)
	}
}

func handleMetrics(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.Header.Get("X-MONITORING-SECRET") != secret {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		snapshot := synthesize()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
	}
}

// synthesize builds a plausible but fake ServerMetrics reading. Usage and
// temperature wander within realistic bounds rather than being held at a
// fixed value, so a collector polling repeatedly observes real variation.
func synthesize() types.ServerMetrics {
	hostname := "agent-stub"
	kernel := "6.1.0-stub"
	osVersion := "linux"
	name := "Linux"

	cpuCount := 4
	cpus := make([]types.CpuInformation, cpuCount)
	for i := range cpus {
		cpus[i] = types.CpuInformation{
			Name:      fmt.Sprintf("cpu%d", i),
			Frequency: 2800,
			Usage:     float32(20 + rand.Intn(60)),
		}
	}

	temp := float32(40 + rand.Intn(30))

	snapshot := types.ServerMetrics{
		System: types.SystemInformation{
			Name:          &name,
			KernelVersion: &kernel,
			OSVersion:     &osVersion,
			HostName:      &hostname,
		},
		Memory: types.MemoryInformation{
			Total:     16 * 1024 * 1024 * 1024,
			Used:      uint64(rand.Int63n(12 * 1024 * 1024 * 1024)),
			TotalSwap: 4 * 1024 * 1024 * 1024,
			UsedSwap:  uint64(rand.Int63n(1 * 1024 * 1024 * 1024)),
		},
		Cpus: types.CpuOverview{
			Total: cpuCount,
			Arch:  "x86_64",
			Cpus:  cpus,
		},
		Components: types.ComponentOverview{
			Components: []types.ComponentInformation{
				{Name: "package", Temperature: &temp},
			},
		},
	}
	snapshot.ComputeAverages()
	return snapshot
}
