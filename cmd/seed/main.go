package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
)

// seed loads a small demo trial dataset into a running server and submits a
// group-means analysis against it.
func main() {
	// 1. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = os.Args[1]
	}

	// 2. Upload the demo dataset (upload auto-activates it)
	rows := make([]map[string]any, 0, 40)
	for i := 0; i < 20; i++ {
		rows = append(rows, map[string]any{
			"patient_id": fmt.Sprintf("P%03d", i+1),
			"arm":        "treatment",
			"systolic":   118.0 + float64(i%7),
			"age":        40 + i,
		})
		rows = append(rows, map[string]any{
			"patient_id": fmt.Sprintf("P%03d", i+21),
			"arm":        "control",
			"systolic":   131.0 + float64(i%5),
			"age":        42 + i,
		})
	}

	slog.Info("Uploading demo dataset", "rows", len(rows))
	uploaded := post(base+"/api/datasets", map[string]any{
		"name": "demo_trial.csv",
		"rows": rows,
	})
	slog.Info("Dataset registered", "response", uploaded)

	// 3. Submit a group-means analysis
	code := `
for _, arm := range df.Levels("arm") {
	sub := df.Filter("arm", arm)
	fmt.Printf("%s: n=%d mean systolic=%.1f\n", arm, sub.NumRows(), sub.Col("systolic").Mean())
}
`
	slog.Info("Submitting analysis")
	result := post(base+"/api/execute", map[string]any{"code": code})
	slog.Info("Analysis finished", "response", result)
}

func post(url string, body any) string {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("Failed to encode request", "error", err)
		os.Exit(1)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		slog.Error("Request failed", "url", url, "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		slog.Error("Server rejected request", "url", url, "status", resp.StatusCode, "body", string(data))
		os.Exit(1)
	}
	return string(data)
}
