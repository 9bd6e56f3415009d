// Command mock-upstreams serves canned responses for the engine's external
// services during local development: the log search API and the Weaviate
// document store.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type incident struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
}

type logRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Host      string    `json:"host"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/search/incidents", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"incidents": []incident{
				{ID: "INC-20260829-WEB", Service: "checkout", Severity: "P1", Timestamp: time.Now().Add(-10 * time.Minute), Message: "FATAL: payment processor unreachable", Count: 18},
				{ID: "INC-20260829-DB1", Service: "orders", Severity: "P2", Timestamp: time.Now().Add(-25 * time.Minute), Message: "ERROR: connection pool exhausted", Count: 42},
				{ID: "INC-20260829-LOG", Service: "ingest", Severity: "P3", Timestamp: time.Now().Add(-40 * time.Minute), Message: "WARN: retry backlog growing", Count: 7},
			},
		})
	})

	mux.HandleFunc("/api/v1/search/logs", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"records": []logRecord{
				{Timestamp: time.Now().Add(-3 * time.Minute), Message: "ERROR: db pool exhausted after 30s wait", Host: "web-1"},
				{Timestamp: time.Now().Add(-2 * time.Minute), Message: "WARN: retrying connection acquisition", Host: "web-1"},
				{Timestamp: time.Now().Add(-1 * time.Minute), Message: "INFO: pool size raised to 80", Host: "web-2"},
			},
		})
	})

	// Minimal Weaviate stand-in: one runbook for every query, accept all
	// object writes.
	mux.HandleFunc("/v1/graphql", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"data": map[string]any{
				"Get": map[string]any{
					"RunbookDocument": []map[string]any{
						{"docId": "runbook-db-pool", "body": "Raise the pool ceiling, then audit for leaked connections."},
					},
				},
			},
		})
	})
	mux.HandleFunc("/v1/objects", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{"status": "stored"})
	})

	addr := ":9201"
	log.Printf("mock upstreams listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
