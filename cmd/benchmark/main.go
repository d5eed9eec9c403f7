package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	username    string
	password    string
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Applied mutations
	fail409       uint64 // Duplicate idempotency keys
	fail400       uint64 // Validation / insufficient credits
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot | replay")
	flag.StringVar(&username, "user", "kiosk-1", "Issuer account username")
	flag.StringVar(&password, "pass", "changeme123", "Issuer account password")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	sessionToken, err := login()
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, sessionToken)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func login() (string, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(targetURL+"/api/v1/auth/login", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func worker(wg *sync.WaitGroup, start time.Time, sessionToken string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	// The replay workload reuses one key per worker to measure the
	// duplicate-rejection path; the others generate unique requests.
	replayKey := uuid.New().String()

	for time.Since(start) < duration {
		key := uuid.New().String()
		if workload == "replay" {
			key = replayKey
		}

		payload := map[string]interface{}{
			"amount":          int64(10),
			"target_username": pickTarget(),
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/credits/add", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+sessionToken)
		req.Header.Set("Idempotency-Key", key)
		req.Header.Set("X-Request-Timestamp", time.Now().Format(time.RFC3339))

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&success200, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 400:
			atomic.AddUint64(&fail400, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickTarget() string {
	// Assumes holder-0001..holder-1000 seeded
	totalAccounts := 1000

	if workload == "hotspot" {
		// Hotspot: 90% of traffic hits the same two holders
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return "holder-0001"
			}
			return "holder-0002"
		}
	}

	return fmt.Sprintf("holder-%04d", rand.Intn(totalAccounts)+1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s200 := atomic.LoadUint64(&success200)
	f409 := atomic.LoadUint64(&fail409)
	f400 := atomic.LoadUint64(&fail400)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	dupRate := float64(f409) / float64(total) * 100

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"success_applied": s200,
		"duplicates":      f409,
		"duplicate_pct":   dupRate,
		"rejected_4xx":    f400,
		"errors":          fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
