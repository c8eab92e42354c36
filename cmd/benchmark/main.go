// Benchmark drives a running Casewatch server through complete case lifecycles.
//
// Usage:
//
//	go run ./cmd/benchmark -url http://localhost:8080 -user admin -password secret
//
// This tool:
//  1. Files complaints, synthetic or read from a CSV file
//  2. Walks every complaint through a realistic status path as an officer
//  3. Tracks each complaint as the victim and checks the final status and progress
//  4. Reports throughput, latency percentiles and errors per operation
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// paths are the status sequences applied after filing.
var paths = [][]domain.Status{
	{domain.StatusInProgress, domain.StatusUnderInvestigation, domain.StatusBankFreezeRequested,
		domain.StatusFundsFrozen, domain.StatusRefundProcessing, domain.StatusRefunded},
	{domain.StatusInProgress, domain.StatusUnderInvestigation, domain.StatusClosed},
	{domain.StatusInProgress, domain.StatusRejected},
	{domain.StatusUnderInvestigation, domain.StatusBankFreezeRequested, domain.StatusFundsFrozen},
}

type client struct {
	http    *http.Client
	baseURL string
	token   string
}

// recorder collects latencies and errors per operation.
type recorder struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration
	errors    map[string]map[string]int
}

func newRecorder() *recorder {
	return &recorder{
		latencies: make(map[string][]time.Duration),
		errors:    make(map[string]map[string]int),
	}
}

func (r *recorder) record(op string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies[op] = append(r.latencies[op], d)
	if err != nil {
		if r.errors[op] == nil {
			r.errors[op] = make(map[string]int)
		}
		r.errors[op][err.Error()]++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Casewatch base URL")
	username := flag.String("user", "admin", "Officer username")
	password := flag.String("password", os.Getenv("CASEWATCH_AUTH_ADMIN_PASSWORD"), "Officer password")
	csvPath := flag.String("csv", "", "Optional CSV of complaints (name,phone,email,fraud_type,amount,description)")
	count := flag.Int("n", 200, "Complaints to file when no CSV is given")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each complaint result")
	flag.Parse()

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|            CASEWATCH BENCHMARK - case lifecycles              |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nCasewatch URL: %s\n", *baseURL)
	fmt.Printf("Workers:       %d\n", *workers)

	c := &client{http: &http.Client{Timeout: 10 * time.Second}, baseURL: strings.TrimRight(*baseURL, "/")}
	if err := c.checkHealth(); err != nil {
		fmt.Printf("ERROR: Casewatch not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("Casewatch is healthy")

	if err := c.login(*username, *password); err != nil {
		fmt.Printf("ERROR: login as %s failed: %v\n", *username, err)
		os.Exit(1)
	}

	var requests []domain.ComplaintRequest
	var err error
	if *csvPath != "" {
		requests, err = readComplaintsCSV(*csvPath)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		requests = synthesize(*count)
	}
	fmt.Printf("Loaded %d complaints\n", len(requests))

	rec := newRecorder()
	start := time.Now()
	mismatches := run(c, requests, *workers, rec, *verbose)
	printResults(rec, len(requests), mismatches, time.Since(start))
}

func run(c *client, requests []domain.ComplaintRequest, numWorkers int, rec *recorder, verbose bool) int {
	work := make(chan int, 100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	mismatches := 0

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				ok := c.lifecycle(requests[idx], paths[idx%len(paths)], rec, verbose)
				if !ok {
					mu.Lock()
					mismatches++
					mu.Unlock()
				}
			}
		}()
	}

	for i := range requests {
		work <- i
	}
	close(work)
	wg.Wait()
	return mismatches
}

// lifecycle files one complaint, applies path and verifies the victim view.
func (c *client) lifecycle(req domain.ComplaintRequest, path []domain.Status, rec *recorder, verbose bool) bool {
	var created struct {
		Complaint domain.Complaint `json:"complaint"`
	}
	t := time.Now()
	err := c.do(http.MethodPost, "/complaints", req, http.StatusCreated, &created)
	rec.record("submit", time.Since(t), err)
	if err != nil {
		return false
	}
	id := created.Complaint.ID

	for _, status := range path {
		t = time.Now()
		err := c.do(http.MethodPost, "/complaints/"+id+"/transitions", map[string]string{
			"status":      string(status),
			"title":       status.Label(),
			"description": "Benchmark transition to " + status.Label(),
		}, http.StatusOK, nil)
		rec.record("transition", time.Since(t), err)
		if err != nil {
			return false
		}
	}

	var tracking struct {
		Complaint domain.Complaint  `json:"complaint"`
		Progress  int               `json:"progress"`
		Updates   []json.RawMessage `json:"updates"`
	}
	t = time.Now()
	err = c.do(http.MethodPost, "/complaints/track", map[string]string{
		"complaintId": id,
		"phone":       req.Victim.Phone,
	}, http.StatusOK, &tracking)
	rec.record("track", time.Since(t), err)
	if err != nil {
		return false
	}

	final := path[len(path)-1]
	ok := tracking.Complaint.Status == final &&
		tracking.Progress == final.ProgressPercent() &&
		len(tracking.Updates) == len(path)+1
	if verbose {
		mark := "ok "
		if !ok {
			mark = "BAD"
		}
		fmt.Printf("%s %s | %-22s | progress %3d%% | updates %d\n", mark, id, final, tracking.Progress, len(tracking.Updates))
	}
	return ok
}

func (c *client) checkHealth() error {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *client) login(username, password string) error {
	var tok struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.do(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, http.StatusOK, &tok); err != nil {
		return err
	}
	c.token = tok.AccessToken
	return nil
}

func (c *client) do(method, path string, body any, want int, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.New("transport error")
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func synthesize(n int) []domain.ComplaintRequest {
	types := domain.AllFraudTypes()
	out := make([]domain.ComplaintRequest, n)
	for i := range out {
		out[i] = domain.ComplaintRequest{
			Victim: domain.Victim{
				Name:  fmt.Sprintf("Benchmark Victim %d", i+1),
				Phone: fmt.Sprintf("+9170%08d", i+1),
				Email: fmt.Sprintf("victim%d@example.com", i+1),
			},
			FraudType:   string(types[i%len(types)]),
			Amount:      float64(500 + rand.IntN(2_000_000)),
			FraudDate:   time.Now().Add(-time.Duration(1+rand.IntN(240)) * time.Hour),
			Description: "Synthetic complaint filed by the benchmark tool",
		}
	}
	return out
}

func readComplaintsCSV(path string) ([]domain.ComplaintRequest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int)
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"name", "phone", "fraud_type", "amount", "description"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var out []domain.ComplaintRequest
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		amount, _ := strconv.ParseFloat(record[col["amount"]], 64)
		req := domain.ComplaintRequest{
			Victim: domain.Victim{
				Name:  record[col["name"]],
				Phone: record[col["phone"]],
			},
			FraudType:   record[col["fraud_type"]],
			Amount:      amount,
			FraudDate:   time.Now().Add(-24 * time.Hour),
			Description: record[col["description"]],
		}
		if i, ok := col["email"]; ok {
			req.Victim.Email = record[i]
		}
		out = append(out, req)
	}
	return out, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(rec *recorder, complaints, mismatches int, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BENCHMARK RESULTS                        |")
	fmt.Println("+---------------------------------------------------------------+")

	fmt.Printf("\nComplaints:        %d\n", complaints)
	fmt.Printf("Final state wrong: %d\n", mismatches)
	fmt.Printf("Duration:          %s\n", duration.Round(time.Millisecond))

	ops := make([]string, 0, len(rec.latencies))
	for op := range rec.latencies {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	fmt.Printf("\n%-12s %8s %10s %10s %10s %10s\n", "operation", "count", "p50", "p95", "p99", "req/s")
	for _, op := range ops {
		lat := rec.latencies[op]
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		fmt.Printf("%-12s %8d %10s %10s %10s %10.1f\n",
			op,
			len(lat),
			percentile(lat, 0.50).Round(time.Microsecond),
			percentile(lat, 0.95).Round(time.Microsecond),
			percentile(lat, 0.99).Round(time.Microsecond),
			float64(len(lat))/duration.Seconds(),
		)
	}

	if len(rec.errors) > 0 {
		fmt.Println("\nErrors:")
		for _, op := range ops {
			for msg, n := range rec.errors[op] {
				fmt.Printf("  %-12s %-20s %d\n", op, msg, n)
			}
		}
	}
	fmt.Println()
}
