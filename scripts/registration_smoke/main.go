package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// step is one request of the scripted wizard run. "{id}" in Path and "{run}"
// anywhere in Body are replaced before the request is sent.
type step struct {
	Name         string          `json:"name"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Body         json.RawMessage `json:"body,omitempty"`
	ExpectStatus int             `json:"expect_status"`
	ExpectStep   string          `json:"expect_step,omitempty"`
	Critical     bool            `json:"critical"`
}

type scenario struct {
	Steps []step `json:"steps"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type outcome struct {
	Step     step
	Status   int
	GotStep  string
	Passed   bool
	Error    error
	Duration time.Duration
	Detail   string
}

func main() {
	var (
		baseURL      string
		prefix       string
		scenarioPath string
		runID        string
		timeout      time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API route prefix")
	flag.StringVar(&scenarioPath, "scenario", filepath.Join("scripts", "registration_smoke", "scenario.json"), "Path to JSON scenario file")
	flag.StringVar(&runID, "run", strconv.FormatInt(time.Now().Unix(), 10), "Value substituted for {run} in request bodies")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	steps, err := loadScenario(scenarioPath)
	if err != nil {
		log.Fatalf("failed to load scenario: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	base := strings.TrimRight(baseURL, "/") + "/" + strings.Trim(prefix, "/")

	var (
		results   []outcome
		sessionID string
		breaking  int
		optional  int
	)
	for _, s := range steps {
		res := runStep(client, base, sessionID, runID, s)
		if sessionID == "" && res.Passed && res.Status == http.StatusCreated {
			sessionID = res.Detail
		}
		if !res.Passed {
			if s.Critical {
				breaking++
			} else {
				optional++
			}
		}
		results = append(results, res)
		if !res.Passed && s.Critical {
			break
		}
	}

	printReport(results)

	fmt.Printf("Breaking failures: %d, Optional failures: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadScenario(path string) ([]step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("no steps defined in %s", path)
	}
	return sc.Steps, nil
}

func runStep(client *http.Client, base, sessionID, runID string, s step) outcome {
	res := outcome{Step: s}
	if strings.Contains(s.Path, "{id}") && sessionID == "" {
		res.Error = errors.New("no session id, the start step did not succeed")
		return res
	}

	method := strings.ToUpper(strings.TrimSpace(s.Method))
	if method == "" {
		method = http.MethodPost
	}
	path := strings.ReplaceAll(s.Path, "{id}", sessionID)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if len(s.Body) > 0 {
		body = strings.NewReader(strings.ReplaceAll(string(s.Body), "{run}", runID))
	}
	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		res.Error = err
		return res
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()
	res.Duration = time.Since(start)
	res.Status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}

	res.GotStep, res.Detail = inspect(raw)
	res.Passed = res.Status == s.ExpectStatus && (s.ExpectStep == "" || s.ExpectStep == res.GotStep)
	return res
}

// inspect returns the wizard step found in the envelope and a detail string:
// the session id for a successful start, or the error message otherwise.
func inspect(raw []byte) (string, string) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return "", ""
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", ""
	}
	if env.Error != nil {
		return "", fmt.Sprintf("%s: %s %v", env.Error.Code, env.Error.Message, env.Error.Details)
	}
	var view struct {
		ID           string `json:"id"`
		Step         string `json:"step"`
		Registration *struct {
			Step string `json:"step"`
		} `json:"registration"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		return "", ""
	}
	if view.Registration != nil {
		return view.Registration.Step, ""
	}
	return view.Step, view.ID
}

func printReport(results []outcome) {
	fmt.Println("Registration Smoke Report")
	fmt.Println("=========================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s %s %s\n", status, res.Step.Method, res.Step.Path, res.Step.Name)
		fmt.Printf("  Status: %d, expected %d (%s)\n", res.Status, res.Step.ExpectStatus, res.Duration)
		if res.Step.ExpectStep != "" {
			fmt.Printf("  Step: %q, expected %q\n", res.GotStep, res.Step.ExpectStep)
		}
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else if !res.Passed && res.Detail != "" {
			fmt.Printf("  Detail: %s\n", res.Detail)
		}
	}
}
