// Command client is a small polling client for the summarization API,
// mirroring the HTTP contract of the server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	requestTimeout = 30 * time.Second
	pollInterval   = 5 * time.Second
)

type apiResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Summary    string `json:"summary"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

func main() {
	apiURL := flag.String("api-url", "http://localhost:8080", "base URL of the summarization API")
	action := flag.String("action", "", "action to perform: summarize, status, result, health")
	documentID := flag.String("document-id", "", "document ID for status or result lookups")
	textFile := flag.String("text-file", "", "path of a text file to summarize (stdin when empty)")
	poll := flag.Bool("poll", false, "poll until the job reaches a terminal state (summarize only)")
	flag.Parse()

	client := &http.Client{Timeout: requestTimeout}
	base := strings.TrimRight(*apiURL, "/")

	var err error
	switch *action {
	case "summarize":
		err = runSummarize(client, base, *documentID, *textFile, *poll)
	case "status":
		err = runStatus(client, base, *documentID)
	case "result":
		err = runResult(client, base, *documentID)
	case "health":
		err = runHealth(client, base)
	default:
		fmt.Fprintln(os.Stderr, "action must be one of: summarize, status, result, health")
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runSummarize(client *http.Client, base, documentID, textFile string, poll bool) error {
	var text []byte
	var err error

	if textFile != "" {
		if text, err = os.ReadFile(textFile); err != nil {
			return fmt.Errorf("read text file: %w", err)
		}
	} else {
		fmt.Println("Enter or paste the text to summarize (press Ctrl+D when finished):")
		if text, err = io.ReadAll(os.Stdin); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	if documentID == "" {
		documentID = uuid.NewString()
	}
	fmt.Println("Using document ID:", documentID)

	body, err := json.Marshal(map[string]string{
		"document_id": documentID,
		"text":        string(text),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := postJSON(client, base+"/summarize", body)
	if err != nil {
		return err
	}
	fmt.Printf("Summarization started: status=%s\n", resp.Status)

	if !poll {
		fmt.Printf("Check progress with: client -action status -document-id %s\n", documentID)
		return nil
	}

	for {
		status, err := getJSON(client, base+"/check-status/"+documentID)
		if err != nil {
			return err
		}
		fmt.Println("Current status:", status.Status)

		switch status.Status {
		case "completed":
			result, err := getJSON(client, base+"/result/"+documentID)
			if err != nil {
				return err
			}
			fmt.Println("\nSummary:")
			fmt.Println(strings.Repeat("=", 80))
			fmt.Println(result.Summary)
			fmt.Println(strings.Repeat("=", 80))
			return nil
		case "failed":
			return fmt.Errorf("job failed: %s", status.Error)
		}

		time.Sleep(pollInterval)
	}
}

func runStatus(client *http.Client, base, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("document-id is required for the status action")
	}

	resp, err := getJSON(client, base+"/check-status/"+documentID)
	if err != nil {
		return err
	}

	fmt.Println("Status:", resp.Status)
	if resp.Error != "" {
		fmt.Println("Error:", resp.Error)
	}

	return nil
}

func runResult(client *http.Client, base, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("document-id is required for the result action")
	}

	resp, err := getJSON(client, base+"/result/"+documentID)
	if err != nil {
		return err
	}

	fmt.Println("Status:", resp.Status)
	switch resp.Status {
	case "completed":
		fmt.Println("\nSummary:")
		fmt.Println(strings.Repeat("=", 80))
		fmt.Println(resp.Summary)
		fmt.Println(strings.Repeat("=", 80))
	case "failed":
		fmt.Println("Error:", resp.Error)
	}

	return nil
}

func runHealth(client *http.Client, base string) error {
	resp, err := client.Get(base + "/health")
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Println("Service is unhealthy")
		return nil
	}

	fmt.Println("Service is healthy")
	return nil
}

func postJSON(client *http.Client, url string, body []byte) (*apiResponse, error) {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp)
}

func getJSON(client *http.Client, url string) (*apiResponse, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (*apiResponse, error) {
	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, msg)
	}

	return &parsed, nil
}
