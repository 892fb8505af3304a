// Command ocrctl is a thin HTTP client for operating an ocr-job-service
// instance from the command line: submit files, poll status, fetch
// results, list jobs, and delete them.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL      string
	controlToken string
	httpClient   = &http.Client{Timeout: 60 * time.Second}
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ocrctl",
		Short: "ocrctl operates an ocr-job-service instance",
		Long:  "ocrctl submits files for OCR, polls job status, fetches results, and manages jobs against a running ocr-job-service.",
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "ocr-job-service base URL")
	rootCmd.PersistentFlags().StringVar(&controlToken, "token", "", "bearer token for control-surface endpoints")

	rootCmd.AddCommand(submitCommand())
	rootCmd.AddCommand(statusCommand())
	rootCmd.AddCommand(resultCommand())
	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(deleteCommand())
	rootCmd.AddCommand(healthCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func submitCommand() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "submit [file]",
		Short: "Submit a file for OCR processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			submitResp, err := submitFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job submitted: %s (%d pages)\n", submitResp.JobID, submitResp.TotalPages)

			if !wait {
				return nil
			}
			return pollUntilDone(submitResp.JobID)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll status until the job leaves the queued/processing state")
	return cmd
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Print a job's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var status jobStatus
			if err := getJSON(fmt.Sprintf("/ocr/status/%s", args[0]), &status); err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}

func resultCommand() *cobra.Command {
	var withSections bool
	cmd := &cobra.Command{
		Use:   "result [job-id]",
		Short: "Fetch a job's assembled result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/ocr/result/%s", args[0])
			if withSections {
				path += "?sections=true"
			}
			var result json.RawMessage
			if err := getJSON(path, &result); err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&withSections, "sections", false, "include heading-delimited sections in the result")
	return cmd
}

func listCommand() *cobra.Command {
	var status string
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/ocr/jobs?page=%d&page_size=%d", page, pageSize)
			if status != "" {
				path += "&status=" + status
			}
			var result json.RawMessage
			if err := getJSON(path, &result); err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (queued, processing, completed, failed)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "page size")
	return cmd
}

func deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [job-id]",
		Short: "Delete a job and its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, baseURL+"/ocr/jobs/"+args[0], nil)
			if err != nil {
				return err
			}
			applyAuth(req)

			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				return fmt.Errorf("delete failed: %s", resp.Status)
			}
			fmt.Println("deleted")
			return nil
		},
	}
}

func healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health json.RawMessage
			if err := getJSON("/health", &health); err != nil {
				return err
			}
			return printJSON(health)
		},
	}
}

type submitResponse struct {
	JobID      string `json:"job_id"`
	TotalPages int    `json:"total_pages"`
}

type jobStatus struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	TotalPages     int    `json:"total_pages"`
	CompletedPages int    `json:"completed_pages"`
	FailedPages    int    `json:"failed_pages"`
}

func submitFile(path string) (*submitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/ocr/submit", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	applyAuth(req)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("submit failed: %s: %s", resp.Status, string(body))
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func pollUntilDone(jobID string) error {
	for {
		var status jobStatus
		if err := getJSON(fmt.Sprintf("/ocr/status/%s", jobID), &status); err != nil {
			return err
		}

		fmt.Printf("status: %s (%d/%d completed, %d failed)\n", status.Status, status.CompletedPages, status.TotalPages, status.FailedPages)

		if status.Status == "completed" || status.Status == "failed" {
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

func getJSON(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	applyAuth(req)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed: %s: %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func applyAuth(req *http.Request) {
	if controlToken != "" {
		req.Header.Set("Authorization", "Bearer "+controlToken)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
