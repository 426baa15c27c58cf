package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	apiKey     string
	projectID  string
	userID     string
	plan       string
	confidence float64
	credential string
)

func main() {
	root := &cobra.Command{
		Use:   "recon-cli",
		Short: "CLI client for recon-orchestrator",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("RECON_API_KEY"), "API key")
	root.PersistentFlags().StringVar(&projectID, "project", "", "Project ID")

	// Enqueue an execution
	enqueueCmd := &cobra.Command{
		Use:   "enqueue [tool] [target]",
		Short: "Schedule a tool execution",
		Args:  cobra.ExactArgs(2),
		RunE:  runEnqueue,
	}
	enqueueCmd.Flags().StringVar(&plan, "plan", "free", "Plan tier (free, paid)")
	enqueueCmd.Flags().Float64Var(&confidence, "confidence", 0, "Caller confidence in [0,1]")
	enqueueCmd.Flags().StringVar(&credential, "credential", "", "Bring-your-own credential for the tool's service")
	enqueueCmd.Flags().StringVar(&userID, "user", "", "User ID for stored credentials")
	root.AddCommand(enqueueCmd)

	// Execution status
	root.AddCommand(&cobra.Command{
		Use:   "status [id]",
		Short: "Show an execution's state and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return getJSON("/executions/" + args[0])
		},
	})

	// Cancel a queued execution
	root.AddCommand(&cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel a queued execution",
		Args:  cobra.ExactArgs(1),
		RunE:  runCancel,
	})

	// Queue stats
	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue depth, running count, and ceiling",
		RunE: func(_ *cobra.Command, _ []string) error {
			return getJSON("/queue/stats")
		},
	})

	// Decision gate
	decideCmd := &cobra.Command{
		Use:   "decide [text]",
		Short: "Turn free text into proposed executions",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecide,
	}
	decideCmd.Flags().StringVar(&plan, "plan", "free", "Plan tier (free, paid)")
	root.AddCommand(decideCmd)

	// Project risk
	root.AddCommand(&cobra.Command{
		Use:   "risk [project-id]",
		Short: "Recompute a project's risk assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return getJSON("/projects/" + args[0] + "/risk")
		},
	})

	// List executions
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := "/executions"
			if projectID != "" {
				path += "?project_id=" + projectID
			}
			return getJSON(path)
		},
	})

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(_ *cobra.Command, _ []string) error {
			return getJSON("/health")
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runEnqueue(_ *cobra.Command, args []string) error {
	payload := map[string]any{
		"project_id": projectID,
		"user_id":    userID,
		"tool":       args[0],
		"target":     args[1],
		"plan":       plan,
		"confidence": confidence,
		"credential": credential,
	}
	return postJSON("/executions", payload)
}

func runCancel(_ *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/executions/"+args[0], nil)
	if err != nil {
		return err
	}
	return doRequest(req)
}

func runDecide(_ *cobra.Command, args []string) error {
	payload := map[string]any{
		"text":       args[0],
		"project_id": projectID,
		"plan":       plan,
	}
	return postJSON("/decide", payload)
}

func postJSON(path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func getJSON(path string) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return err
	}
	return doRequest(req)
}

func doRequest(req *http.Request) error {
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
	return nil
}
