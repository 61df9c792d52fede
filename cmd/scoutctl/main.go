// Command scoutctl is the operator CLI for a running barcodescout
// server. It wraps the worker-control and queue endpoints so common
// operations do not need hand-written curl calls.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var serverAddr string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scoutctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scoutctl",
		Short:        "barcodescout operator CLI",
		Long:         `scoutctl talks to a running barcodescout server: inspect and control the background worker, and manage the unfound-barcode queue.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://localhost:8080", "Base URL of the barcodescout server")
	cmd.AddCommand(
		newStatusCmd(),
		newStartCmd(),
		newStopCmd(),
		newRunNowCmd(),
		newHistoryCmd(),
		newQueueCmd(),
		newEnqueueCmd(),
	)
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), http.MethodGet, "/api/worker/status", nil)
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the background worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), http.MethodPost, "/api/worker/start", nil)
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), http.MethodPost, "/api/worker/stop", nil)
		},
	}
}

func newRunNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-now",
		Short: "Wake the worker out of its poll sleep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), http.MethodPost, "/api/worker/run-now", nil)
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show processed-barcode history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				return call(cmd.Context(), http.MethodPost, "/api/worker/clear-history", nil)
			}
			return call(cmd.Context(), http.MethodGet, "/api/worker/history", nil)
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the history instead of showing it")
	return cmd
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List queued unfound barcodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), http.MethodGet, "/api/unfound-barcodes", nil)
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "enqueue <barcode> [barcode...]",
		Short: "Queue barcodes for the worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, barcode := range args {
				body := map[string]string{"barcode": barcode, "source": source}
				if err := call(cmd.Context(), http.MethodPost, "/api/unfound-barcodes", body); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "manual", "Source label recorded on the queue entry")
	return cmd
}

// call performs one API request and pretty-prints the JSON response.
func call(ctx context.Context, method, path string, body any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, serverAddr+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
	} else {
		fmt.Println(pretty.String())
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return nil
}
