package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/medlingo/internal/core/config"
	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/resilience/breaker"
	"github.com/vietddude/medlingo/internal/server"
)

var adminAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of every dependency on a running gateway",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&adminAddr, "addr", "", "gateway base url (default http://localhost:<server.port>)")
	rootCmd.AddCommand(statusCmd)
}

// gatewayURL returns --addr, or the local address derived from the config.
func gatewayURL() string {
	if adminAddr != "" {
		return adminAddr
	}
	port := 8080
	if cfg, err := config.Load(cfgPath); err == nil {
		port = cfg.Server.Port
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var report server.DetailedResponse
	if err := newAdminClient(gatewayURL()).do(ctx, "GET", "/health/detailed", &report); err != nil {
		slog.Error("Failed to fetch status", "error", err)
		os.Exit(1)
	}

	writeStatus(os.Stdout, report)
}

func writeStatus(out io.Writer, report server.DetailedResponse) {
	circuits := make(map[domain.Dependency]breaker.Snapshot, len(report.Circuits))
	for _, c := range report.Circuits {
		circuits[c.Dependency] = c
	}

	_, _ = fmt.Fprintf(out, "Overall: %s (score %.0f)\n", report.OverallStatus, report.HealthScore)
	if ch := report.Channel; ch != nil {
		_, _ = fmt.Fprintf(out, "Channel: %s (reconnects %d, pending %d, queued %d)\n",
			ch.Status, ch.ReconnectAttempts, ch.PendingRequests, ch.QueuedMessages)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "DEPENDENCY\tSTATUS\tCRITICAL\tCIRCUIT\tFAILURES\tLAST CHECK")

	for _, dep := range domain.KnownDependencies {
		rec, ok := report.Services[dep]
		if !ok {
			continue
		}
		circuit := "-"
		failures := 0
		if c, ok := circuits[dep]; ok {
			circuit = c.State.String()
			failures = c.FailureCount
		}
		lastCheck := "never"
		if !rec.LastCheck.IsZero() {
			lastCheck = rec.LastCheck.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%d\t%s\n",
			dep, rec.Status, rec.Critical, circuit, failures, lastCheck)
	}
	_ = w.Flush()
}
