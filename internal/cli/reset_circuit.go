package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/resilience/breaker"
)

var resetCircuitCmd = &cobra.Command{
	Use:   "reset-circuit <dependency>",
	Short: "Force a dependency's circuit breaker closed on a running gateway",
	Args:  cobra.ExactArgs(1),
	Run:   runResetCircuit,
}

func init() {
	resetCircuitCmd.Flags().StringVar(&adminAddr, "addr", "", "gateway base url (default http://localhost:<server.port>)")
	rootCmd.AddCommand(resetCircuitCmd)
}

func runResetCircuit(cmd *cobra.Command, args []string) {
	dep := domain.Dependency(args[0])
	if !dep.IsKnown() {
		slog.Error("Unknown dependency", "dependency", dep)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var snap breaker.Snapshot
	path := fmt.Sprintf("/circuits/%s/reset", dep)
	if err := newAdminClient(gatewayURL()).do(ctx, "POST", path, &snap); err != nil {
		slog.Error("Failed to reset circuit", "dependency", dep, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Circuit for %s is now %s\n", snap.Dependency, snap.State)
}
