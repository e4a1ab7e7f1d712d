package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harborcare/careexport/internal/config"
	"github.com/harborcare/careexport/internal/exportapi"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The CLI prints its own results; keep logrus output to warnings so the
	// client core's progress logs do not interleave with command output.
	logrus.SetLevel(logrus.WarnLevel)

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "careexport: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "careexport",
		Short: "Operator console for the careexport platform",
		Long: `careexport submits bulk data exports, follows them to completion, downloads
finished artifacts, uploads paper-form scans, and manages module entitlements.
The API endpoint and actor identity come from CAREEXPORT_* environment variables.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newExportCmd(),
		newTypesCmd(),
		newEntitlementsCmd(),
		newAuditCmd(),
		newFormsCmd(),
	)
	return cmd
}

// loadAPI builds the HTTP client from the environment.
func loadAPI() (*config.Config, *exportapi.HTTPClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, exportapi.NewHTTPClient(cfg.APIBaseURL, cfg.ActorID, cfg.ActorTier), nil
}
