// automation-cli is the operator entrypoint for the Automation Engine: it
// wires the tracker client, the Field Schema Cache, the Permission Gate,
// the Audit Sink, the Condition Evaluator, the Action Executor, the
// Webhook Registry/Dispatcher, the Prometheus Collector, and the Health
// Monitor into one Engine, then exposes rule and integration management as
// cobra subcommands.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	svcerrors "github.com/trackerflow/automation-engine/infrastructure/errors"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "automation-cli",
		Short:         "Manage automation rules and webhook integrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRuleCmd())
	root.AddCommand(newIntegrationCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newServeCmd())
	return root
}

// exitCodeFor maps a ServiceError's category onto the documented
// exit codes; any other error (including a plain error from cobra's own
// flag parsing) falls through to 1.
func exitCodeFor(err error) int {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		return 1
	}
	switch se.Category {
	case svcerrors.CategoryValidation:
		return 2
	case svcerrors.CategoryNotFound:
		return 3
	case svcerrors.CategoryPermission, svcerrors.CategoryAuth:
		return 4
	default:
		return 1
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// httpClientTimeout is the default client handed to the Webhook
// Dispatcher and to the executor's ad-hoc webhook-call adapter when no
// tighter timeout is configured.
const httpClientTimeout = 15 * time.Second

func newDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}
