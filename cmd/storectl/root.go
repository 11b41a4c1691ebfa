package main

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/SHESHU45/UrumiAssignment/pkg/client"
)

const (
	defaultServer = "http://localhost:3001"
	serverEnv     = "STORECTL_SERVER"
)

// ValidOutputs lists the accepted --output values.
var ValidOutputs = []string{"table", "json", "yaml"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Output  string
	Timeout time.Duration

	newClient func(cfg client.Config) (*client.Client, error)
}

func (o *RootOptions) client() (*client.Client, error) {
	return o.newClient(client.Config{BaseURL: o.Server, Timeout: o.Timeout})
}

// NewRootCommand creates the storectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{newClient: client.New}

	serverDefault := defaultServer
	if env := os.Getenv(serverEnv); env != "" {
		serverDefault = env
	}

	cmd := &cobra.Command{
		Use:   "storectl",
		Short: "Manage stores on the store platform",
		Long: `storectl creates, inspects and deletes stores through the store platform API.

The API address comes from --server, then $STORECTL_SERVER, then ` + defaultServer + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidOutputs, opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", serverDefault, "store platform API base URL")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "table", "output format (table|json|yaml)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "per-request timeout")

	cmd.AddCommand(
		newListCommand(opts),
		newGetCommand(opts),
		newCreateCommand(opts),
		newDeleteCommand(opts),
		newEventsCommand(opts),
		newMetricsCommand(opts),
		newAuditCommand(opts),
		newReconcileCommand(opts),
	)
	return cmd
}
