package reset

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/syncbench/tdk/cmd/util"
	"github.com/syncbench/tdk/pkg/client"
	"github.com/syncbench/tdk/pkg/protocol"
)

type ResetOptions struct {
	Databases   []string
	Dataset     string
	Collections []string
	TestName    string
}

func NewResetOptions() *ResetOptions {
	return &ResetOptions{
		Databases: []string{"db1"},
		TestName:  "tdk-reset",
	}
}

func NewCmd() *cobra.Command {
	o := NewResetOptions()

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Open a session on every test server and recreate its databases",
		Long: `Negotiates the protocol version with every configured test server, opens a
session on each and recreates the named databases, either from a dataset or
empty with the given collections.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.Run(cmd)
		},
	}
	fset := pflag.NewFlagSet("reset", pflag.ContinueOnError)
	fset.StringSliceVar(&o.Databases, "db", o.Databases, "Names of the databases to recreate.")
	fset.StringVar(&o.Dataset, "dataset", o.Dataset, "Dataset to load into each database.")
	fset.StringSliceVar(&o.Collections, "collection", o.Collections,
		"Collections to create in each empty database. Cannot be combined with --dataset.")
	fset.StringVar(&o.TestName, "test-name", o.TestName, "Test name sent with the reset.")
	resetCmd.Flags().AddFlagSet(fset)

	return resetCmd
}

func (o *ResetOptions) Run(cmd *cobra.Command) (err error) {
	if o.Dataset != "" && len(o.Collections) > 0 {
		return fmt.Errorf("--dataset and --collection cannot be combined")
	}
	if len(o.Databases) == 0 {
		return fmt.Errorf("at least one --db is required")
	}

	spinner, err := util.NewSpinner(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { spinner.Done(err) }()

	spinner.Step("Connecting to test servers")
	f, err := util.NewFactory(cmd)
	if err != nil {
		return err
	}
	ctx := protocol.WithTestName(cmd.Context(), o.TestName)
	spinner.Step("Negotiating protocol version")
	if _, err = f.Negotiate(ctx); err != nil {
		return err
	}
	spinner.Step("Starting sessions")
	servers, err := f.StartSessions(ctx, util.GetConfig(cmd).SessionSpecs()...)
	if err != nil {
		return err
	}

	spinner.Step("Resetting databases")
	g, gctx := errgroup.WithContext(ctx)
	for _, ts := range servers {
		ts := ts
		g.Go(func() error {
			_, err := ts.CreateAndResetDB(gctx, o.Databases, client.ResetOptions{
				Dataset:     o.Dataset,
				Collections: o.Collections,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", ts, err)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}
	spinner.Done(nil)

	cmd.Printf("Reset %d database(s) on %d test server(s) at protocol version %d\n",
		len(o.Databases), len(servers), f.Version())
	return nil
}
