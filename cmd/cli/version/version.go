package version

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/syncbench/tdk/cmd/util"
	"github.com/syncbench/tdk/cmd/util/output"
	"github.com/syncbench/tdk/pkg/protocol"
	"github.com/syncbench/tdk/pkg/version"
)

type VersionOptions struct {
	Format  string
	NoStyle bool
}

func NewVersionOptions() *VersionOptions {
	return &VersionOptions{Format: string(output.TableFormat)}
}

// Row is the client build plus the protocol versions it speaks.
type Row struct {
	version.BuildVersionInfo
	ProtocolVersion int `json:"ProtocolVersion"`
}

var columns = []output.TableColumn[Row]{
	{ColumnConfig: table.ColumnConfig{Name: "CLIENT"}, Value: func(r Row) string { return r.GitVersion }},
	{ColumnConfig: table.ColumnConfig{Name: "COMMIT"}, Value: func(r Row) string { return r.GitCommit }},
	{
		ColumnConfig: table.ColumnConfig{Name: "PLATFORM"},
		Value:        func(r Row) string { return r.GOOS + "/" + r.GOARCH },
	},
	{
		ColumnConfig: table.ColumnConfig{Name: "PROTOCOL"},
		Value:        func(r Row) string { return fmt.Sprintf("1-%d", r.ProtocolVersion) },
	},
}

func NewCmd() *cobra.Command {
	o := NewVersionOptions()

	versionCmd := &cobra.Command{
		Use:         "version",
		Short:       "Print the client version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{util.AnnotationSkipConfig: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.Run(cmd)
		},
	}
	fset := pflag.NewFlagSet("version", pflag.ContinueOnError)
	fset.StringVar(&o.Format, "output", o.Format, fmt.Sprintf("Output format, one of %v.", output.AllFormats))
	fset.BoolVar(&o.NoStyle, "no-style", o.NoStyle, "Remove all styling from table output.")
	versionCmd.Flags().AddFlagSet(fset)

	return versionCmd
}

func (o *VersionOptions) Run(cmd *cobra.Command) error {
	format, err := output.ParseFormat(o.Format)
	if err != nil {
		return err
	}
	info, err := version.Get()
	if err != nil {
		return err
	}
	row := Row{BuildVersionInfo: info, ProtocolVersion: protocol.MaxSupportedVersion}
	return output.Output(cmd, columns, output.OutputOptions{Format: format, NoStyle: o.NoStyle, Pretty: true}, []Row{row})
}
