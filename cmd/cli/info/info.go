package info

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/syncbench/tdk/cmd/util"
	"github.com/syncbench/tdk/cmd/util/output"
	"github.com/syncbench/tdk/pkg/protocol"
)

type InfoOptions struct {
	Format  string
	NoStyle bool
}

func NewInfoOptions() *InfoOptions {
	return &InfoOptions{Format: string(output.TableFormat)}
}

// Row is one test server as reported by its root endpoint.
type Row struct {
	Index          int    `json:"index"`
	URL            string `json:"url"`
	Variant        string `json:"variant"`
	LibraryVersion string `json:"libraryVersion"`
	APIVersion     int    `json:"apiVersion"`
	CBL            string `json:"cbl"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

var columns = []output.TableColumn[Row]{
	{
		ColumnConfig: table.ColumnConfig{Name: "#", Align: text.AlignRight},
		Value:        func(r Row) string { return strconv.Itoa(r.Index) },
	},
	{ColumnConfig: table.ColumnConfig{Name: "URL"}, Value: func(r Row) string { return r.URL }},
	{ColumnConfig: table.ColumnConfig{Name: "VARIANT"}, Value: func(r Row) string { return r.Variant }},
	{ColumnConfig: table.ColumnConfig{Name: "VERSION"}, Value: func(r Row) string { return r.LibraryVersion }},
	{
		ColumnConfig: table.ColumnConfig{Name: "API", Align: text.AlignRight},
		Value:        func(r Row) string { return strconv.Itoa(r.APIVersion) },
	},
	{ColumnConfig: table.ColumnConfig{Name: "CBL"}, Value: func(r Row) string { return r.CBL }},
}

func NewCmd() *cobra.Command {
	o := NewInfoOptions()

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Describe every configured test server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.Run(cmd)
		},
	}
	fset := pflag.NewFlagSet("info", pflag.ContinueOnError)
	fset.StringVar(&o.Format, "output", o.Format, fmt.Sprintf("Output format, one of %v.", output.AllFormats))
	fset.BoolVar(&o.NoStyle, "no-style", o.NoStyle, "Remove all styling from table output.")
	infoCmd.Flags().AddFlagSet(fset)

	return infoCmd
}

func (o *InfoOptions) Run(cmd *cobra.Command) error {
	format, err := output.ParseFormat(o.Format)
	if err != nil {
		return err
	}
	f, err := util.NewFactory(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rows := make([]Row, f.ServerCount())
	g, gctx := errgroup.WithContext(ctx)
	for _, ts := range f.Servers() {
		ts := ts
		g.Go(func() error {
			info, err := ts.GetInfo(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", ts, err)
			}
			rows[ts.Index()] = newRow(ts.Index(), ts.URL(), info)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return output.Output(cmd, columns, output.OutputOptions{Format: format, NoStyle: o.NoStyle, Pretty: true}, rows)
}

func newRow(index int, url string, info protocol.RootInfo) Row {
	return Row{
		Index:          index,
		URL:            url,
		Variant:        string(info.Variant),
		LibraryVersion: info.RawVersion,
		APIVersion:     info.APIVersion,
		CBL:            info.CBL,
		AdditionalInfo: info.AdditionalInfo,
	}
}
