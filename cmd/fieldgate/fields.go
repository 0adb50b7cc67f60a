package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"fieldgate/pkg/config"
	"fieldgate/pkg/lookup"
	"fieldgate/pkg/model"

	"github.com/spf13/cobra"
)

func newFieldsCmd(configPath *string) *cobra.Command {
	var resolve bool

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the configured static fields",
		Long: "List every static field from the config file with its textual form and\n" +
			"whether its value needs lookup. With --resolve, lookups are rendered\n" +
			"against an empty record using the environment and host resolvers.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			header := "FIELD\tLOOKUP"
			if resolve {
				header += "\tRESOLVED"
			}
			fmt.Fprintln(tw, header)

			ip := lookup.NewDefault()
			ev := model.NewEvent(time.Now(), []byte("{}"))
			for _, f := range cfg.Fields() {
				line := fmt.Sprintf("%s\t%t", f.String(), f.NeedsLookup())
				if resolve {
					v := f.Value()
					if f.NeedsLookup() {
						if v, err = ip.Replace(context.Background(), ev, v); err != nil {
							v = f.Value()
						}
					}
					line += "\t" + v
				}
				fmt.Fprintln(tw, line)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "render lookups against an empty record")
	return cmd
}
