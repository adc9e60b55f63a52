package cmd

import (
	"github.com/spf13/cobra"

	"mangadl/sites"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the supported sites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts := sites.Hosts()
		rows := make([][]string, 0, len(hosts))
		for _, h := range hosts {
			rows = append(rows, []string{h.Host, h.Adapter})
		}
		return printTable(cmd.OutOrStdout(), []string{"Host", "Adapter"}, rows)
	},
}
