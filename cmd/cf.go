package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mangadl/cf"
	"mangadl/logging"
)

var cfImportFile string

var cfCmd = &cobra.Command{
	Use:   "cf",
	Short: "Manage stored Cloudflare bypass data",
	Long: `Sites behind a Cloudflare challenge can be reached with cookies captured
in a real browser. Copy the captured JSON and run "mangadl cf import".`,
}

var cfImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Store captured bypass data from the clipboard (or --file, - for stdin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cf.DefaultStore()
		if err != nil {
			return err
		}

		var domain string
		if cfImportFile != "" {
			raw, err := readImport(cmd.InOrStdin(), cfImportFile)
			if err != nil {
				return err
			}
			domain, err = cf.Import(store, raw)
			if err != nil {
				return err
			}
		} else {
			domain, err = cf.ImportFromClipboard(store)
			if err != nil {
				return err
			}
		}

		logging.Success("Stored bypass data for %s", domain)
		return nil
	},
}

var cfListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains with stored bypass data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cf.DefaultStore()
		if err != nil {
			return err
		}
		return listBypass(cmd.OutOrStdout(), store)
	},
}

var cfDeleteCmd = &cobra.Command{
	Use:   "delete <domain>",
	Short: "Remove the stored bypass data of a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cf.DefaultStore()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			if errors.Is(err, cf.ErrNoData) {
				logging.Warn("No bypass data stored for %s", args[0])
				return nil
			}
			return err
		}
		logging.Success("Deleted bypass data for %s", args[0])
		return nil
	},
}

func init() {
	cfImportCmd.Flags().StringVar(&cfImportFile, "file", "", "read the captured JSON from a file instead of the clipboard")

	cfCmd.AddCommand(cfImportCmd)
	cfCmd.AddCommand(cfListCmd)
	cfCmd.AddCommand(cfDeleteCmd)
}

func readImport(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return raw, nil
}

// listBypass prints each stored domain with its capture time and state.
func listBypass(w io.Writer, store *cf.Store) error {
	domains, err := store.List()
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		fmt.Fprintln(w, "No bypass data stored.")
		return nil
	}

	rows := make([][]string, 0, len(domains))
	for _, domain := range domains {
		data, err := store.Load(domain)
		if err != nil {
			rows = append(rows, []string{domain, "-", "unreadable: " + err.Error()})
			continue
		}
		state := "valid"
		if err := cf.Validate(data); err != nil {
			state = err.Error()
		}
		rows = append(rows, []string{domain, data.CapturedAt, state})
	}
	return printTable(w, []string{"Domain", "Captured", "State"}, rows)
}
