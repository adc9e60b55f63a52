package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"mangadl/downloader"
)

// printTable renders rows left aligned with a header line.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewTable(w)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Header.Alignment.Global = tw.AlignLeft
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// printSummary shows the counters of a run and one row per failure.
func printSummary(w io.Writer, s downloader.RunSummary) {
	fmt.Fprintln(w)
	if err := printTable(w,
		[]string{"Sources", "Downloaded", "Skipped", "Failed"},
		[][]string{{
			strconv.Itoa(s.Sources),
			strconv.Itoa(s.Downloaded),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Failed),
		}},
	); err != nil {
		fmt.Fprintf(w, "%d sources, %d downloaded, %d skipped, %d failed\n", s.Sources, s.Downloaded, s.Skipped, s.Failed)
	}

	if len(s.Errors) == 0 {
		return
	}

	fmt.Fprintln(w, color.New(color.FgRed, color.Bold).Sprint("Failures:"))
	rows := make([][]string, 0, len(s.Errors))
	for _, f := range s.Errors {
		title := f.Title
		if title == "" {
			title = f.Source
		}
		chapter := f.Chapter
		if chapter == "" {
			chapter = "-"
		}
		rows = append(rows, []string{title, chapter, downloader.Kind(f.Err), f.Err.Error()})
	}
	if err := printTable(w, []string{"Manga", "Chapter", "Kind", "Error"}, rows); err != nil {
		for _, r := range rows {
			fmt.Fprintf(w, "%s %s: %s\n", r[0], r[1], r[3])
		}
	}
}
