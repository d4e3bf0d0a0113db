package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/artist-check/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise every performance record in the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		shows, err := newBackend(cfg.Backend).ListPerformances(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "stats: list performances")
		}
		sum := stats.Summarize(shows, cfg.Scoring.Location())

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		}
		formatSummary(os.Stdout, sum)
		return nil
	},
}

func formatSummary(out io.Writer, s stats.Summary) {
	_, _ = fmt.Fprintf(out, "Shows: %d  Artists: %d  Venues: %d\n", s.Total, s.Artists, s.Venues)

	section := func(title string, counts []stats.Count) {
		if len(counts) == 0 {
			return
		}
		_, _ = fmt.Fprintf(out, "\n%s\n", title)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, c := range counts {
			_, _ = fmt.Fprintf(w, "  %s\t%d\n", c.Name, c.Count)
		}
		_ = w.Flush()
	}
	section("Top artists", s.TopArtists)
	section("Top venues", s.TopVenues)
	section("By month", sortedCounts(s.ByMonth))
	section("By province", sortedCounts(s.ByProvince))
}

// sortedCounts orders a tally by key.
func sortedCounts(m map[string]int) []stats.Count {
	out := make([]stats.Count, 0, len(m))
	for k, v := range m {
		out = append(out, stats.Count{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func init() {
	statsCmd.Flags().Bool("json", false, "print JSON")
	rootCmd.AddCommand(statsCmd)
}
