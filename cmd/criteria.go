package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/scorer"
)

var criteriaCmd = &cobra.Command{
	Use:   "criteria",
	Short: "Show or change the scoring criteria",
}

var criteriaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the committed criteria",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		return printCriteria(cmd, os.Stdout, env.Roster.Criteria())
	},
}

var criteriaSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change thresholds or load a criteria file",
	Long: `Starts from the committed criteria, applies --file (a full YAML criteria
document) and then any threshold flags. The result is validated before it
is saved; an invalid candidate leaves the committed criteria untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		candidate := env.Roster.Criteria()
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			if candidate, err = readCriteriaFile(path); err != nil {
				return err
			}
		}
		applyCriteriaFlags(cmd, &candidate)

		if err := env.Roster.UpdateCriteria(ctx, candidate); err != nil {
			return err
		}
		return printCriteria(cmd, os.Stdout, env.Roster.Criteria())
	},
}

var criteriaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default criteria",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Roster.ResetCriteria(cmd.Context())
		if err != nil {
			return err
		}
		return printCriteria(cmd, os.Stdout, c)
	},
}

var criteriaDescribeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Label every score matrix cell",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		formatDescriptions(os.Stdout, env.Roster.Criteria())
		return nil
	},
}

// applyCriteriaFlags copies the threshold flags that were set onto c.
func applyCriteriaFlags(cmd *cobra.Command, c *scorer.Criteria) {
	ints := map[string]*int{
		"distance1":  &c.Distance1,
		"distance2":  &c.Distance2,
		"time1":      &c.Time1,
		"time2":      &c.Time2,
		"time3":      &c.Time3,
		"time-range": &c.TimeRange,
	}
	for name, dst := range ints {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetInt(name)
		}
	}
}

func printCriteria(cmd *cobra.Command, out io.Writer, c scorer.Criteria) error {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	case "yaml":
		return yaml.NewEncoder(out).Encode(c)
	default:
		formatCriteria(out, c)
		return nil
	}
}

// formatCriteria prints thresholds followed by the score matrix, rows by
// distance band and columns by time band.
func formatCriteria(out io.Writer, c scorer.Criteria) {
	_, _ = fmt.Fprintf(out, "distance1: %d km  distance2: %d km\n", c.Distance1, c.Distance2)
	_, _ = fmt.Fprintf(out, "time1: %d  time2: %d  time3: %d months  timeRange: %d months\n\n",
		c.Time1, c.Time2, c.Time3, c.TimeRange)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "BAND\t<=%d\t<=%d\t<=%d\t>%d\n", c.Time1, c.Time2, c.Time3, c.Time3)
	_, _ = fmt.Fprintln(w, "----\t--\t--\t--\t--")
	for _, d := range distanceBands {
		_, _ = fmt.Fprintf(w, "%s", d)
		for _, t := range timeBands {
			_, _ = fmt.Fprintf(w, "\t%d", c.Scores.At(d, t))
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func formatDescriptions(out io.Writer, c scorer.Criteria) {
	d := scorer.Descriptions(c)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CELL\tSCORE\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "----\t-----\t-----------")
	for _, db := range distanceBands {
		for _, tb := range timeBands {
			key := scorer.CellKey(db, tb)
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", key, c.Scores.At(db, tb), d[key])
		}
	}
	_ = w.Flush()
}

var (
	distanceBands = []geo.DistanceBand{geo.BandInCity, geo.BandNearby, geo.BandWide}
	timeBands     = []scorer.TimeBand{scorer.TimeRecent, scorer.TimeMid, scorer.TimeOlder, scorer.TimeStale}
)

func init() {
	for _, c := range []*cobra.Command{criteriaShowCmd, criteriaSetCmd, criteriaResetCmd} {
		c.Flags().String("format", "table", "output format: table, json or yaml")
	}
	criteriaSetCmd.Flags().String("file", "", "YAML criteria file")
	criteriaSetCmd.Flags().Int("distance1", 0, "in-city radius in km")
	criteriaSetCmd.Flags().Int("distance2", 0, "nearby radius in km")
	criteriaSetCmd.Flags().Int("time1", 0, "recent threshold in months")
	criteriaSetCmd.Flags().Int("time2", 0, "mid threshold in months")
	criteriaSetCmd.Flags().Int("time3", 0, "older threshold in months")
	criteriaSetCmd.Flags().Int("time-range", 0, "map window in months")

	criteriaCmd.AddCommand(criteriaShowCmd, criteriaSetCmd, criteriaResetCmd, criteriaDescribeCmd)
	rootCmd.AddCommand(criteriaCmd)
}
