package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/stats"
)

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "Look up cities in the gazetteer",
}

var citiesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find cities by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gaz, err := geo.Load(cfg.Gazetteer.Path)
		if err != nil {
			return eris.Wrap(err, "cities: load gazetteer")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		formatCitySearch(os.Stdout, gaz, gaz.Search(args[0], limit))
		return nil
	},
}

var citiesDistanceCmd = &cobra.Command{
	Use:   "distance <city> <city>",
	Short: "Great-circle distance between two cities",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		gaz, err := geo.Load(cfg.Gazetteer.Path)
		if err != nil {
			return eris.Wrap(err, "cities: load gazetteer")
		}
		km, ok := gaz.Distance(args[0], args[1])
		if !ok {
			return eris.Errorf("cities: unknown city in %q, %q", args[0], args[1])
		}
		fmt.Printf("%s - %s: %d km\n", args[0], args[1], km)
		return nil
	},
}

var citiesStatsCmd = &cobra.Command{
	Use:   "stats <city>",
	Short: "Shows in and around a city, bucketed by the distance thresholds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		gaz, err := geo.Load(cfg.Gazetteer.Path)
		if err != nil {
			return eris.Wrap(err, "cities: load gazetteer")
		}
		city := args[0]
		if _, ok := gaz.Lookup(city); !ok {
			return eris.Errorf("cities: unknown city %q", city)
		}
		crit, err := resolveCriteria(cmd, "")
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		shows, err := newBackend(cfg.Backend).CityShows(ctx, city, crit.Distance2, limit)
		if err != nil {
			return eris.Wrap(err, "cities: fetch shows")
		}
		rep := stats.CityStats(gaz, city, shows, crit, time.Now(), cfg.Scoring.Location())

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		formatCityReport(os.Stdout, rep)
		return nil
	},
}

func formatCitySearch(out io.Writer, gaz *geo.Gazetteer, names []string) {
	if len(names) == 0 {
		_, _ = fmt.Fprintln(out, "No matching cities.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tLON\tLAT")
	_, _ = fmt.Fprintln(w, "----\t---\t---")
	for _, name := range names {
		loc, ok := gaz.Lookup(name)
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", name, loc.Lon(), loc.Lat())
	}
	_ = w.Flush()
}

func formatCityReport(out io.Writer, rep stats.CityReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RING\tTOTAL\tUPCOMING")
	_, _ = fmt.Fprintln(w, "----\t-----\t--------")
	rings := []struct {
		name string
		b    stats.Bucket
	}{{"in city", rep.InCity}, {"nearby", rep.Nearby}, {"wider", rep.Wider}}
	for _, r := range rings {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", r.name, r.b.Total, r.b.Upcoming)
	}
	_ = w.Flush()

	for _, r := range rings {
		if len(r.b.Shows) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n%s:\n", r.name)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, s := range r.b.Shows {
			mark := ""
			if s.Upcoming {
				mark = "upcoming"
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%d km\t%s\n", s.Date, s.Artist, s.City, s.DistanceKM, mark)
		}
		_ = w.Flush()
	}
}

func init() {
	citiesSearchCmd.Flags().Int("limit", geo.DefaultSearchLimit, "maximum results")
	citiesStatsCmd.Flags().Int("limit", 200, "maximum shows to fetch")
	citiesStatsCmd.Flags().Bool("json", false, "print JSON")

	citiesCmd.AddCommand(citiesSearchCmd, citiesDistanceCmd, citiesStatsCmd)
	rootCmd.AddCommand(citiesCmd)
}
