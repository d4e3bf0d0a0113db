package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/export"
	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/stats"
	"github.com/sells-group/artist-check/pkg/backend"
)

var showsCmd = &cobra.Command{
	Use:   "shows",
	Short: "Manage performance records in the backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("cli")
	},
}

var showsListCmd = &cobra.Command{
	Use:   "list [artist]",
	Short: "List an artist's shows, or every record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		be := newBackend(cfg.Backend)

		var (
			shows []model.Show
			err   error
		)
		if len(args) == 1 {
			shows, err = be.FetchShows(ctx, args[0])
		} else {
			shows, err = be.ListPerformances(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "shows: list")
		}
		return printShows(cmd, os.Stdout, shows)
	},
}

var showsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Submit a new performance record",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := backend.NewPerformance{}
		p.Artist, _ = cmd.Flags().GetString("artist")
		p.Type, _ = cmd.Flags().GetString("type")
		p.Date, _ = cmd.Flags().GetString("date")
		p.Province, _ = cmd.Flags().GetString("province")
		p.City, _ = cmd.Flags().GetString("city")
		p.Venue, _ = cmd.Flags().GetString("venue")

		if poster, _ := cmd.Flags().GetString("poster"); poster != "" {
			f, err := os.Open(poster)
			if err != nil {
				return eris.Wrap(err, "shows: open poster")
			}
			defer f.Close() //nolint:errcheck
			p.Poster = f
			p.PosterName = filepath.Base(poster)
		}

		if err := newBackend(cfg.Backend).CreatePerformance(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Printf("Added %s @ %s %s\n", p.Artist, p.City, p.Date)
		return nil
	},
}

var showsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a performance record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := model.Show{ID: model.FlexString(args[0])}
		s.Artist, _ = cmd.Flags().GetString("artist")
		s.Type, _ = cmd.Flags().GetString("type")
		s.Date, _ = cmd.Flags().GetString("date")
		s.Province, _ = cmd.Flags().GetString("province")
		s.City, _ = cmd.Flags().GetString("city")
		s.Venue, _ = cmd.Flags().GetString("venue")

		if err := newBackend(cfg.Backend).UpdateShow(cmd.Context(), s); err != nil {
			return err
		}
		fmt.Printf("Updated show %s\n", args[0])
		return nil
	},
}

var showsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a performance record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newBackend(cfg.Backend).DeleteShow(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted show %s\n", args[0])
		return nil
	},
}

var showsImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Submit every row of a spreadsheet as a performance record",
	Long: `Reads artist, date and city columns (plus optional type, province and
venue) from the first sheet, or --sheet, and submits one record per row.
Headers may be English or Chinese.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "shows: read spreadsheet")
		}
		sheet, _ := cmd.Flags().GetString("sheet")
		shows, err := export.ReadShows(data, export.ReadOptions{SheetName: sheet})
		if err != nil {
			return err
		}
		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			return printShows(cmd, os.Stdout, shows)
		}

		be := newBackend(cfg.Backend)
		var failed int
		for i, s := range shows {
			err := be.CreatePerformance(ctx, backend.NewPerformance{
				Artist: s.Artist, Type: s.Type, Date: s.Date,
				Province: s.Province, City: s.City, Venue: s.Venue,
			})
			if err != nil {
				failed++
				zap.L().Warn("shows: import row failed", zap.Int("row", i+1), zap.String("artist", s.Artist), zap.Error(err))
			}
		}
		fmt.Printf("Imported %d of %d rows\n", len(shows)-failed, len(shows))
		if failed > 0 {
			return eris.Errorf("shows: %d rows failed", failed)
		}
		return nil
	},
}

var showsTimelineCmd = &cobra.Command{
	Use:   "timeline <artist>",
	Short: "An artist's shows within a year either side of today",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shows, err := newBackend(cfg.Backend).FetchShows(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "shows: timeline")
		}
		entries := stats.Timeline(shows, time.Now(), cfg.Scoring.Location())

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		formatTimeline(os.Stdout, entries)
		return nil
	},
}

var showsArtistsCmd = &cobra.Command{
	Use:   "artists",
	Short: "List the artist directory with each artist's record count",
	RunE: func(cmd *cobra.Command, args []string) error {
		artists, err := newBackend(cfg.Backend).ListArtists(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(artists)
		}
		formatArtists(os.Stdout, artists, cfg.Scoring.Location())
		return nil
	},
}

var showsCrawlCmd = &cobra.Command{
	Use:   "crawl <artist>...",
	Short: "Ask the crawlers to fetch the latest shows of artists",
	Long: `Sends the artists to every configured crawler at once and merges the
results. Arguments may also be lists separated by 、 or commas. The command
fails only when no crawler answers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var artists []string
		for _, a := range args {
			artists = append(artists, backend.ParseArtistList(a)...)
		}
		res, err := newUpdater(cfg.Backend).Update(cmd.Context(), artists)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatCrawlResult(os.Stdout, res)
		return nil
	},
}

var showsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent records grouped by date or artist",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		by, _ := cmd.Flags().GetString("by")
		grouping := stats.RecentGrouping(by)
		if grouping != stats.GroupByDate && grouping != stats.GroupByArtist {
			return eris.Errorf("shows: --by must be date or artist, got %q", by)
		}
		shows, err := newBackend(cfg.Backend).RecentShows(cmd.Context(), limit)
		if err != nil {
			return err
		}
		groups := stats.GroupRecent(shows, grouping, cfg.Scoring.Location())
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(groups)
		}
		formatRecent(os.Stdout, groups)
		return nil
	},
}

func printShows(cmd *cobra.Command, out io.Writer, shows []model.Show) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(shows)
	}
	formatShows(out, shows)
	return nil
}

func formatShows(out io.Writer, shows []model.Show) {
	if len(shows) == 0 {
		_, _ = fmt.Fprintln(out, "No shows found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATE\tARTIST\tCITY\tVENUE\tTYPE")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t----\t-----\t----")
	for _, s := range shows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Date, s.Artist, s.City, s.Venue, s.Kind())
	}
	_ = w.Flush()
}

func formatTimeline(out io.Writer, entries []stats.TimelineEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No shows within a year of today.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tCITY\tVENUE\tKIND")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t----")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Day.Format(time.DateOnly), e.City, e.Venue, e.Kind)
	}
	_ = w.Flush()
}

func formatArtists(out io.Writer, artists []backend.ArtistRecord, loc *time.Location) {
	if len(artists) == 0 {
		_, _ = fmt.Fprintln(out, "No artists found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ARTIST\tLATEST\tCITY\tVENUE\tSHOWS")
	_, _ = fmt.Fprintln(w, "------\t------\t----\t-----\t-----")
	for _, a := range artists {
		latest := a.LatestPerformance
		if d, err := model.ParseDay(latest, loc); err == nil {
			latest = d.Format(time.DateOnly)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			a.Name, orDash(latest), orDash(a.City), orDash(a.Venue), len(a.Performances))
	}
	_ = w.Flush()
}

func formatCrawlResult(out io.Writer, res backend.CrawlResult) {
	_, _ = fmt.Fprintf(out, "%s (%d updates, %d shows)\n", res.Message, len(res.Updates), len(res.Performances))
	byArtist := map[string][]model.Show{}
	var order []string
	for _, s := range res.Performances {
		if _, ok := byArtist[s.Artist]; !ok {
			order = append(order, s.Artist)
		}
		byArtist[s.Artist] = append(byArtist[s.Artist], s)
	}
	for _, artist := range order {
		_, _ = fmt.Fprintf(out, "\n%s: %d shows\n", orDash(artist), len(byArtist[artist]))
		formatShows(out, byArtist[artist])
	}
}

func formatRecent(out io.Writer, groups []stats.RecentGroup) {
	if len(groups) == 0 {
		_, _ = fmt.Fprintln(out, "No recent records.")
		return
	}
	for i, g := range groups {
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		_, _ = fmt.Fprintln(out, g.Key)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, sub := range g.Groups {
			for _, s := range sub.Shows {
				_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", sub.Key, s.City, orDash(s.Venue), s.Kind())
			}
		}
		_ = w.Flush()
	}
}

func init() {
	for _, c := range []*cobra.Command{showsAddCmd, showsUpdateCmd} {
		c.Flags().String("artist", "", "artist name")
		c.Flags().String("type", "", "show type")
		c.Flags().String("date", "", "date (YYYY-MM-DD)")
		c.Flags().String("province", "", "province")
		c.Flags().String("city", "", "city")
		c.Flags().String("venue", "", "venue")
	}
	showsAddCmd.Flags().String("poster", "", "poster image to upload")
	for _, c := range []*cobra.Command{showsListCmd, showsImportCmd, showsTimelineCmd, showsArtistsCmd, showsCrawlCmd, showsRecentCmd} {
		c.Flags().Bool("json", false, "print JSON")
	}
	showsImportCmd.Flags().String("sheet", "", "sheet name (default: first sheet)")
	showsImportCmd.Flags().Bool("dry-run", false, "print the parsed rows without submitting them")

	showsRecentCmd.Flags().Int("limit", backend.DefaultRecentLimit, "number of records to fetch")
	showsRecentCmd.Flags().String("by", string(stats.GroupByDate), "group by date or artist")

	showsCmd.AddCommand(showsListCmd, showsAddCmd, showsUpdateCmd, showsDeleteCmd, showsImportCmd,
		showsTimelineCmd, showsArtistsCmd, showsCrawlCmd, showsRecentCmd)
	rootCmd.AddCommand(showsCmd)
}
