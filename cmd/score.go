package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
	"github.com/sells-group/artist-check/internal/settings"
	"github.com/sells-group/artist-check/internal/store"
)

// scoreReport is what `score` prints for one artist.
type scoreReport struct {
	Artist    string             `json:"artist"`
	Target    model.Target       `json:"target"`
	Score     int                `json:"score"`
	Verdict   scorer.Verdict     `json:"verdict"`
	Breakdown []scorer.ShowScore `json:"breakdown"`
}

var scoreCmd = &cobra.Command{
	Use:   "score [artist]",
	Short: "Score one artist's shows against a city and date",
	Long: `Scores an artist without touching the roster. Shows come from the backend,
or from a JSON file of show records with --shows. Criteria come from --criteria
(YAML), else the saved criteria, else the defaults.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		city, _ := cmd.Flags().GetString("city")
		date, _ := cmd.Flags().GetString("date")
		showsPath, _ := cmd.Flags().GetString("shows")
		criteriaPath, _ := cmd.Flags().GetString("criteria")
		asJSON, _ := cmd.Flags().GetBool("json")
		target := model.Target{City: city, Date: date}
		if !target.IsSet() {
			return eris.New("score: --city and --date are required")
		}

		var (
			artist string
			shows  []model.Show
			err    error
		)
		switch {
		case showsPath != "":
			shows, err = readShowsFile(showsPath)
			if err != nil {
				return err
			}
			artist = showsPath
			if len(args) == 1 {
				artist = args[0]
			}
		case len(args) == 1:
			artist = args[0]
			shows, err = newBackend(cfg.Backend).FetchShows(ctx, artist)
			if err != nil {
				return eris.Wrap(err, "score")
			}
		default:
			return eris.New("score: give an artist name or --shows")
		}

		crit, err := resolveCriteria(cmd, criteriaPath)
		if err != nil {
			return err
		}

		gaz, err := geo.Load(cfg.Gazetteer.Path)
		if err != nil {
			return eris.Wrap(err, "score: load gazetteer")
		}
		engine := scorer.NewEngine(gaz, cfg.Scoring.Location())
		s := engine.ScoreArtist(shows, target, crit)
		rep := scoreReport{
			Artist:    artist,
			Target:    target,
			Score:     s,
			Verdict:   scorer.VerdictFor(s),
			Breakdown: engine.Breakdown(shows, target, crit),
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		formatScoreReport(os.Stdout, rep)
		return nil
	},
}

// resolveCriteria reads a YAML criteria file, or the saved criteria.
func resolveCriteria(cmd *cobra.Command, path string) (scorer.Criteria, error) {
	if path != "" {
		return readCriteriaFile(path)
	}
	kv, err := store.Open(cmd.Context(), cfg.Store)
	if err != nil {
		return scorer.Criteria{}, err
	}
	defer kv.Close() //nolint:errcheck
	c, found, err := settings.New(kv).LoadCriteria(cmd.Context())
	if err != nil || !found {
		return scorer.DefaultCriteria(), err
	}
	return c, nil
}

func readCriteriaFile(path string) (scorer.Criteria, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scorer.Criteria{}, eris.Wrap(err, "read criteria file")
	}
	c := scorer.DefaultCriteria()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return scorer.Criteria{}, eris.Wrapf(err, "parse criteria file %s", path)
	}
	if err := scorer.ValidateCriteria(c); err != nil {
		return scorer.Criteria{}, err
	}
	return c, nil
}

// readShowsFile accepts a bare JSON array of shows or the backend's
// {"success": true, "data": [...]} envelope.
func readShowsFile(path string) ([]model.Show, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read shows file")
	}
	var shows []model.Show
	if err := json.Unmarshal(data, &shows); err == nil {
		return shows, nil
	}
	var env struct {
		Data []model.Show `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, eris.Wrapf(err, "parse shows file %s", path)
	}
	return env.Data, nil
}

// formatScoreReport writes the score and per-show breakdown to out.
func formatScoreReport(out io.Writer, rep scoreReport) {
	_, _ = fmt.Fprintf(out, "%s @ %s %s: %d/%d %s\n\n",
		rep.Artist, rep.Target.City, rep.Target.Date, rep.Score, scorer.MaxScore, rep.Verdict.Label)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tCITY\tKM\tMONTHS\tCELL\tSCORE")
	_, _ = fmt.Fprintln(w, "----\t----\t--\t------\t----\t-----")
	for _, r := range rep.Breakdown {
		if !r.Scorable {
			_, _ = fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t(%s)\n", r.Show.Date, r.Show.City, r.Reason)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%d\n",
			r.Show.Date, r.Show.City, r.DistanceKM, r.MonthsDiff,
			scorer.CellKey(r.DistanceBand, r.TimeBand), r.Score)
	}
	_ = w.Flush()
}

func init() {
	scoreCmd.Flags().String("city", "", "target city")
	scoreCmd.Flags().String("date", "", "target date (YYYY-MM-DD)")
	scoreCmd.Flags().String("shows", "", "JSON file of show records instead of the backend")
	scoreCmd.Flags().String("criteria", "", "YAML criteria file")
	scoreCmd.Flags().Bool("json", false, "print JSON")
	rootCmd.AddCommand(scoreCmd)
}
