package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage the artists under assessment",
	Long: `The roster is the working set of candidate artists. Each is scored against
the current target city and date; the target and roster are kept between
runs only while remembering is on (see "roster remember").`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("cli")
	},
}

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the roster with scores and prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		entries := env.Roster.Snapshot()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Target model.Target             `json:"target"`
				Roster []model.ArtistAssessment `json:"roster"`
				Total  int                      `json:"totalPrice"`
			}{env.Roster.Target(), entries, model.TotalPrice(entries)})
		}
		formatRoster(os.Stdout, env.Roster.Target(), entries)
		return nil
	},
}

var rosterAddCmd = &cobra.Command{
	Use:   "add <artist>...",
	Short: "Fetch and score artists",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		warnUnsaved(os.Stderr, env.Roster.Remember(), "roster")
		for _, name := range args {
			a, err := env.Roster.AddArtist(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", a.Name, scoreCell(a))
		}
		return nil
	},
}

var rosterRemoveCmd = &cobra.Command{
	Use:   "remove <artist>",
	Short: "Drop an artist from the roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		warnUnsaved(os.Stderr, env.Roster.Remember(), "roster")
		if err := env.Roster.RemoveArtist(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var rosterPriceCmd = &cobra.Command{
	Use:   "price <artist> <price>",
	Short: "Record a quote for an artist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		warnUnsaved(os.Stderr, env.Roster.Remember(), "roster")
		a, err := env.Roster.SetPrice(cmd.Context(), args[0], model.Price(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%s)\n", a.Name, a.Price, scoreCell(a))
		return nil
	},
}

var rosterRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refetch shows and pricing for every artist",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Roster.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Refreshed %d, failed %d\n", res.Refreshed, res.Failed)
		return nil
	},
}

var rosterTargetCmd = &cobra.Command{
	Use:   "target [city] [date]",
	Short: "Show or set the target city and date",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) > 0 {
			warnUnsaved(os.Stderr, env.Roster.Remember(), "target")
			t := env.Roster.Target()
			t.City = args[0]
			if len(args) == 2 {
				t.Date = args[1]
			}
			if err := env.Roster.SetTarget(cmd.Context(), t); err != nil {
				return err
			}
		}
		t := env.Roster.Target()
		fmt.Printf("city: %s\ndate: %s\n", orDash(t.City), orDash(t.Date))
		return nil
	},
}

var rosterRememberCmd = &cobra.Command{
	Use:       "remember [on|off]",
	Short:     "Show or toggle keeping the target and roster between runs",
	Args:      cobra.MatchAll(cobra.RangeArgs(0, 1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			if err := env.Roster.SetRemember(cmd.Context(), args[0] == "on"); err != nil {
				return err
			}
		}
		state := "off"
		if env.Roster.Remember() {
			state = "on"
		}
		fmt.Printf("remember: %s\n", state)
		return nil
	},
}

var rosterExplainCmd = &cobra.Command{
	Use:   "explain <artist>",
	Short: "Show how each of an artist's shows was scored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Roster.Get(args[0])
		if err != nil {
			return err
		}
		rows, err := env.Roster.Explain(args[0])
		if err != nil {
			return err
		}
		score := scorer.MaxScore
		if a.Score != nil {
			score = *a.Score
		}
		formatScoreReport(os.Stdout, scoreReport{
			Artist:    a.Name,
			Target:    env.Roster.Target(),
			Score:     score,
			Verdict:   scorer.VerdictFor(score),
			Breakdown: rows,
		})
		return nil
	},
}

// scoreCell renders an entry's score with its verdict, or its state when
// it has no score.
func scoreCell(a model.ArtistAssessment) string {
	if !a.Scored() {
		return string(a.State)
	}
	return fmt.Sprintf("%d %s", *a.Score, scorer.VerdictFor(*a.Score).Label)
}

func formatRoster(out io.Writer, t model.Target, entries []model.ArtistAssessment) {
	_, _ = fmt.Fprintf(out, "Target: %s %s\n\n", orDash(t.City), orDash(t.Date))
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "Roster is empty.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ARTIST\tSCORE\tPRICE\tSHOWS")
	_, _ = fmt.Fprintln(w, "------\t-----\t-----\t-----")
	for _, a := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, scoreCell(a), orDash(a.Price.String()), showCount(a))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nTotal: %d\n", model.TotalPrice(entries))
}

func showCount(a model.ArtistAssessment) string {
	if a.Shows == nil {
		return "-"
	}
	return strconv.Itoa(len(a.Shows))
}

// warnUnsaved tells the user that a change to what is kept only while
// remembering is on will be gone when the command exits. It reports whether
// it warned.
func warnUnsaved(out io.Writer, remember bool, what string) bool {
	if remember {
		return false
	}
	zap.L().Warn("remember is off, change will not be saved", zap.String("what", what))
	_, _ = fmt.Fprintf(out, "note: remember is off, this %s change lasts only for this run (enable with \"roster remember on\")\n", what)
	return true
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rosterListCmd.Flags().Bool("json", false, "print JSON")

	rosterCmd.AddCommand(rosterListCmd, rosterAddCmd, rosterRemoveCmd, rosterPriceCmd,
		rosterRefreshCmd, rosterTargetCmd, rosterRememberCmd, rosterExplainCmd)
	rootCmd.AddCommand(rosterCmd)
}
