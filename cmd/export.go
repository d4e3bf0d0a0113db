package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/artist-check/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the roster as a quote spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		path, _ := cmd.Flags().GetString("out")
		title, _ := cmd.Flags().GetString("title")
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "export: create file")
		}
		defer f.Close() //nolint:errcheck

		q := export.Quote{
			Title:     title,
			Target:    env.Roster.Target(),
			Generated: time.Now().In(env.Loc),
			Roster:    env.Roster.Snapshot(),
		}
		if err := export.WriteRoster(f, q); err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "export: close file")
		}
		fmt.Printf("Wrote %d artists to %s\n", len(q.Roster), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "roster.xlsx", "output file")
	exportCmd.Flags().String("title", "", "sheet title")
	rootCmd.AddCommand(exportCmd)
}
