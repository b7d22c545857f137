package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcandrew/avsync/internal/store"
	"github.com/jmcandrew/avsync/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the database statistics report",
	Run: func(cmd *cobra.Command, args []string) {
		db, _ := mustOpenStore(cmd.Context())
		defer db.Close()

		printStats(cmd.Context(), db)
	},
}

func printStats(ctx context.Context, db *store.DB) {
	s, err := db.Summary(ctx)
	if err != nil {
		fmt.Printf("%s Stats unavailable: %v\n", ui.RenderWarn("⚠"), err)
		return
	}

	orNA := func(p *string) string {
		if p == nil {
			return "N/A"
		}
		return *p
	}

	fmt.Printf("\n%s\n", ui.RenderHeader("DATABASE"))
	fmt.Printf("   %-28s %s\n", "Path", db.Path())
	fmt.Printf("   %-28s %.1f MB\n", "Size", float64(db.FileSize())/(1<<20))
	fmt.Printf("   %-28s %d\n", "Total events", s.TotalEvents)
	fmt.Printf("   %-28s %d\n", "Total aircraft records", s.TotalAircraft)
	fmt.Printf("   %-28s %s\n", "Most recent event", orNA(s.MostRecentEvent))

	fmt.Printf("\n%s\n", ui.RenderHeader("RECENT ACTIVITY"))
	fmt.Printf("   %-28s %d\n", "Events (last 30 days)", s.EventsLast30Days)
	fmt.Printf("   %-28s %d\n", "Events (last 365 days)", s.EventsLast365Days)
	fmt.Printf("   %-28s %d\n", "Fatal events (last 365 days)", s.FatalLast365Days)

	fmt.Printf("\n%s\n", ui.RenderHeader("SYNC STATUS"))
	fmt.Printf("   %-28s %d\n", "Archives applied", s.ArchivesApplied)
	fmt.Printf("   %-28s %s\n", "Last archive", orNA(s.LastArchive))
	fmt.Printf("   %-28s %s\n\n", "Last applied at", orNA(s.LastArchiveApplied))
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
