package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcandrew/avsync/internal/extract"
	"github.com/jmcandrew/avsync/internal/fetch"
	"github.com/jmcandrew/avsync/internal/syncer"
	"github.com/jmcandrew/avsync/internal/ui"
)

var seedForce bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "One-time full load from the avall.zip snapshot",
	Long: `Download the full avall.zip snapshot and load every configured table
into a fresh mirror database.

Seeding refuses to touch an existing database. Use --force to discard
it and start over (applied-archive history is lost with it).`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if err := extract.CheckTools(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := syncer.PrepareSeedTarget(dbPath(), seedForce); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		db, reg := mustOpenStore(ctx)
		defer db.Close()

		client := fetch.NewClient(baseURL(), tempDir(), nil)
		orch := syncer.New(db, reg, client, extract.NewAdapter(nil), nil)

		fmt.Printf("%s Seeding mirror from %s\n", ui.RenderAccent("▶"), syncer.SeedArchive)

		res, err := orch.Seed(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Seed failed: %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}

		for _, tr := range res.Tables {
			fmt.Printf("   %-22s %10d rows\n", tr.Table, tr.Rows)
		}
		fmt.Printf("%s Seed complete: %d rows, %.1f MB at %s\n",
			ui.RenderPass("✓"), res.TotalRows, float64(db.FileSize())/(1<<20), db.Path())
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "overwrite an existing database")
	rootCmd.AddCommand(seedCmd)
}
