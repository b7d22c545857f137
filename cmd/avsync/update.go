package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jmcandrew/avsync/internal/extract"
	"github.com/jmcandrew/avsync/internal/fetch"
	"github.com/jmcandrew/avsync/internal/syncer"
	"github.com/jmcandrew/avsync/internal/ui"
)

var (
	updateLogFile   string
	updateStats     bool
	updateNoCleanup bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Apply new incremental archives to the mirror",
	Long: `Check the vendor index for incremental archives (upDDMMM.zip), apply
any that are not yet in the sync ledger in publication order, and
report per-table row counts.

Archives already applied are never reprocessed. If an archive fails,
the run stops there; archives applied earlier in the run stay
committed and the next run resumes at the failed one.

Suitable for cron: with --log-file, sync logging goes to a rotated
file instead of stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if err := extract.CheckTools(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := syncer.RequireStore(dbPath()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var logger *log.Logger
		if updateLogFile != "" {
			logger = log.New(&lumberjack.Logger{
				Filename:   updateLogFile,
				MaxSize:    10, // MB
				MaxBackups: 5,
			}, "[sync] ", log.LstdFlags)
		}

		db, reg := mustOpenStore(ctx)
		defer db.Close()

		client := fetch.NewClient(baseURL(), tempDir(), logger)
		orch := syncer.New(db, reg, client, extract.NewAdapter(logger), logger)

		report, err := orch.Update(ctx)

		for _, res := range report.Applied {
			fmt.Printf("%s %s\n", ui.RenderAccent("▶"), res.Archive)
			for _, tr := range res.Tables {
				fmt.Printf("   %-22s %8d rows (%s)\n", tr.Table, tr.Rows, tr.Strategy)
			}
		}

		if !updateNoCleanup {
			if deleted, cerr := client.CleanTempDir(); cerr != nil {
				fmt.Fprintf(os.Stderr, "%s Temp cleanup failed: %v\n", ui.RenderWarn("⚠"), cerr)
			} else if deleted > 0 {
				fmt.Printf("%s Cleaned %d temp file(s)\n", ui.RenderDim("·"), deleted)
			}
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Update failed after %d of %d archive(s): %v\n",
				ui.RenderError("✗"), len(report.Applied), report.Pending, err)
			os.Exit(1)
		}

		if report.Pending == 0 {
			fmt.Printf("%s Mirror is up to date\n", ui.RenderPass("✓"))
		} else {
			total := 0
			for _, res := range report.Applied {
				total += res.TotalRows
			}
			fmt.Printf("%s Applied %d archive(s), %d rows\n", ui.RenderPass("✓"), len(report.Applied), total)
		}

		if updateStats {
			printStats(ctx, db)
		}
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateLogFile, "log-file", "", "write sync logs to this rotated file")
	updateCmd.Flags().BoolVar(&updateStats, "stats", false, "print the database statistics report after updating")
	updateCmd.Flags().BoolVar(&updateNoCleanup, "no-cleanup", false, "keep downloaded temp files")
	rootCmd.AddCommand(updateCmd)
}
