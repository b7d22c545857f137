package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcandrew/avsync/internal/labels"
	"github.com/jmcandrew/avsync/internal/ui"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage category:value labels on events",
	Long: `Labels are validated category:value pairs (e.g. weather:icing,
phase_of_flight:takeoff) attached to events. They live in their own
tables and are never touched by seed or update.

Run 'avsync categories' to see the full taxonomy.`,
}

var labelAddCmd = &cobra.Command{
	Use:   "add EV_ID CATEGORY VALUE [VALUE...]",
	Short: "Add one or more label values to an event",
	Args:  cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		evID, category := args[0], args[1]
		failed := false
		for _, value := range args[2:] {
			added, err := ls.AddLabel(cmd.Context(), evID, category, value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
				failed = true
				continue
			}
			status := "added"
			if !added {
				status = "already exists"
			}
			fmt.Printf("   %s  %s:%s  (%s)\n", evID, strings.ToLower(category), strings.ToLower(value), status)
		}
		if failed {
			os.Exit(1)
		}
	},
}

var labelRmCmd = &cobra.Command{
	Use:   "rm EV_ID CATEGORY [VALUE]",
	Short: "Remove a label value, or a whole category, from an event",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		evID, category := args[0], args[1]
		value := ""
		if len(args) == 3 {
			value = args[2]
		}

		n, err := ls.RemoveLabel(cmd.Context(), evID, category, value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		if value != "" {
			status := "removed"
			if n == 0 {
				status = "not found"
			}
			fmt.Printf("   %s  -%s:%s  (%s)\n", evID, category, value, status)
		} else {
			fmt.Printf("   %s  -%s:*  (%d removed)\n", evID, category, n)
		}
	},
}

var labelLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all labels in use with counts",
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		usage, err := ls.ListLabels(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		if len(usage) == 0 {
			fmt.Println("   No labels applied yet.")
			return
		}

		fmt.Printf("   %-22s %-28s %s\n", "Category", "Value", "Count")
		for _, u := range usage {
			fmt.Printf("   %-22s %-28s %d\n", u.Category, u.Value, u.Count)
		}

		if cov, err := ls.Coverage(cmd.Context()); err == nil && len(cov) > 0 {
			fmt.Printf("\n   %s\n", ui.RenderDim("events covered per category:"))
			for _, cat := range labels.Categories() {
				if n, ok := cov[cat]; ok {
					fmt.Printf("   %-22s %d\n", cat, n)
				}
			}
		}
	},
}

var labelFindCmd = &cobra.Command{
	Use:   "find CATEGORY [VALUE]",
	Short: "Find events carrying a label",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		category := args[0]
		value := ""
		if len(args) == 2 {
			value = args[1]
		}

		ids, err := ls.FindEvents(cmd.Context(), category, value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}

		labelStr := category
		if value != "" {
			labelStr += ":" + value
		}
		if len(ids) == 0 {
			fmt.Printf("   No events found with %s\n", labelStr)
			return
		}

		fmt.Printf("   %d event(s) with %s:\n\n", len(ids), labelStr)
		const maxShown = 50
		for i, id := range ids {
			if i == maxShown {
				fmt.Printf("\n   ... and %d more\n", len(ids)-maxShown)
				break
			}
			if evt, err := ls.ShowEvent(cmd.Context(), id); err == nil && evt != nil {
				printEventSummary(evt.EventSummary)
			}
		}
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Show the label taxonomy",
	Run: func(cmd *cobra.Command, args []string) {
		for _, cat := range labels.Categories() {
			vals, _ := labels.Values(cat)
			fmt.Printf("   %s\n      %s\n", ui.RenderHeader(cat), strings.Join(vals, ", "))
		}
	},
}

var countCmd = &cobra.Command{
	Use:   "count CATEGORY[:VALUE] [CATEGORY[:VALUE]...]",
	Short: "Count events matching all of the given label filters",
	Long: `Count events that carry every one of the given labels, e.g.

  avsync count flight_rules:imc failure_system:engine

answers "how many accidents in IMC involved an engine failure".`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		var filters []labels.Filter
		for _, arg := range args {
			category, value, _ := strings.Cut(arg, ":")
			filters = append(filters, labels.Filter{Category: category, Value: value})
		}

		n, err := ls.CountEvents(cmd.Context(), filters)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		fmt.Printf("   %d event(s) match %s\n", n, strings.Join(args, " AND "))
	},
}

func init() {
	labelCmd.AddCommand(labelAddCmd, labelRmCmd, labelLsCmd, labelFindCmd)
	rootCmd.AddCommand(labelCmd, categoriesCmd, countCmd)
}
