package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/jmcandrew/avsync/internal/labels"
	"github.com/jmcandrew/avsync/internal/ui"
)

var (
	browseSince     string
	browseUntil     string
	browseCategory  string
	browseValue     string
	browseUnlabeled bool
	browseLimit     int
	browseOffset    int
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse events, newest first",
	Long: `Browse the mirrored events with optional filters. Date flags
accept ISO dates or natural language:

  avsync browse --since "3 weeks ago"
  avsync browse --since 2024-01-01 --until 2024-06-30
  avsync browse --category weather --value icing
  avsync browse --unlabeled --limit 50`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := labels.BrowseOptions{
			Category:  browseCategory,
			Value:     browseValue,
			Unlabeled: browseUnlabeled,
			Limit:     browseLimit,
			Offset:    browseOffset,
		}

		var err error
		if opts.DateFrom, err = parseDateFlag(browseSince); err != nil {
			fmt.Fprintf(os.Stderr, "%s --since: %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		if opts.DateTo, err = parseDateFlag(browseUntil); err != nil {
			fmt.Fprintf(os.Stderr, "%s --until: %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}

		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		events, err := ls.Browse(cmd.Context(), opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		if len(events) == 0 {
			fmt.Println("   No events match.")
			return
		}
		for i := range events {
			printEventSummary(events[i])
		}
	},
}

var showCmd = &cobra.Command{
	Use:   "show EV_ID",
	Short: "Show one event in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		evt, err := ls.ShowEvent(cmd.Context(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		if evt == nil {
			fmt.Fprintf(os.Stderr, "%s event %s not found\n", ui.RenderWarn("!"), args[0])
			os.Exit(1)
		}
		printEventDetail(evt)
	},
}

// parseDateFlag accepts ISO YYYY-MM-DD directly and falls back to
// natural-language parsing ("3 weeks ago", "last monday").
func parseDateFlag(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02"), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date %q (try ISO YYYY-MM-DD)", s)
	}
	return r.Time.Format("2006-01-02"), nil
}

func printEventSummary(e labels.EventSummary) {
	aircraft := strings.TrimSpace(e.Make + " " + e.Model)
	if aircraft == "" {
		aircraft = "unknown aircraft"
	}
	place := strings.TrimSpace(strings.Trim(e.City+", "+e.State, ", "))
	line := fmt.Sprintf("   %s  %s  %-28s %s", ui.RenderAccent(e.EvID), e.Date, aircraft, place)
	if e.InjuryTotal > 0 {
		line += "  " + ui.RenderWarn(fmt.Sprintf("(%d injured)", e.InjuryTotal))
	}
	fmt.Println(line)
}

func printEventDetail(e *labels.EventDetail) {
	field := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	}

	fmt.Printf("\n%s\n\n", ui.RenderHeader("EVENT "+e.EvID))
	fmt.Printf("   %-14s %s\n", "Date", field(e.Date))
	fmt.Printf("   %-14s %s\n", "Location", field(strings.Trim(e.City+", "+e.State, ", ")))
	fmt.Printf("   %-14s %s\n", "Aircraft", field(e.Make+" "+e.Model))
	fmt.Printf("   %-14s %s\n", "Registration", field(e.RegisNo))
	fmt.Printf("   %-14s %d\n", "Injuries", e.InjuryTotal)

	if len(e.Labels) > 0 {
		fmt.Printf("\n%s\n", ui.RenderHeader("LABELS"))
		for _, cat := range labels.Categories() {
			if vals, ok := e.Labels[cat]; ok {
				fmt.Printf("   %s: %s\n", cat, strings.Join(vals, ", "))
			}
		}
	}
	if len(e.Tags) > 0 {
		fmt.Printf("\n%s\n   %s\n", ui.RenderHeader("TAGS"), strings.Join(e.Tags, ", "))
	}
	if e.ProbableCause != "" {
		cause := e.ProbableCause
		if len(cause) > 600 {
			cause = cause[:600] + "..."
		}
		fmt.Printf("\n%s\n   %s\n", ui.RenderHeader("PROBABLE CAUSE"), cause)
	}
	fmt.Println()
}

func init() {
	browseCmd.Flags().StringVar(&browseSince, "since", "", "only events on or after this date")
	browseCmd.Flags().StringVar(&browseUntil, "until", "", "only events on or before this date")
	browseCmd.Flags().StringVar(&browseCategory, "category", "", "only events labeled with this category")
	browseCmd.Flags().StringVar(&browseValue, "value", "", "restrict --category to one value")
	browseCmd.Flags().BoolVar(&browseUnlabeled, "unlabeled", false, "only events with no labels")
	browseCmd.Flags().IntVar(&browseLimit, "limit", 20, "maximum events to list")
	browseCmd.Flags().IntVar(&browseOffset, "offset", 0, "skip this many events")

	rootCmd.AddCommand(browseCmd, showCmd)
}
