package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcandrew/avsync/internal/ui"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage free-form tags on events",
	Long: `Tags are uncontrolled strings, unlike labels they are not
validated against a taxonomy. Use them for ad-hoc bookmarks.`,
}

var tagAddCmd = &cobra.Command{
	Use:   "add EV_ID TAG [TAG...]",
	Short: "Tag an event",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		evID := args[0]
		for _, tag := range args[1:] {
			added, err := ls.AddTag(cmd.Context(), evID, tag)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
				os.Exit(1)
			}
			status := "tagged"
			if !added {
				status = "already tagged"
			}
			fmt.Printf("   %s  #%s  (%s)\n", evID, tag, status)
		}
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm EV_ID TAG",
	Short: "Remove a tag from an event",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		removed, err := ls.RemoveTag(cmd.Context(), args[0], args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		status := "removed"
		if !removed {
			status = "not found"
		}
		fmt.Printf("   %s  -#%s  (%s)\n", args[0], args[1], status)
	},
}

var tagLsCmd = &cobra.Command{
	Use:   "ls EV_ID",
	Short: "List an event's tags",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ls, db := mustLabelStore(cmd.Context())
		defer db.Close()

		tags, err := ls.Tags(cmd.Context(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		if len(tags) == 0 {
			fmt.Printf("   %s has no tags.\n", args[0])
			return
		}
		fmt.Printf("   %s: %s\n", args[0], strings.Join(tags, ", "))
	},
}

func init() {
	tagCmd.AddCommand(tagAddCmd, tagRmCmd, tagLsCmd)
	rootCmd.AddCommand(tagCmd)
}
