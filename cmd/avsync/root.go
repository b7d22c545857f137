package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmcandrew/avsync/internal/labels"
	"github.com/jmcandrew/avsync/internal/policy"
	"github.com/jmcandrew/avsync/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "avsync",
	Short: "Local mirror of the NTSB aviation accident database",
	Long: `avsync maintains a local SQLite mirror of the NTSB aviation accident
database (avall.mdb and its weekly upDDMMM.zip incremental archives).

Typical workflow:
  avsync seed              One-time full load from avall.zip
  avsync update            Apply any new incremental archives
  avsync browse            Explore events in the mirror
  avsync label add ...     Attach category:value labels to events`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("db", "", "path to the SQLite mirror database")
	flags.String("base-url", "", "vendor base URL for archive downloads")
	flags.String("temp-dir", "", "directory for downloaded archives")

	_ = viper.BindPFlag("db", flags.Lookup("db"))
	_ = viper.BindPFlag("base_url", flags.Lookup("base-url"))
	_ = viper.BindPFlag("temp_dir", flags.Lookup("temp-dir"))
}

// initConfig wires viper: avsync.yaml in the working directory or
// ~/.config/avsync, AVSYNC_* environment overrides, and defaults.
func initConfig() {
	viper.SetConfigName("avsync")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home + "/.config/avsync")
	}

	viper.SetDefault("db", "data/avsync.db")
	viper.SetDefault("base_url", "https://data.ntsb.gov/avdata")
	viper.SetDefault("temp_dir", "temp")

	viper.SetEnvPrefix("AVSYNC")
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and flags cover it.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: could not read config: %v\n", err)
		}
	}
}

func dbPath() string   { return viper.GetString("db") }
func baseURL() string  { return viper.GetString("base_url") }
func tempDir() string  { return viper.GetString("temp_dir") }

// mustOpenStore opens the mirror database and initializes the schema,
// exiting on failure. Callers own Close.
func mustOpenStore(ctx context.Context) (*store.DB, *policy.Registry) {
	reg := policy.Aviation()

	db, err := store.Open(dbPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := db.InitSchema(ctx, reg); err != nil {
		_ = db.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return db, reg
}

// mustLabelStore opens the mirror for the read/annotate commands.
func mustLabelStore(ctx context.Context) (*labels.Store, *store.DB) {
	db, _ := mustOpenStore(ctx)
	return labels.NewStore(db), db
}
