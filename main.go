// Package main provides the entry point for the samplebank CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/samplebank/internal/library"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	arenaSize  string
	clusterMag int
	watchMedia bool

	rootCmd = &cobra.Command{
		Use:              "samplebank",
		Short:            "Stream, inspect and play audio samples from a shared memory pool",
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

// expandPath resolves a leading ~ in user-supplied paths.
func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

func validateOptions(cmd *cobra.Command) error {
	debug = viper.GetBool("debug")
	watchMedia = viper.GetBool("watch")
	arenaSize = viper.GetString("arena_size")
	clusterMag = viper.GetInt("cluster_magnitude")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if _, err := humanize.ParseBytes(arenaSize); err != nil {
		return fmt.Errorf("invalid arena size %q: %w", arenaSize, err)
	}
	if clusterMag != 0 && (clusterMag < 9 || clusterMag > 20) {
		return fmt.Errorf("cluster magnitude must be between 9 and 20, got %d", clusterMag)
	}
	return nil
}

// newBank builds a bank from the resolved options. Every command that
// touches sample files goes through here.
func newBank() (*library.Bank, error) {
	size, err := humanize.ParseBytes(arenaSize)
	if err != nil {
		return nil, fmt.Errorf("invalid arena size %q: %w", arenaSize, err)
	}
	return library.NewBank(library.Options{
		ArenaSize:            int(size),
		ClusterSizeMagnitude: clusterMag,
		Watch:                watchMedia,
		Logger:               log.Default(),
	})
}

// sampleExtensions are the file types a bank knows how to open.
var sampleExtensions = []string{".wav", ".wav.zst"}

func isSampleFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range sampleExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&arenaSize, "arena-size", "64MB", "shared sample memory pool size")
	rootCmd.PersistentFlags().IntVar(&clusterMag, "cluster-magnitude", 0, "cluster size as a power of two (0 for the default)")
	rootCmd.PersistentFlags().BoolVar(&watchMedia, "watch", false, "mark samples unloadable when their files go away")
	_ = rootCmd.PersistentFlags().MarkHidden("cluster-magnitude")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("arena_size", rootCmd.PersistentFlags().Lookup("arena-size"))
	_ = viper.BindPFlag("cluster_magnitude", rootCmd.PersistentFlags().Lookup("cluster-magnitude"))
	_ = viper.BindPFlag("watch", rootCmd.PersistentFlags().Lookup("watch"))

	viper.SetDefault("arena_size", "64MB")
	viper.SetDefault("cluster_magnitude", 0)
	viper.SetDefault("watch", false)

	rootCmd.AddCommand(configCmd, manCmd, scanCmd, inspectCmd, playCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "samplebank")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "samplebank")}, dirs...)
	}

	if c := os.Getenv("SAMPLEBANK_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("samplebank")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("samplebank")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "samplebank.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
