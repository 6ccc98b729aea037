package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"musicmanager/internal/config"
	"musicmanager/internal/logger"
)

var (
	cfgFile       string
	initConfigArg bool

	cfg config.Config
	log = logger.Nop()
	v   = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "musicmanager",
	Short: "musicmanager - tag, import and index a local music library",
	Long: `musicmanager reads and edits audio tags, searches Migu, QQ Music and Kuwo
for metadata and lyrics, and keeps a SQLite index of your music library.

Config file locations (checked in order):
  ./musicmanager.yaml
  ~/.config/musicmanager/config.yaml
  ~/.musicmanager.yaml

Every setting can be overridden with a flag or a MUSICMANAGER_* environment
variable, e.g. MUSICMANAGER_DATA_DIR.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		if initConfigArg {
			return initConfigFile()
		}
		return cmd.Help()
	},
}

func main() {
	err := rootCmd.Execute()
	log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "path to config file")
	flags.BoolP("verbose", "v", false, "show detailed output")
	flags.String("music-library", "", "music library directory")
	flags.String("data-dir", "", "directory for the database and import cache")
	flags.String("log-file", "", "also write debug logs to this file")
	rootCmd.Flags().BoolVar(&initConfigArg, "init-config", false, "create a default config file and exit")

	if err := v.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(initCmd, importCmd, scanCmd, searchCmd, lyricCmd, autotagCmd, serveCmd)
}

// loadConfig resolves the configuration. Priority: flags > environment > config file > defaults.
func loadConfig(cmd *cobra.Command, args []string) error {
	if initConfigArg {
		// --config names the file to create.
		return nil
	}

	var err error
	cfg, err = config.LoadConfigFile(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyOverrides(v)

	log = logger.New(cfg.Verbose)
	if path := cfg.LogFile; path != "" {
		if err := log.SetFileLog(path); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
		}
	} else if !cfg.Verbose {
		logDir := config.GetDefaultLogPath()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		} else {
			path := filepath.Join(logDir, fmt.Sprintf("musicmanager_%s.log", time.Now().Format("2006-01-02_15-04-05")))
			if err := log.SetFileLog(path); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
			}
		}
	}

	path := cfgFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path != "" {
		log.Debug("Loaded configuration from: %s", path)
	}

	return cfg.Validate()
}

// initConfigFile creates a new config file with default values
func initConfigFile() error {
	path := cfgFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file already exists at: %s\n", path)
		fmt.Println("Delete it first if you want to recreate it.")
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	if err := config.SaveConfigFile(config.DefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	fmt.Printf("Created default config file at: %s\n", path)
	fmt.Println("\nYou can now edit this file to customize your settings.")
	fmt.Println("Available options:")
	fmt.Println("  music_library: directory holding your audio files")
	fmt.Println("  data_dir: database and import cache location")
	fmt.Println("  static_dir: frontend files served by 'musicmanager serve'")
	fmt.Println("  server.host / server.port: listen address")
	fmt.Println("  verbose: true/false (enable detailed logging)")
	return nil
}
