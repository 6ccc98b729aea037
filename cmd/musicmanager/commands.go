package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"musicmanager/internal/autotag"
	"musicmanager/internal/gateway"
	"musicmanager/internal/library"
	"musicmanager/internal/progress"
	"musicmanager/internal/resource"
	"musicmanager/internal/web"
	"musicmanager/pkg/utils"
)

var (
	organize    bool
	resourceArg string
	jsonOutput  bool
	scanOnStart bool
	threshold   float64
	withCovers  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the library and data directories and the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, dir := range []string{cfg.MusicLibrary, cfg.DataDir, cfg.CacheDir()} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
		db, err := openLibrary()
		if err != nil {
			return err
		}
		defer db.Close()

		log.Info("Initialized database at %s", cfg.DatabasePath())
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Copy an audio file or a folder of audio files into the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openLibrary()
		if err != nil {
			return err
		}
		defer db.Close()

		imp := library.NewImporter(library.NewStore(db), cfg.MusicLibrary, cfg.CacheDir(), log)
		imp.Organize = organize

		if !cfg.Verbose {
			bar := progress.New(os.Stdout, "import", 0)
			imp.OnProgress = bar.Set
			defer bar.Finish()
		}

		res, err := imp.Import(ctx, args[0])
		if err != nil {
			return err
		}
		log.Info("=== Import completed: %d imported, %d skipped, %d failed ===", res.Imported, res.Skipped, res.Failed)
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rebuild the library index from the files in the music library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openLibrary()
		if err != nil {
			return err
		}
		defer db.Close()

		var onProgress func(done, total int)
		if !cfg.Verbose {
			bar := progress.New(os.Stdout, "scan", 0)
			onProgress = bar.Set
			defer bar.Finish()
		}

		ix := library.NewIndexer(library.NewStore(db), cfg.MusicLibrary, log)
		if _, err := ix.Scan(ctx, onProgress); err != nil {
			return err
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <title>",
	Short: "Search a music platform for track metadata",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := newGateway()
		if err != nil {
			return err
		}

		results := gw.FetchID3ByTitle(cmd.Context(), strings.Join(args, " "))
		if jsonOutput {
			return printJSON(results)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tARTIST\tALBUM\tSIZE")
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.SourceID, r.Title, r.Artist, r.Album, r.SizeLabel)
		}
		return tw.Flush()
	},
}

var lyricCmd = &cobra.Command{
	Use:   "lyric <song_id>",
	Short: "Fetch the lyric of a song by its platform id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := newGateway()
		if err != nil {
			return err
		}

		lyric := gw.FetchLyric(cmd.Context(), args[0])
		if jsonOutput {
			return printJSON(map[string]string{"song_id": args[0], "lyric": lyric})
		}
		if lyric == "" {
			log.Warn("No lyric found for %s", args[0])
			return nil
		}
		fmt.Print(lyric)
		if !strings.HasSuffix(lyric, "\n") {
			fmt.Println()
		}
		return nil
	},
}

var autotagCmd = &cobra.Command{
	Use:   "autotag <path>",
	Short: "Fill in the tags of an audio file or folder from a music platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw, err := newGateway()
		if err != nil {
			return err
		}

		files := []string{args[0]}
		info, err := os.Stat(args[0])
		if err != nil {
			return fmt.Errorf("path does not exist: %s", args[0])
		}
		if info.IsDir() {
			if files, err = utils.FindAudioFiles(args[0]); err != nil {
				return err
			}
		}

		resolver := autotag.NewResolver(gw, log, threshold)
		resolver.Covers = withCovers
		if !cfg.Verbose && !jsonOutput {
			bar := progress.New(os.Stdout, "autotag", len(files))
			resolver.OnFile = bar.Increment
			defer bar.Finish()
		}

		res, err := resolver.Resolve(ctx, files)
		if jsonOutput {
			if perr := printJSON(res); perr != nil {
				return perr
			}
		}
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tag editor web server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openLibrary()
		if err != nil {
			return err
		}
		defer db.Close()

		store := library.NewStore(db)
		ix := library.NewIndexer(store, cfg.MusicLibrary, log)
		imp := library.NewImporter(store, cfg.MusicLibrary, cfg.CacheDir(), log)

		g, gctx := errgroup.WithContext(ctx)

		jobMgr := web.NewJobManager(cfg.JobRetention)
		jobMgr.StartCleanup(gctx)
		server := web.NewServer(gctx, jobMgr, cfg, log, web.WithLibrary(store, ix, imp))

		g.Go(func() error {
			return server.Start(gctx)
		})

		if scanOnStart {
			g.Go(func() error {
				// A failed startup scan leaves the server running.
				if _, err := ix.Scan(gctx, nil); err != nil && gctx.Err() == nil {
					log.Error("Startup scan failed: %v", err)
				}
				return nil
			})
		}

		err = g.Wait()
		log.Info("Server stopped")
		return err
	},
}

func init() {
	importCmd.Flags().BoolVar(&organize, "organize", false, "place files under Artist/Album in the library")

	autotagCmd.Flags().Float64Var(&threshold, "threshold", 0.7, "minimum match confidence (0-1) before tags are rewritten")
	autotagCmd.Flags().BoolVar(&withCovers, "covers", false, "download and embed the matched cover art")

	for _, c := range []*cobra.Command{searchCmd, lyricCmd, autotagCmd} {
		c.Flags().StringVarP(&resourceArg, "resource", "r", string(resource.QMusic),
			"platform to query: "+providerList())
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	}

	flags := serveCmd.Flags()
	flags.String("server-host", "", "HTTP listen host")
	flags.Int("server-port", 0, "HTTP listen port")
	flags.String("static-dir", "", "directory with the frontend files")
	flags.Duration("job-retention", 0, "how long finished jobs stay listed")
	flags.BoolVar(&scanOnStart, "scan", false, "index the library when the server starts")
	if err := v.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

// openLibrary opens the database and makes sure the schema exists.
func openLibrary() (*sql.DB, error) {
	db, err := library.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	if err := library.Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newGateway() (*gateway.Gateway, error) {
	p, err := resource.ParseProvider(resourceArg)
	if err != nil {
		return nil, fmt.Errorf("%w (choose one of %s)", err, providerList())
	}
	return gateway.New(p, log)
}

func providerList() string {
	names := make([]string, len(resource.Providers))
	for i, p := range resource.Providers {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func printJSON(data any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}
