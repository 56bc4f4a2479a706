// Package main provides the entry point for the skim CLI application.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/skim-reader/skim/rsvp"
	"github.com/skim-reader/skim/rsvp/chunker"
	"github.com/skim-reader/skim/settings"
	"github.com/skim-reader/skim/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	historyFile string
	wpm         float64
	chunkSize   int
	fixed       bool
	noWarmup    bool
	loop        bool
	watch       bool
	plain       bool
	width       uint

	rootCmd = &cobra.Command{
		Use:   "skim [SOURCE]",
		Short: "Speed-read text on the CLI, one chunk at a time!",
		Long: paragraph(
			fmt.Sprintf("\nSpeed-read markdown or plain text on the CLI, %s.", keyword("one chunk at a time")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// source provides a readable text source.
type source struct {
	reader io.ReadCloser
	URL    string
}

// sourceFromArg parses an argument and creates a readable source for it.
func sourceFromArg(arg string) (*source, error) {
	// from stdin
	if arg == "-" {
		return &source{reader: os.Stdin}, nil
	}

	// HTTP(S) URLs:
	if u, err := url.ParseRequestURI(arg); err == nil && strings.Contains(arg, "://") {
		if u.Scheme != "" {
			if u.Scheme != "http" && u.Scheme != "https" {
				return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
			}
			// consumer of the source is responsible for closing the ReadCloser.
			resp, err := http.Get(u.String()) //nolint: noctx,bodyclose
			if err != nil {
				return nil, fmt.Errorf("unable to get url: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
			}
			return &source{resp.Body, u.String()}, nil
		}
	}

	if st, err := os.Stat(arg); err == nil && st.IsDir() {
		return nil, fmt.Errorf("%s is a directory; point skim at a file", arg)
	}

	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	u, err := filepath.Abs(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{r, u}, nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	width = viper.GetUint("width")

	// --no-warmup inverts a config key, so it cannot be flag-bound
	if cmd.Flags().Changed("no-warmup") {
		viper.Set("warmup.enabled", !noWarmup)
	}

	if cmd.Flags().Changed("rate") && (wpm < rsvp.MinWPM || wpm > rsvp.MaxWPM) {
		return fmt.Errorf("rate must be between %.0f and %.0f wpm, got %.0f",
			rsvp.MinWPM, rsvp.MaxWPM, wpm)
	}
	if cmd.Flags().Changed("chunk") && (chunkSize < chunker.MinChunkSize || chunkSize > chunker.MaxChunkSize) {
		return fmt.Errorf("chunk size must be between %d and %d, got %d",
			chunker.MinChunkSize, chunker.MaxChunkSize, chunkSize)
	}

	// Detect terminal width
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !cmd.Flags().Changed("width") {
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(_ *cobra.Command, args []string) error {
	// if stdin is a pipe then use stdin for input. note that you can also
	// explicitly use a - to read from stdin.
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes {
		src := &source{reader: os.Stdin}
		defer src.reader.Close() //nolint:errcheck
		return executeSource(src)
	}

	if len(args) == 0 {
		return errors.New("missing source: pass a file, a URL, or - for stdin")
	}
	return executeArg(args[0])
}

func executeArg(arg string) error {
	src, err := sourceFromArg(arg)
	if err != nil {
		return err
	}
	defer src.reader.Close() //nolint:errcheck
	return executeSource(src)
}

func executeSource(src *source) error {
	b, err := io.ReadAll(src.reader)
	if err != nil {
		return fmt.Errorf("unable to read from reader: %w", err)
	}

	text := chunker.StripFrontmatter(string(b))

	// Without a terminal there is nothing to pace against; emit the chunks
	// instead so skim stays usable in pipelines.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return executeCLI(text, os.Stdout)
	}

	path := ""
	if !isURL(src.URL) {
		path = src.URL
	}
	return runTUI(path, noteFromSource(src), text)
}

func executeCLI(text string, w io.Writer) error {
	st := settings.New(viper.GetViper())
	st.Load()

	c := chunker.New(chunker.Options{
		ChunkSize: st.Snapshot().ChunkSize,
		Markdown:  !plain,
	})
	units := c.Chunk(text)
	if len(units) == 0 {
		return errors.New("nothing to read")
	}
	for _, u := range units {
		if _, err := fmt.Fprintln(w, u.RenderForm); err != nil {
			return fmt.Errorf("unable to write to writer: %w", err)
		}
	}
	return nil
}

func runTUI(path, note, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to read")
	}

	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.Path = path
	cfg.Note = note
	cfg.MaxWidth = width
	cfg.Watch = watch && path != ""
	cfg.Plain = plain
	cfg.ShowProgressBar = viper.GetBool("progress_bar")

	st := settings.New(viper.GetViper())
	st.Load()

	var hist *settings.History
	if viper.GetBool("history") && path != "" {
		hist = settings.OpenHistory(historyFile)
	}

	// Run Bubble Tea program
	m, err := ui.NewProgram(cfg, st, hist, text).Run()
	if err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	if f, ok := m.(interface{ FatalErr() error }); ok {
		if err := f.FatalErr(); err != nil {
			return err
		}
	}

	// Keep rate and chunk adjustments for the next session.
	if err := st.Save(); err != nil {
		log.Error("could not save settings", "error", err)
	}
	if hist != nil {
		if err := hist.Save(); err != nil {
			log.Error("could not save reading history", "error", err)
		}
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func noteFromSource(src *source) string {
	switch {
	case src.URL == "":
		return "stdin"
	case isURL(src.URL):
		return src.URL
	default:
		return filepath.Base(src.URL)
	}
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
	rootCmd.Flags().Float64VarP(&wpm, "rate", "r", 0, "reading speed in words per minute")
	rootCmd.Flags().IntVarP(&chunkSize, "chunk", "c", 0, "words shown at a time")
	rootCmd.Flags().BoolVarP(&fixed, "fixed", "f", false, "ignore word length when timing chunks")
	rootCmd.Flags().BoolVar(&noWarmup, "no-warmup", false, "start at full speed without the warmup ramp")
	rootCmd.Flags().BoolVar(&loop, "loop", false, "restart from the top when the document completes")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "reload the document when the file changes")
	rootCmd.Flags().BoolVarP(&plain, "plain", "p", false, "skip markdown flattening")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "cap the reading line width (set to 0 for terminal width)")

	// Config bindings
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("chunk", rootCmd.Flags().Lookup("chunk"))
	_ = viper.BindPFlag("fixed_timing", rootCmd.Flags().Lookup("fixed"))
	_ = viper.BindPFlag("auto_restart", rootCmd.Flags().Lookup("loop"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))

	viper.SetDefault("width", 0)
	viper.SetDefault("progress_bar", true)
	viper.SetDefault("history", true)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "skim")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "skim")}, dirs...)
	}

	if c := os.Getenv("SKIM_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	historyFile = filepath.Join(dirs[0], "history.gob")

	viper.SetConfigName("skim")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("skim")
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
		configFile = filepath.Join(dirs[0], "skim.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
