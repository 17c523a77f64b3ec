// Package main provides the fluentlens CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/richinex/fluentlens/cli"
	"github.com/richinex/fluentlens/config"
	"github.com/richinex/fluentlens/model"
)

var (
	// Global flags
	configPath string
	dbPath     string
	bridgeURL  string
	verbose    bool

	settings config.Settings
	logger   *zap.Logger
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "fluentlens",
		Short: "Simplify and explain English text at your vocabulary level",
		Long: `FluentLens rewrites hard English in simpler words and breaks sentences down
into subject, predicate and object, explaining only the words you do not know yet.

Words you mark as known are never explained again. Requests go to the LLM
provider you configure with "fluentlens provider set".`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default fluentlens.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides storage.path)")
	rootCmd.PersistentFlags().StringVar(&bridgeURL, "bridge", "", "Send requests to a running bridge at this URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(simplifyCmd())
	rootCmd.AddCommand(grammarCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(vocabCmd())
	rootCmd.AddCommand(providerCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	s, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		s.Storage.Path = dbPath
	}
	if bridgeURL != "" {
		s.Server.URL = bridgeURL
	}
	if verbose {
		s.Log.Level = "debug"
	}
	settings = s

	logger, err = settings.Log.Logger()
	return err
}

// withApp opens the app for one command and closes it afterwards.
func withApp(fn func(ctx context.Context, app *cli.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := cli.Open(settings, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				logger.Warn("failed to close app", zap.Error(err))
			}
		}()
		return fn(cmd.Context(), app)
	}
}

// readText joins args, or reads stdin when there are none or the only
// arg is "-".
func readText(args []string, in io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func pageFlags(cmd *cobra.Command, page *model.PageContext) {
	cmd.Flags().StringVar(&page.PageURL, "url", "", "URL of the page the text comes from")
	cmd.Flags().StringVar(&page.PageTitle, "title", "", "Title of the page")
	cmd.Flags().StringVar(&page.PageDescription, "description", "", "Description of the page")
}

func simplifyCmd() *cobra.Command {
	var opts cli.SimplifyOptions
	var temperature float32
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "simplify [text...]",
		Short: "Rewrite text in simpler English",
		Long: `Rewrite text in simpler English, streaming the result as it arrives.

Text is read from the arguments, or from stdin when none are given.
With --grammar a sentence analysis is printed after the simplified text.`,
		RunE: func(c *cobra.Command, args []string) error {
			text, err := readText(args, c.InOrStdin())
			if err != nil {
				return err
			}
			if c.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}
			if c.Flags().Changed("max-tokens") {
				opts.MaxTokens = &maxTokens
			}
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.Simplify(ctx, app, text, opts, c.OutOrStdout())
			})(c, args)
		},
	}

	cmd.Flags().BoolVar(&opts.NoStream, "no-stream", false, "Wait for the full reply instead of streaming")
	cmd.Flags().BoolVarP(&opts.WithGrammar, "grammar", "g", false, "Also analyze sentence structure")
	cmd.Flags().Float32Var(&temperature, "temperature", 0, "Sampling temperature for this request")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Completion limit for this request")
	pageFlags(cmd, &opts.Page)

	return cmd
}

func grammarCmd() *cobra.Command {
	var page model.PageContext

	cmd := &cobra.Command{
		Use:   "grammar [text...]",
		Short: "Mark sentence structure, translate and explain new words",
		RunE: func(c *cobra.Command, args []string) error {
			text, err := readText(args, c.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.Grammar(ctx, app, text, page, c.OutOrStdout())
			})(c, args)
		},
	}
	pageFlags(cmd, &page)

	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP bridge so other processes can reach the LLM worker",
		RunE: withApp(func(ctx context.Context, app *cli.App) error {
			return cli.Serve(ctx, app, addr)
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func vocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Manage the words you know",
	}

	mark := func(use, status, short string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <word>...",
			Short: short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return withApp(func(ctx context.Context, app *cli.App) error {
					return cli.MarkWords(ctx, app, status, args, c.OutOrStdout())
				})(c, args)
			},
		}
	}
	cmd.AddCommand(mark("know", "known", "Mark words as known"))
	cmd.AddCommand(mark("learn", "unknown", "Mark words as unknown"))
	cmd.AddCommand(mark("ignore", "ignored", "Never explain these words"))

	cmd.AddCommand(&cobra.Command{
		Use:   "status <word>...",
		Short: "Show the status of words",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.WordStatus(ctx, app, args, c.OutOrStdout())
			})(c, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <known|unknown|ignored>",
		Short: "List words with a status",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ListWords(ctx, app, args[0], c.OutOrStdout())
			})(c, args)
		},
	})

	var searchLimit int
	search := &cobra.Command{
		Use:   "search <prefix>",
		Short: "Find marked words by prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.SearchWords(ctx, app, args[0], searchLimit, c.OutOrStdout())
			})(c, args)
		},
	}
	search.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum matches (0 for all)")
	cmd.AddCommand(search)

	cmd.AddCommand(&cobra.Command{
		Use:   "level [level]",
		Short: "Show or set your vocabulary level (500, 1000, 2000, 3000, 5000, 8000)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			level := ""
			if len(args) == 1 {
				level = args[0]
			}
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.SetLevel(ctx, app, level, c.OutOrStdout())
			})(c, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show vocabulary counts",
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.Stats(ctx, app, c.OutOrStdout())
			})(c, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every marked word and reset the level",
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ClearVocabulary(ctx, app, c.OutOrStdout())
			})(c, args)
		},
	})

	var exportFormat string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the vocabulary to stdout",
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ExportVocabulary(ctx, app, exportFormat, c.OutOrStdout())
			})(c, args)
		},
	}
	export.Flags().StringVarP(&exportFormat, "format", "f", "json", "json or yaml")
	cmd.AddCommand(export)

	var importFormat string
	imp := &cobra.Command{
		Use:   "import [file]",
		Short: "Replace the vocabulary with a file (or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			in := c.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ImportVocabulary(ctx, app, importFormat, in, c.OutOrStdout())
			})(c, args)
		},
	}
	imp.Flags().StringVarP(&importFormat, "format", "f", "json", "json or yaml")
	cmd.AddCommand(imp)

	return cmd
}

func providerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage LLM provider credentials",
	}

	var in cli.ProviderInput
	var temperature float32
	set := &cobra.Command{
		Use:   "set <provider>",
		Short: "Save credentials for a provider",
		Long: `Save credentials for a provider. Missing values are read from
<PROVIDER>_API_KEY, <PROVIDER>_MODEL and <PROVIDER>_BASE_URL, then the
provider's default model.

Providers: ` + strings.Join(config.SupportedProviders(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			in.Provider = args[0]
			if c.Flags().Changed("temperature") {
				in.Temperature = &temperature
			}
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.SetProvider(ctx, app, in, c.OutOrStdout())
			})(c, args)
		},
	}
	set.Flags().StringVar(&in.APIKey, "api-key", "", "API key")
	set.Flags().StringVar(&in.Model, "model", "", "Model name")
	set.Flags().StringVar(&in.APIURL, "api-url", "", "Endpoint (required for custom)")
	set.Flags().IntVar(&in.MaxTokens, "max-tokens", 0, "Default completion limit")
	set.Flags().Float32Var(&temperature, "temperature", 0, "Default temperature")
	set.Flags().BoolVar(&in.Use, "use", false, "Make this the current provider")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "use <provider>",
		Short: "Switch the current provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.UseProvider(ctx, app, args[0], c.OutOrStdout())
			})(c, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [provider]",
		Short: "Show saved credentials (key masked)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ShowProvider(ctx, app, name, c.OutOrStdout())
			})(c, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved providers",
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ListProviders(ctx, app, c.OutOrStdout())
			})(c, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <provider>",
		Short: "Delete saved credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.RemoveProvider(ctx, app, args[0], c.OutOrStdout())
			})(c, args)
		},
	})

	return cmd
}
