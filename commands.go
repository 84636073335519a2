package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github/itish2003/convrag/config"
	"github/itish2003/convrag/controller"
	"github/itish2003/convrag/models"
	"github/itish2003/convrag/services"
	"github/itish2003/convrag/tui"
)

type cli struct {
	configPath string
	logLevel   string
	cfg        *config.AppConfig
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:   "convrag",
		Short: "Ask questions about your documents, with follow-ups",
		Long: "convrag indexes documents into a vector index and answers questions about them " +
			"with a language model, rewriting follow-up questions using the conversation so far.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.LogLevel = c.logLevel
			}
			config.ConfigureLogging(cfg.LogLevel)
			if cmd.Name() == "init-config" {
				c.cfg = cfg
				return nil
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "convrag.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(
		c.serveCommand(),
		c.ingestCommand(),
		c.watchCommand(),
		c.askCommand(),
		c.searchCommand(),
		c.chatCommand(),
		c.initConfigCommand(),
	)
	return rootCmd
}

// withApp runs fn with a wired app and a context cancelled on SIGINT/SIGTERM.
func (c *cli) withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (c *cli) serveCommand() *cobra.Command {
	var port int
	var watchDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Start the HTTP API. With a documents directory, it is synced on startup, watched for changes and used for uploads.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == 0 {
				port = c.cfg.Server.Port
			}
			if watchDir == "" {
				watchDir = c.cfg.Watch.Dir
			}
			return c.withApp(func(ctx context.Context, a *app) error {
				return serve(ctx, a, port, watchDir)
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (default from config)")
	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "Documents directory to sync and watch")
	return cmd
}

func serve(ctx context.Context, a *app, port int, watchDir string) error {
	var files *services.FileActions
	if watchDir != "" {
		var err error
		files, err = services.NewFileActions(watchDir)
		if err != nil {
			return err
		}
		if err := a.documents.ScanAndIndexDirectory(ctx, files.DocsDir); err != nil {
			return err
		}
		go func() {
			if err := a.documents.WatchDirectory(ctx, files.DocsDir); err != nil {
				slog.Error("watcher stopped", "component", "watcher", "error", err)
			}
		}()
	}

	sessions := controller.NewSessionStore(time.Duration(a.cfg.Server.SessionTTLMins)*time.Minute, a.cfg.Server.MaxSessions)
	ragController := controller.NewRAGController(a.pipeline, a.documents, files, sessions, a.retryPolicy(), a.cfg.Retrieval.TopK)
	router := controller.NewRouter(ragController, a.cfg.Server.CORSOrigin)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", "http://localhost:"+strconv.Itoa(port), "health", "/health")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (c *cli) ingestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Index files or directories",
		Long:  "Index .txt, .md, .csv, .html and .pdf files. Directories are synced: changed files are re-indexed and deleted ones removed.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(ctx context.Context, a *app) error {
				for _, path := range args {
					info, err := os.Stat(path)
					if err != nil {
						return err
					}
					if info.IsDir() {
						if err := a.documents.ScanAndIndexDirectory(ctx, path); err != nil {
							return err
						}
						continue
					}
					res, err := a.documents.IngestFile(ctx, path)
					if err != nil {
						return fmt.Errorf("failed to ingest %s: %w", path, err)
					}
					if res.Unchanged {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: unchanged, %d chunks\n", path, res.Chunks)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks, %d indexed, %d failed\n", path, res.Chunks, res.Indexed, len(res.Failed))
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.summary(ctx))
				return nil
			})
		},
	}
}

func (c *cli) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Sync a directory and keep the index up to date until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(ctx context.Context, a *app) error {
				if err := a.documents.ScanAndIndexDirectory(ctx, args[0]); err != nil {
					return err
				}
				return a.documents.WatchDirectory(ctx, args[0])
			})
		},
	}
}

func (c *cli) askCommand() *cobra.Command {
	var turns []string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print its sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := parseTurns(turns)
			if err != nil {
				return err
			}
			return c.withApp(func(ctx context.Context, a *app) error {
				resp, err := services.QueryWithRetry(ctx, a.pipeline, args[0], history, a.retryPolicy())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.StandaloneQuery != args[0] {
					fmt.Fprintf(out, "(searched for: %s)\n", resp.StandaloneQuery)
				}
				fmt.Fprintln(out, resp.Answer)
				if cites := tui.Citations(resp.Sources); cites != "" {
					fmt.Fprintln(out, "\nSources:")
					fmt.Fprintln(out, cites)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&turns, "turn", nil, `Prior turn as "question=>answer", oldest first; repeatable`)
	return cmd
}

func (c *cli) searchCommand() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the chunks closest to a query with their scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if k == 0 {
				k = c.cfg.Retrieval.TopK
			}
			return c.withApp(func(ctx context.Context, a *app) error {
				results, err := a.pipeline.RetrieveSimilar(ctx, args[0], k)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintln(out, "No results.")
				}
				for i, r := range results {
					fmt.Fprintf(out, "--- %s\n%s\n\n", tui.Citations(results[i:i+1]), r.Chunk.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of results (default from config)")
	return cmd
}

func (c *cli) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(ctx context.Context, a *app) error {
				// Log lines on stderr would tear the alternate screen.
				config.SetLogLevel("ERROR")
				m := tui.New(ctx, a.pipeline, a.retryPolicy(), 2*seconds(a.cfg.LLM.TimeoutSecs)+seconds(a.cfg.Embedding.TimeoutSecs), a.summary(ctx))
				_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				if errors.Is(err, tea.ErrProgramKilled) {
					return nil
				}
				return err
			})
		},
	}
}

func (c *cli) initConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(c.configPath, c.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", c.configPath)
			return nil
		},
	}
}

// parseTurns reads "question=>answer" pairs.
func parseTurns(raw []string) (*models.ConversationHistory, error) {
	history := models.NewConversationHistory()
	for _, r := range raw {
		q, a, ok := strings.Cut(r, "=>")
		if !ok || q == "" || a == "" {
			return nil, fmt.Errorf("invalid --turn %q, want \"question=>answer\"", r)
		}
		history.Append(q, a)
	}
	return history, nil
}
