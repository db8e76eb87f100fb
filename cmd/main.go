package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"librarydesk/internal/config"
	"librarydesk/internal/handlers"
	"librarydesk/internal/metrics"
	"librarydesk/internal/services"
	"librarydesk/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:          "librarydesk",
		Short:        "Library circulation desk: books, members, loans and fines",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file to load before reading the environment")

	root.AddCommand(newServeCmd(&envFile), newOverdueCmd(&envFile))
	return root
}

// connect loads config and opens the database.
func connect(ctx context.Context, envFile string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Validate() {
		log.Printf("[WARN] config: database settings incomplete, using defaults")
	}
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func libraryOptions(cfg *config.Config) services.Options {
	return services.Options{
		QueryTimeout:          cfg.QueryTimeout,
		LoanPeriodDays:        cfg.LoanPeriodDays,
		FinePerDay:            cfg.FinePerDay,
		SearchCaseInsensitive: cfg.SearchCaseInsensitive,
	}
}

// ─── serve ────────────────────────────────────────────────────────────────────

func newServeCmd(envFile *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, db, err := connect(ctx, *envFile)
			if err != nil {
				return err
			}
			defer store.Close(db)

			if addr != "" {
				cfg.ServerAddr = addr
			}
			return serve(ctx, cfg, db)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector()
	reg.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := libraryOptions(cfg)
	opts.Metrics = collector
	lib := services.NewLibrary(db, opts)

	router := gin.Default()
	handlers.RegisterRoutes(router, lib, handlers.Options{
		Ready:   func(ctx context.Context) error { return store.Ping(ctx, db) },
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Printf("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ─── overdue ──────────────────────────────────────────────────────────────────

func newOverdueCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Print the overdue report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, db, err := connect(ctx, *envFile)
			if err != nil {
				return err
			}
			defer store.Close(db)

			rows, err := services.NewLibrary(db, libraryOptions(cfg)).Transactions.Overdue(ctx)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No overdue books.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TRANSACTION\tBOOK\tMEMBER\tDUE\tDAYS OVERDUE\tFINE SO FAR")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.BookTitle, r.MemberName, r.DueDate.Format("2006-01-02"),
					r.DaysOverdue, r.DaysOverdue*cfg.FinePerDay)
			}
			return w.Flush()
		},
	}
}
