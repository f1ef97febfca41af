package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dawnbot/dawn/internal/api/middleware"
	"github.com/dawnbot/dawn/internal/store"
	"github.com/dawnbot/dawn/internal/valuation"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Authenticate and run the valuation sync with the ops server",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newCLILogger(cfg)
	slogger := newServiceLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	account, err := newAccount(cfg, slogger)
	if err != nil {
		return err
	}
	defer account.Close()

	ident, err := account.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	logger.Info("authenticated", "user_id", ident.ID, "name", ident.Name)

	st, err := store.NewPostgresStore(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	manager := valuation.NewManager(st, account,
		valuation.WithManagerLogger(slogger),
		valuation.WithDetailsURL(cfg.Valuation.ItemDetailsURL),
		valuation.WithDetailsTTL(cfg.Valuation.DetailsTTL),
		valuation.WithCatalogUserID(cfg.Valuation.CatalogUserID),
	)

	scheduler, err := valuation.NewScheduler(manager,
		cfg.Valuation.NewItemScanDelay,
		cfg.Valuation.RefreshDelay,
		slogger,
	)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	scheduler.Start()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(slogger))
	e.Use(middleware.RequestLog(slogger))
	e.Use(middleware.Metrics())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		if err := st.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unready",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting ops server", "addr", addr)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	logger.Info("stopped")
	return nil
}
