package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/autopo-replenish/internal/api"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/repository/postgres"
	"github.com/andresuchdata/autopo-replenish/internal/report"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/pkg/logger"
)

type cfgKey struct{}

func loadConfig(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Setup(cfg.App.LogLevel, cfg.App.LogFile); err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, cfgKey{}, cfg)
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.Context.Value(cfgKey{}).(*config.Config)
}

func workersFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "workers",
		Usage: "number of SKUs processed concurrently (0 uses REPLENISH_WORKERS)",
	}
}

func workers(c *cli.Context, cfg *config.Config) int {
	if n := c.Int("workers"); n > 0 {
		return n
	}
	return cfg.Replenish.Workers
}

func main() {
	app := &cli.App{
		Name:   "replenish",
		Usage:  "Forecast demand per SKU and raise purchase orders when stock falls below target",
		Before: loadConfig,
		After: func(c *cli.Context) error {
			return logger.Close()
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Process one sales batch and print the summary",
				ArgsUsage: "<input: path | s3://key | drive://fileID>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input batch (overrides the positional argument)"},
					&cli.IntFlag{Name: "horizon", Usage: "forecast horizon in days (0 uses REPLENISH_HORIZON_DAYS)"},
					&cli.BoolFlag{Name: "call-api", Usage: "submit purchase orders (default REPLENISH_CALL_API)"},
					&cli.BoolFlag{Name: "refresh-forecasts", Usage: "drop cached forecasts before processing"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write the summary CSV to this path (relative paths go under APP_OUTPUT_DIR)"},
					&cli.StringFlag{Name: "upload-key", Usage: "upload the summary CSV to object storage under this key"},
					workersFlag(),
				},
				Action: runCommand,
			},
			{
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Flags:  []cli.Flag{workersFlag()},
				Action: serveCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Create the run audit tables",
				Action: migrateCommand,
			},
			{
				Name:  "cache",
				Usage: "Manage the forecast cache",
				Subcommands: []*cli.Command{
					{
						Name:   "flush",
						Usage:  "Drop every cached forecast",
						Action: cacheFlushCommand,
					},
				},
			},
			{
				Name:  "sources",
				Usage: "List candidate input batches in object storage or Google Drive",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prefix", Usage: "object storage key prefix"},
					&cli.StringFlag{Name: "drive-folder", Usage: "Drive folder path, e.g. sales/daily"},
				},
				Action: sourcesCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("replenish failed")
		os.Exit(1)
	}
}

func runCommand(c *cli.Context) error {
	cfg := configFrom(c)

	input := c.String("input")
	if input == "" {
		input = c.Args().First()
	}
	if input == "" {
		return cli.Exit("an input batch is required", 2)
	}

	submit := cfg.Replenish.CallAPI
	if c.IsSet("call-api") {
		submit = c.Bool("call-api")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, workers(c, cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.service.Run(ctx, service.RunRequest{
		Source:           input,
		HorizonDays:      c.Int("horizon"),
		SubmitOrders:     submit,
		RefreshForecasts: c.Bool("refresh-forecasts"),
		OutputPath:       c.String("output"),
		UploadKey:        c.String("upload-key"),
	})
	if rep != nil {
		if tableErr := report.WriteTable(os.Stdout, &rep.Summary); tableErr != nil {
			return tableErr
		}
		fmt.Fprintln(os.Stdout, report.Describe(rep))
	}
	return err
}

func serveCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(c.Context, cfg, workers(c, cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	router := api.NewRouter(&api.Services{Replenish: a.service}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exiting")
	return nil
}

func migrateCommand(c *cli.Context) error {
	cfg := configFrom(c)
	db, err := postgres.NewDB(c.Context, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(c.Context)
}

func cacheFlushCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if !cfg.Cache.Enabled {
		return cli.Exit("forecast cache is disabled (CACHE_ENABLED=false)", 2)
	}
	a, err := newApp(c.Context, cfg, 1)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.service.RefreshForecasts(c.Context)
}

func sourcesCommand(c *cli.Context) error {
	cfg := configFrom(c)
	a, err := newApp(c.Context, cfg, 1)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.objects == nil && a.drive == nil {
		return cli.Exit("neither object storage nor Google Drive is configured", 2)
	}

	if a.objects != nil {
		objects, err := a.objects.ListObjects(c.Context, c.String("prefix"))
		if err != nil {
			return err
		}
		for _, o := range objects {
			fmt.Fprintf(os.Stdout, "s3://%s\t%d\n", o.Key, o.Size)
		}
	}

	if a.drive != nil {
		folderID, err := a.drive.FindFolderByPath(c.Context, c.String("drive-folder"))
		if err != nil {
			return err
		}
		files, err := a.drive.ListFiles(c.Context, folderID)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(os.Stdout, "drive://%s\t%s\t%s\n", f.ID, f.Name, f.MimeType)
		}
	}
	return nil
}
