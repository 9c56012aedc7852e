package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	optin "github.com/goliatone/go-optin"
	"github.com/goliatone/go-optin/activitymap"
	"github.com/goliatone/go-optin/config"
	"github.com/goliatone/go-optin/metrics"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	config *config.Config
	logger optin.Logger
	db     *bun.DB
	repo   optin.RepositoryManager
	optin  *optin.Manager
	srv    router.Server[*fiber.App]
}

func main() {
	configPath := flag.String("config", "optin.yaml", "path to the YAML configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: optin.DefaultLogger(),
	}

	if cfg.Debug {
		app.logger.Debug("configuration:\n%s", print.MaybePrettyJSON(cfg))
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	registry := prometheus.NewRegistry()

	if err := WithOptin(ctx, app, registry); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	go func() {
		app.logger.Info("metrics listening on %s", cfg.Server.MetricsAddr)
		if err := http.ListenAndServe(cfg.Server.MetricsAddr, metrics.Handler(registry)); err != nil {
			app.logger.Error("metrics server stopped: %v", err)
		}
	}()

	app.srv.Serve(cfg.Server.Addr)

	WaitExitSignal()

	if err := app.db.Close(); err != nil {
		app.logger.Warn("closing database: %v", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	sqldb, err := sql.Open(sqliteshim.ShimName, app.config.Database.DSN)
	if err != nil {
		return err
	}

	app.db = bun.NewDB(sqldb, sqlitedialect.New())
	app.repo = optin.NewRepositoryManager(app.db)
	app.repo.MustValidate()

	return app.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return optin.CreateSchema(ctx, tx)
	})
}

func WithOptin(_ context.Context, app *App, reg prometheus.Registerer) error {
	collector := metrics.NewCollector(reg)

	audit := activitymap.NewSink(func(_ context.Context, record activitymap.Normalized) error {
		app.logger.Info("activity %s actor=%s object=%s/%s", record.Verb, record.ActorID, record.ObjectType, record.ObjectID)
		return nil
	})

	app.optin = optin.NewManager(app.repo.Entries(),
		optin.WithConfig(app.config),
		optin.WithLogger(app.logger),
		optin.WithActivitySink(optin.MultiActivitySink{collector, audit}),
	)

	for _, agent := range app.config.Optin.Agents {
		app.optin.RegisterAgent(agent.Name, agent.AgentOptions()...)
	}

	optin.SetDefault(app.optin)

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.config.Debug,
			StrictRouting:     false,
		}))
	})

	controller := optin.RegisterOptinRoutes(srv.Router(),
		optin.WithControllerManager(app.optin),
		optin.WithControllerConfig(app.config),
		optin.WithControllerLogger(app.logger),
	)
	controller.Debug = app.config.Debug

	srv.Router().Post("/sessions", StartSession(app)).
		SetName("optin-session.start")

	app.srv = srv
	return nil
}

// StartSession creates a pending entry and returns its token. Delivering
// the confirmation link is left to the caller.
func StartSession(app *App) func(ctx router.Context) error {
	return func(ctx router.Context) error {
		msg := optin.StartSessionMessage{}
		if err := ctx.Bind(&msg); err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
		}

		var res *optin.StartSessionResponse
		msg.OnResponse = func(resp *optin.StartSessionResponse) {
			res = resp
		}

		if err := optin.NewStartSessionHandler(app.optin).WithLogger(app.logger).Execute(ctx.Context(), msg); err != nil {
			return optin.HTTPErrorHandler(ctx, err)
		}

		return ctx.JSON(http.StatusCreated, map[string]any{
			"entry_id": res.EntryID,
			"agent":    res.Entry.AgentName,
			"token":    res.Token,
		})
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
