package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/config"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/observability"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/service"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  *http.Server
	Cleanup *service.CleanupJob
	Runtime *observability.Runtime
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	cleanup *service.CleanupJob,
	runtime *observability.Runtime,
) *App {
	return &App{
		Config:  cfg,
		Logger:  logger,
		Server:  server,
		Cleanup: cleanup,
		Runtime: runtime,
	}
}

// Start launches the background jobs. The HTTP listener is started by the
// caller so it owns the fatal-error path.
func (a *App) Start() error {
	return a.Cleanup.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Cleanup.Stop()
	err := a.Server.Shutdown(ctx)
	if rerr := a.Runtime.Shutdown(ctx); rerr != nil && err == nil {
		err = rerr
	}
	return err
}
