package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/kksharma1618/mediaserver/config"
	"github.com/kksharma1618/mediaserver/dlna/dms"
	"github.com/kksharma1618/mediaserver/logging"
	"github.com/kksharma1618/mediaserver/metrics"
	"github.com/kksharma1618/mediaserver/playback"
	"github.com/kksharma1618/mediaserver/renderer"
	"github.com/kksharma1618/mediaserver/storage"
	"github.com/kksharma1618/mediaserver/store"
	"github.com/kksharma1618/mediaserver/transcode"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the media server",
	Long: `Start the media server.

The server provides:
- the device description at /rootDesc.xml
- ContentDirectory and ConnectionManager control and eventing under /upnp
- media, thumbnails, subtitles and HLS under /get
- Prometheus metrics, when enabled`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", ":1338", "address to listen on")
	serveCmd.Flags().String("name", "Media Server", "friendly name announced to renderers")
	serveCmd.Flags().StringSlice("root", nil, "media directory to serve (repeatable)")
	serveCmd.Flags().String("database", "dms.db", "SQLite database for bookmarks and state")

	mustBindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	mustBindPFlag("server.friendly_name", serveCmd.Flags().Lookup("name"))
	mustBindPFlag("media.roots", serveCmd.Flags().Lookup("root"))
	mustBindPFlag("storage.dsn", serveCmd.Flags().Lookup("database"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	l, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
	}
	return a.run(ctx, l)
}

// app is the wired server with the resources it owns.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *storage.Store
	server *dms.Server
	// scan fills a file store. Nil for remote stores.
	scan func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.Storage.DSN, storage.Options{BusyTimeout: cfg.Storage.BusyTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{cfg: cfg, log: logger, db: db}

	initial, err := db.LoadUpdateID(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading system update id: %w", err)
	}
	counter := store.NewUpdateCounter(initial, func(id uint64) {
		if err := db.SaveUpdateID(context.Background(), id); err != nil {
			logger.Warn("saving system update id",
				slog.Uint64("id", id),
				slog.String("error", err.Error()))
		}
	})
	// Renderers cache listings by update id; a restart may have changed
	// anything.
	counter.Increment()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var st store.Store
	if cfg.ContentProvider.BaseURL != "" {
		rs, err := store.NewRemoteStore(store.RemoteOptions{
			BaseURL: cfg.ContentProvider.BaseURL,
			Token:   cfg.ContentProvider.Token,
			RootCAs: cfg.ContentProvider.RootCAs,
			Timeout: cfg.ContentProvider.Timeout,
			Logger:  logging.WithComponent(logger, "remote"),
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("content provider: %w", err)
		}
		st = rs
	} else {
		fs := store.NewFileStore(store.FileStoreOptions{
			Roots:       cfg.Media.Roots,
			Transcoder:  transcode.New(cfg.Media.FFmpegPath, logging.WithComponent(logger, "transcode")),
			Logger:      logging.WithComponent(logger, "filestore"),
			Counter:     counter,
			Concurrency: cfg.Media.ProbeWorkers,
		})
		st = fs
		a.scan = fs.Scan
	}

	udn := ""
	if cfg.Server.UUID != "" {
		udn = "uuid:" + cfg.Server.UUID
	}
	a.server = &dms.Server{
		FriendlyName:     cfg.Server.FriendlyName,
		UDN:              udn,
		Store:            st,
		Counter:          counter,
		Renderers:        renderer.NewRegistry(cfg.RendererProfiles(), cfg.DefaultRendererProfile()),
		Bookmarks:        db,
		Sessions:         playback.NewSessions(m.SetActiveSessions),
		Metrics:          m,
		Logger:           logger,
		DisableSubtitles: cfg.Media.DisableSubtitles,
		ShowFullyPlayed:  cfg.Media.ShowFullyPlayed,
		MaxConnections:   cfg.Server.MaxConnections,
		MetricsPath:      cfg.Metrics.Path,
	}
	if err := a.server.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// run serves on l and scans the media roots until ctx is done, then shuts
// the server down within the configured timeout.
func (a *app) run(ctx context.Context, l net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Serve(l)
	})
	if a.scan != nil {
		g.Go(func() error {
			err := a.scan(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("scanning media roots", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *app) close() error {
	return a.db.Close()
}
