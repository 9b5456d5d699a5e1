package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lynks-network/lynks/internal/api"
	"github.com/lynks-network/lynks/internal/app/purge"
	"github.com/lynks-network/lynks/internal/app/settlement"
	"github.com/lynks-network/lynks/internal/infra/blobstore"
	"github.com/lynks-network/lynks/internal/infra/notify"
	"github.com/lynks-network/lynks/internal/infra/observability"
	"github.com/lynks-network/lynks/internal/infra/sqlite"
)

// Daemon owns every long-lived component of a Lynks server.
type Daemon struct {
	Config Config
	DB     *sqlite.DB
	Blobs  *blobstore.Store
	Hub    *notify.Hub
	Tracer *observability.Tracer
	Engine *settlement.Engine
}

// New opens storage and builds the engine. Call Close when done.
func New(cfg Config) (*Daemon, error) {
	db, err := sqlite.Open(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	policy := cfg.Policy()
	blobs := blobstore.New(cfg.BlobDir(), policy.MaxProofBytes)
	if err := blobs.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init proof store: %w", err)
	}

	d := &Daemon{
		Config: cfg,
		DB:     db,
		Blobs:  blobs,
		Hub:    notify.NewHub(),
		Tracer: observability.NewTracer(cfg.Telemetry),
	}
	d.Engine = settlement.New(db, policy,
		settlement.WithBlobStore(blobs),
		settlement.WithNotifier(d.Hub),
		settlement.WithTracer(d.Tracer),
	)
	return d, nil
}

// Close releases storage.
func (d *Daemon) Close() error {
	return d.DB.Close()
}

// Serve runs the HTTP API, the sweeper and the purge worker until ctx is
// cancelled or one of them fails.
func (d *Daemon) Serve(ctx context.Context) error {
	srv := api.NewServer(d.Engine, d.Hub)
	srv.SetTracer(d.Tracer)
	srv.SetRequestTimeout(mustDuration(d.Config.API.RequestTimeout))
	if d.Config.API.Metrics {
		srv.EnableMetrics()
	}
	if d.Config.API.CronSecret != "" {
		srv.SetCronSecret(d.Config.API.CronSecret)
	}

	httpSrv := &http.Server{
		Addr:              d.Config.API.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("[daemon] listening on http://%s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if d.Config.Sweeper.Enabled {
		sweeper := settlement.NewSweeper(d.Engine, mustDuration(d.Config.Sweeper.Interval))
		g.Go(func() error { return sweeper.Run(gctx) })
	} else {
		log.Printf("[daemon] in-process sweeper disabled; rely on POST /api/cron/auto-approve")
	}

	if d.Config.Purge.Enabled {
		worker := purge.New(d.Config.PurgeWorkerConfig(), d.DB, d.Blobs)
		g.Go(func() error { return worker.Run(gctx) })
	}

	err := g.Wait()
	log.Printf("[daemon] stopped")
	return err
}
