package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	cfgpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/config"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/runtime"
	grpcserver "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/server/grpc"
	httpserver "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/server/http"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

type Options struct {
	DataDir  string
	GRPCAddr string
	HTTPAddr string
	Fsync    pebblestore.FsyncMode
	Config   cfgpkg.Config
}

// resolve fills empty options from the config and the OS defaults.
func (o Options) resolve() Options {
	if o.DataDir == "" {
		o.DataDir = o.Config.DataDir
	}
	if o.DataDir == "" {
		o.DataDir = cfgpkg.DefaultDataDir()
	}
	if o.GRPCAddr == "" {
		o.GRPCAddr = o.Config.GRPCAddr
	}
	if o.HTTPAddr == "" {
		o.HTTPAddr = o.Config.HTTPAddr
	}
	return o
}

// Logger builds the process logger from cfg, falling back to text/info when
// cfg is invalid.
func Logger(cfg logpkg.Config) logpkg.Logger {
	l, err := logpkg.ApplyConfig(&cfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if v, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = v
		}
		l = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	return l
}

// Run opens the runtime, starts consuming and serves gRPC and HTTP until ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	opts = opts.resolve()

	logger := Logger(opts.Config.Log)
	// Pebble and net/http log through the std logger.
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(sctx, runtime.Options{
		DataDir: filepath.Join(opts.DataDir, "store"),
		Fsync:   opts.Fsync,
		Config:  opts.Config,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting edu-events server",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Any("services", opts.Config.Services),
		logpkg.Int("instance", opts.Config.Instance),
	)
	if err := rt.Start(sctx); err != nil {
		return err
	}

	gsrv := grpcserver.New(rt, logger)
	hsrv := httpserver.New(rt, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := gsrv.ListenAndServe(sctx, opts.GRPCAddr); err != nil && sctx.Err() == nil {
			logger.Error("grpc server failed", logpkg.Err(err))
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server failed", logpkg.Err(err))
			stop()
		}
	}()

	<-sctx.Done()
	// Both servers shut down on sctx; wait so the runtime closes last.
	wg.Wait()
	logger.Info("edu-events server stopped")
	return nil
}
