// Command nodescoped runs the NodeScope proxy data plane: it loads
// configuration, opens the Record Sink, and accepts SOCKS5-fronted Bitcoin
// P2P connections until asked to stop.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tokenized/logger"

	"github.com/nodescope/proxy/internal/config"
	"github.com/nodescope/proxy/internal/proxy"
	"github.com/nodescope/proxy/internal/sink"
)

func main() {
	logConfig := logger.NewDevelopmentConfig()
	ctx := logger.ContextWithLogConfig(context.Background(), logConfig)

	configPath := flag.String("config", "nodescope.yaml", "path to the proxy's YAML config file")
	flag.Parse()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		logger.Fatal(ctx, "failed to load config: %s", err)
		return
	}

	store, err := sink.OpenSqlite(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Fatal(ctx, "failed to open record sink: %s", err)
		return
	}
	defer store.Shutdown()

	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(cfg.Proxy.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal(ctx, "failed to bind %s: %s", addr, err)
		return
	}
	defer ln.Close()

	logger.Info(ctx, "listening on %s, network=%s, database=%s", addr, cfg.Proxy.Network, cfg.DatabasePath)

	listener := proxy.NewListener(cfg.Proxy.Network, store)

	serveCtx, cancel := context.WithCancel(ctx)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- listener.Serve(serveCtx, ln)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error(ctx, "listener stopped: %s", err)
		}
	case sig := <-signals:
		logger.Info(ctx, "received signal %s, shutting down", sig)
		cancel()
		ln.Close()
		<-serverErrors
	}
}
