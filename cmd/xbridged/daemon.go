package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/config"
	"github.com/tdex-network/xbridge/internal/core/application/pubsub"
	"github.com/tdex-network/xbridge/internal/core/application/xbridge"
	"github.com/tdex-network/xbridge/internal/core/ports"
	webhookpubsub "github.com/tdex-network/xbridge/internal/infrastructure/pubsub"
	dbbadger "github.com/tdex-network/xbridge/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/xbridge/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/xbridge/internal/infrastructure/transport/websocket"
	"github.com/tdex-network/xbridge/internal/infrastructure/wallet/connector"
	"github.com/tdex-network/xbridge/internal/infrastructure/wallet/rpc"
	"github.com/tdex-network/xbridge/internal/interfaces"
	httpinterface "github.com/tdex-network/xbridge/internal/interfaces/http"
	"github.com/tdex-network/xbridge/pkg/stats"
	"github.com/tdex-network/xbridge/pkg/txlog"
)

const shutdownTimeout = 5 * time.Second

type daemon struct {
	repo       ports.RepoManager
	rpcClients []*rpc.Client
	txLog      *txlog.Logger
	webhooks   *pubsub.Service
	xbridge    *xbridge.Service
	operator   interfaces.Service

	relay         *websocket.Relay
	relayServer   *http.Server
	relayListener net.Listener
	metricsServer *http.Server
}

func newDaemon() (d *daemon, err error) {
	d = &daemon{}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	metrics := stats.NewMetrics(prometheus.DefaultRegisterer)

	if dbDir := config.GetDbDir(); dbDir != "" {
		d.repo, err = dbbadger.NewRepoManager(dbDir, log.StandardLogger())
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %w", err)
		}
	} else {
		d.repo = inmemory.NewRepoManager()
	}

	connectors, addresses, err := d.initWallets(metrics)
	if err != nil {
		return nil, err
	}

	d.webhooks = pubsub.NewService(webhookpubsub.NewService(pubsub.Topics...))
	if err := d.addWebhooks(); err != nil {
		return nil, err
	}

	transport, err := d.initTransport()
	if err != nil {
		return nil, err
	}

	d.xbridge, err = xbridge.NewService(xbridge.Config{
		Connectors:       connectors,
		SessionAddresses: addresses,
		Repo:             d.repo,
		Transport:        transport,
		Notifier:         pubsub.MultiNotifier{pubsub.LogNotifier{}, d.webhooks},
		Metrics:          metrics,
		ExchangeEnabled:  config.GetBool(config.ExchangeEnabledKey),
		WorkerCount:      config.GetInt(config.WorkerCountKey),
		TimerInterval:    config.GetDuration(config.TimerIntervalKey),
		PendingTTL:       config.GetDuration(config.PendingTTLKey),
		TTL:              config.GetDuration(config.TransactionTTLKey),
	})
	if err != nil {
		return nil, err
	}

	d.operator, err = httpinterface.NewServer(
		config.GetString(config.OperatorListenAddrKey), d.xbridge, d.webhooks,
	)
	if err != nil {
		return nil, err
	}

	if addr := config.GetString(config.MetricsListenAddrKey); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		d.metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return d, nil
}

func (d *daemon) initWallets(
	metrics *stats.Metrics,
) (map[string]ports.WalletConnector, map[string][]byte, error) {
	wallets, err := config.GetWallets()
	if err != nil {
		return nil, nil, err
	}
	if len(wallets) == 0 {
		return nil, nil, fmt.Errorf(
			"no wallet configured, add them to %s",
			filepath.Join(config.GetDatadir(), "xbridge.yaml"),
		)
	}

	txLog, err := txlog.New(config.GetTxLogDir())
	if err != nil {
		return nil, nil, err
	}
	d.txLog = txLog

	connectors := make(map[string]ports.WalletConnector)
	addresses := make(map[string][]byte)
	for _, w := range wallets {
		params, err := w.Params()
		if err != nil {
			return nil, nil, err
		}
		client, err := rpc.NewClient(rpc.Config{
			Currency:       params.Currency,
			Host:           w.Host,
			User:           w.User,
			Password:       w.Password,
			Coin:           params.Coin,
			MaxConcurrency: int64(config.GetInt(config.RPCMaxConcurrencyKey)),
			Timeout:        config.GetDuration(config.RPCTimeoutKey),
			RateLimit:      config.GetInt(config.RPCRateLimitKey),
			Metrics:        metrics,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%s wallet: %w", params.Currency, err)
		}
		d.rpcClients = append(d.rpcClients, client)

		conn, err := connector.NewConnector(
			params, client, config.GetDuration(config.LockTimeBaseKey),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("%s wallet: %w", params.Currency, err)
		}
		conn.SetTxLog(d.txLog)
		connectors[params.Currency] = conn

		addr, err := w.SessionAddress()
		if err != nil {
			return nil, nil, err
		}
		if addr != nil {
			addresses[params.Currency] = addr
		}

		log.Infof("%s wallet: connected to %s", params.Currency, w.Host)
	}
	return connectors, addresses, nil
}

func (d *daemon) addWebhooks() error {
	webhooks, err := config.GetWebhooks()
	if err != nil {
		return err
	}
	for _, hook := range webhooks {
		if _, err := d.webhooks.AddWebhook(context.Background(), pubsub.Webhook{
			Event:    hook.Event,
			Endpoint: hook.Endpoint,
			Secret:   hook.Secret,
		}); err != nil {
			return fmt.Errorf("webhook %s: %w", hook.Endpoint, err)
		}
	}
	return nil
}

// initTransport returns the client connecting the node to the network. With
// RELAY_LISTEN_ADDR the daemon serves a relay itself, and connects to it
// unless RELAY_URL points elsewhere. Without either the node is isolated.
func (d *daemon) initTransport() (ports.Transport, error) {
	relayURL := config.GetString(config.RelayURLKey)

	if addr := config.GetString(config.RelayListenAddrKey); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen for relay: %w", err)
		}
		d.relayListener = lis
		d.relay = websocket.NewRelay()
		d.relayServer = &http.Server{
			Handler:           d.relay,
			ReadHeaderTimeout: 10 * time.Second,
		}
		if relayURL == "" {
			relayURL = "ws://" + localAddr(lis.Addr())
		}
	}

	if relayURL == "" {
		log.Warn("no relay configured, the node won't talk to other nodes")
		return nil, nil
	}
	client, err := websocket.NewClient(relayURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (d *daemon) start(ctx context.Context) error {
	if d.relayServer != nil {
		go d.relay.Run(ctx)
		go func() {
			if err := d.relayServer.Serve(d.relayListener); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Warn("relay: server stopped")
			}
		}()
		log.Infof("relay: listening on %s", d.relayListener.Addr())
	}

	if err := d.xbridge.Start(ctx); err != nil {
		return err
	}

	if err := d.operator.Start(); err != nil {
		return err
	}

	if d.metricsServer != nil {
		go func() {
			if err := d.metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Warn("metrics: server stopped")
			}
		}()
		log.Infof("metrics: listening on %s", d.metricsServer.Addr)
	}

	if config.GetBool(config.EnableProfilerKey) {
		interval := time.Duration(config.GetInt(config.StatsIntervalKey)) * time.Second
		statsDir := filepath.Join(config.GetDatadir(), config.ProfilerLocation)
		stats.EnableMemoryStatistics(ctx, interval, statsDir)
	}
	return nil
}

func (d *daemon) stop() {
	if d.operator != nil {
		d.operator.Stop()
	}
	if d.xbridge != nil {
		if err := d.xbridge.Stop(); err != nil && !errors.Is(err, xbridge.ErrNotStarted) {
			log.WithError(err).Warn("failed to stop xbridge service")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range []*http.Server{d.relayServer, d.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to shutdown http server")
		}
	}

	d.close()
}

func (d *daemon) close() {
	if d.relayListener != nil {
		d.relayListener.Close()
	}
	if d.webhooks != nil {
		d.webhooks.Close()
	}
	for _, c := range d.rpcClients {
		c.Close()
	}
	if err := d.txLog.Close(); err != nil {
		log.WithError(err).Warn("failed to close txlog")
	}
	if d.repo != nil {
		d.repo.Close()
	}
}

// localAddr returns a dialable address for a listener bound to all the
// interfaces.
func localAddr(addr net.Addr) string {
	s := addr.String()
	if strings.HasPrefix(s, "[::]:") || strings.HasPrefix(s, "0.0.0.0:") {
		return "127.0.0.1" + s[strings.LastIndex(s, ":"):]
	}
	return s
}
