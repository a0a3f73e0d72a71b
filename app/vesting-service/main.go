package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qubic/go-vesting-ledger/api"
	"github.com/qubic/go-vesting-ledger/business/domain/vesting"
	"github.com/qubic/go-vesting-ledger/external/kafka"
	"github.com/qubic/go-vesting-ledger/external/redis"
	"github.com/qubic/go-vesting-ledger/infrastructure/store/pebbledb"
	"github.com/qubic/go-vesting-ledger/metrics"
	goredis "github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const prefix = "QUBIC_VESTING_SERVICE"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	config := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("creating logger: %v", err)
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] main: no .env file loaded: %v", err)
	}

	var cfg struct {
		Store struct {
			Folder string `conf:"default:store"`
		}
		Server struct {
			ListenAddr      string        `conf:"default:0.0.0.0:8000"`
			ReadTimeout     time.Duration `conf:"default:10s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			ShutdownTimeout time.Duration `conf:"default:15s"`
		}
		Cache struct {
			Ttl      time.Duration `conf:"default:5s"`
			Capacity uint64        `conf:"default:10000"`
		}
		Deposits struct {
			Enabled bool `conf:"default:false"` // only for testing
		}
		Notify struct {
			Timeout time.Duration `conf:"default:5s"`
		}
		Kafka struct {
			Enabled          bool     `conf:"default:false"`
			BootstrapServers []string `conf:"default:localhost:9092"`
			EventsTopic      string   `conf:"default:qubic-vesting-events"`
		}
		Redis struct {
			Enabled bool   `conf:"default:false"`
			Url     string `conf:"default:redis://localhost:6379/0,mask"`
			Stream  string `conf:"default:qubic-vesting-events"`
			MaxLen  int64  `conf:"default:100000"`
		}
		Metrics struct {
			Port      int    `conf:"default:9999"`
			Namespace string `conf:"default:qubic_vesting"`
		}
	}

	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %v", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %v", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %v", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %v", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	store, err := pebbledb.NewStore(cfg.Store.Folder)
	if err != nil {
		return fmt.Errorf("creating store: %v", err)
	}
	defer store.Close()

	serviceMetrics := metrics.NewMetrics(cfg.Metrics.Namespace)

	var sinks []vesting.Publisher
	if cfg.Kafka.Enabled {
		kcl, err := kgo.NewClient(
			kgo.WithHooks(kprom.NewMetrics(cfg.Metrics.Namespace,
				kprom.Registerer(prometheus.DefaultRegisterer),
				kprom.Gatherer(prometheus.DefaultGatherer))),
			kgo.DefaultProduceTopic(cfg.Kafka.EventsTopic),
			kgo.SeedBrokers(cfg.Kafka.BootstrapServers...),
			kgo.ProducerBatchCompression(kgo.ZstdCompression()),
		)
		if err != nil {
			return errors.Wrap(err, "creating kafka client")
		}
		defer kcl.Close()
		sinks = append(sinks, kafka.NewClient(kcl))
	}
	if cfg.Redis.Enabled {
		options, err := goredis.ParseURL(cfg.Redis.Url)
		if err != nil {
			return errors.Wrap(err, "parsing redis url")
		}
		rdb := goredis.NewClient(options)
		defer rdb.Close()
		sinks = append(sinks, redis.NewPublisher(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen))
	}
	if len(sinks) == 0 {
		sLogger.Warn("No event sinks configured, events will not be published.")
	}

	notifier := vesting.NewNotifier(cfg.Notify.Timeout, serviceMetrics, sLogger, sinks...)
	service := vesting.NewService(store, notifier, serviceMetrics, sLogger)
	cache := api.NewScheduleCache(service, cfg.Cache.Ttl, cfg.Cache.Capacity)
	handler := api.NewHandler(service, cache, vesting.SystemClock{}, cfg.Deposits.Enabled, sLogger)

	apiServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/health", handler.GetHealth)
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: metricsMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		cache.Start()
		return nil
	})
	group.Go(func() error {
		sLogger.Infow("Starting api server", "address", cfg.Server.ListenAddr)
		return listen(apiServer)
	})
	group.Go(func() error {
		sLogger.Infow("Starting health and metrics endpoint", "port", cfg.Metrics.Port)
		return listen(metricsServer)
	})
	group.Go(func() error {
		<-ctx.Done()
		sLogger.Info("Shutting down...")
		cache.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		apiErr := apiServer.Shutdown(shutdownCtx)
		metricsErr := metricsServer.Shutdown(shutdownCtx)
		if apiErr != nil {
			return errors.Wrap(apiErr, "shutting down api server")
		}
		return errors.Wrap(metricsErr, "shutting down metrics server")
	})

	sLogger.Info("Service started.")
	return group.Wait()
}

func listen(server *http.Server) error {
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrapf(err, "serving on [%s]", server.Addr)
}
