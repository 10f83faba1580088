package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"clawav/config"
	"clawav/internal/alerts"
	"clawav/internal/api"
	"clawav/internal/detect"
	"clawav/internal/firewall"
	"clawav/internal/logger"
	"clawav/internal/metrics"
	"clawav/internal/output/alertclickhouse"
	"clawav/internal/output/alerthttp"
	"clawav/internal/output/alertjson"
	"clawav/internal/output/alertredis"
	"clawav/internal/pipeline"
	"clawav/internal/sources"
	"clawav/pkg/models"
)

const defaultConfigName = "clawav.yml"

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [config]",
		Short: "Start the monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configArg := ""
			if len(args) > 0 {
				configArg = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMonitor(ctx, configArg)
		},
	}
}

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func loadConfig(configArg string) (*config.Config, string, error) {
	path := findConfigFile(configArg)
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, path, errors.Wrap(err, "load config")
		}
		cfg = loaded
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func runMonitor(ctx context.Context, configArg string) error {
	cfg, configPath, err := loadConfig(configArg)
	if err != nil {
		return err
	}
	c := cfg.Clawav

	if err := logger.Init(c.Logging.Enabled, c.Logging.Level, c.Logging.File, c.Logging.Console); err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	defer logger.Sync()

	logger.Infof("clawav %s starting", version)
	if configPath != "" {
		logger.Infof("Config loaded from: %s", configPath)
	} else {
		logger.Infof("No config file found, using defaults")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	store := alerts.NewStore(c.Store.Capacity)
	delivery := pipeline.NewDelivery(c.Pipeline.ChannelSize, m)
	registry := detect.NewRegistry()
	dispatcher := pipeline.NewDispatcher(registry, delivery, m)

	outputs, err := buildOutputs(c.Output)
	if err != nil {
		return err
	}
	aggregator := pipeline.NewAggregator(delivery, store, outputs, m, pipeline.AggregatorConfig{
		BatchSize:     c.Pipeline.BatchSize,
		FlushInterval: c.Pipeline.FlushInterval,
		MaxRetries:    c.Pipeline.MaxRetries,
	})
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		if err := aggregator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("Aggregator error: %v", err)
		}
	}()

	if c.Rules.Enabled {
		if err := registerSigma(ctx, registry, c.Rules, delivery); err != nil {
			return err
		}
	}

	if c.Network.Enabled {
		if err := registry.RegisterSource(selectNetworkSource(ctx, c.Network, delivery, dispatcher)); err != nil {
			return err
		}
	}
	if c.RedisQueue.Enabled {
		src, err := sources.NewRedisQueueSource(sources.RedisQueueConfig{
			Addr:         c.RedisQueue.Addr,
			Password:     c.RedisQueue.Password,
			DB:           c.RedisQueue.DB,
			Key:          c.RedisQueue.Key,
			BlockTimeout: c.RedisQueue.BlockTimeout,
			ErrorBackoff: c.Network.ErrorBackoff,
		}, delivery, dispatcher)
		if err != nil {
			return errors.Wrap(err, "create redis queue source")
		}
		defer src.Close()
		if err := registry.RegisterSource(src); err != nil {
			return err
		}
	}

	started := registry.StartSources(ctx, func(id string, err error) {
		logger.Warnf("Source %s failed to start: %v", id, err)
		delivery.Publish(models.NewAlert(models.Warning, id, fmt.Sprintf("Source failed to start: %v", err)))
	})

	var fw *firewall.Firewall
	if c.Firewall.Enabled {
		fw, err = firewall.New(c.Firewall.Tier, c.Firewall.Overrides)
		if err != nil {
			return err
		}
		if bad := firewall.UnknownOverrides(c.Firewall.Overrides); len(bad) > 0 {
			logger.Warnf("Ignoring firewall overrides: %s", strings.Join(bad, ", "))
		}
		logger.Infof("Prompt firewall enabled (tier %d)", fw.Tier())
	}

	apiDone := make(chan struct{})
	if c.API.Enabled {
		server := api.NewServer(api.Config{
			Store:             store,
			Registry:          registry,
			Drops:             delivery,
			Firewall:          fw,
			Observe:           firewall.Recorder(delivery.Publish, m),
			Gatherer:          reg,
			ScanRatePerSecond: c.API.ScanRate,
			ScanBurst:         c.API.ScanBurst,
		})
		go func() {
			defer close(apiDone)
			if err := server.ListenAndServe(ctx, c.API.Listen); err != nil {
				logger.Errorf("Status API error: %v", err)
				delivery.Publish(models.NewAlert(models.Warning, "api", fmt.Sprintf("Status API stopped: %v", err)))
			}
		}()
	} else {
		close(apiDone)
	}

	delivery.Publish(models.NewAlert(models.Info, "clawav",
		fmt.Sprintf("Monitor started: %d detectors, %d/%d sources running", registry.DetectorCount(), started, registry.SourceCount())))

	<-ctx.Done()
	logger.Infof("Shutting down")
	<-apiDone
	<-aggDone
	delivery.Close()

	if err := aggregator.Close(); err != nil {
		logger.Errorf("Error closing outputs: %v", err)
	}
	logger.Infof("clawav stopped")
	return nil
}

func registerSigma(ctx context.Context, registry *detect.Registry, rc config.RulesConfig, delivery *pipeline.Delivery) error {
	sigmaDetector, stats, err := detect.NewSigmaDetector(rc.Path)
	if err != nil {
		return errors.Wrapf(err, "load sigma rules from %s", rc.Path)
	}
	logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
		stats.Loaded, stats.SkippedComplex, stats.SkippedDatasource, stats.SkippedInvalid, stats.TotalFiles)
	if stats.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded")
		delivery.Publish(models.NewAlert(models.Warning, "sigma", "No compatible Sigma rules loaded from "+rc.Path))
	}
	if err := registry.RegisterDetector(sigmaDetector); err != nil {
		return err
	}

	if rc.Watch {
		go func() {
			if err := detect.WatchRules(ctx, rc.Path, sigmaDetector, rc.Debounce); err != nil {
				logger.Errorf("Rule watcher stopped: %v", err)
			}
		}()
	}
	return nil
}

func selectNetworkSource(ctx context.Context, nc config.NetworkConfig, delivery *pipeline.Delivery, dispatcher *pipeline.Dispatcher) detect.EventSource {
	useJournald := nc.Source == "journald"
	if nc.Source == "auto" {
		useJournald = sources.JournaldAvailable(ctx)
	}

	if useJournald {
		logger.Infof("Network source: journald")
		return sources.NewJournalTailer(sources.JournalTailerConfig{
			Prefix:       nc.Prefix,
			ErrorBackoff: nc.ErrorBackoff,
		}, delivery, dispatcher)
	}

	logger.Infof("Network source: file (%s)", nc.LogPath)
	return sources.NewFileTailer(sources.FileTailerConfig{
		Path:         nc.LogPath,
		Prefix:       nc.Prefix,
		PollInterval: nc.PollInterval,
		ErrorBackoff: nc.ErrorBackoff,
	}, delivery, dispatcher)
}

func buildOutputs(oc config.OutputConfig) ([]pipeline.Output, error) {
	switch oc.Mode {
	case "none":
		logger.Infof("Alert output mode: none (in-memory store only)")
		return nil, nil
	case "file":
		w, err := alertjson.NewWriter(oc.File.Path)
		if err != nil {
			return nil, errors.Wrap(err, "create alert file writer")
		}
		logger.Infof("Alert output mode: file (%s)", oc.File.Path)
		return []pipeline.Output{{Name: "file", Writer: w}}, nil
	case "http":
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:     oc.HTTP.URL,
			Timeout: oc.HTTP.Timeout,
			Headers: oc.HTTP.Headers,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create alert HTTP writer")
		}
		logger.Infof("Alert output mode: http (%s)", oc.HTTP.URL)
		return []pipeline.Output{{Name: "http", Writer: w}}, nil
	case "redis":
		w, err := alertredis.NewWriter(alertredis.Config{
			Addr:     oc.Redis.Addr,
			Password: oc.Redis.Password,
			DB:       oc.Redis.DB,
			Key:      oc.Redis.Key,
			MaxLen:   oc.Redis.MaxLen,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create alert redis writer")
		}
		logger.Infof("Alert output mode: redis (%s/%s)", oc.Redis.Addr, oc.Redis.Key)
		return []pipeline.Output{{Name: "redis", Writer: w}}, nil
	case "clickhouse":
		w, err := alertclickhouse.NewWriter(alertclickhouse.Config{
			URL:      oc.ClickHouse.URL,
			Database: oc.ClickHouse.Database,
			Table:    oc.ClickHouse.Table,
			Username: oc.ClickHouse.Username,
			Password: oc.ClickHouse.Password,
			Timeout:  oc.ClickHouse.Timeout,
			Headers:  oc.ClickHouse.Headers,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create alert ClickHouse writer")
		}
		logger.Infof("Alert output mode: clickhouse (%s/%s.%s)", oc.ClickHouse.URL, oc.ClickHouse.Database, oc.ClickHouse.Table)
		return []pipeline.Output{{Name: "clickhouse", Writer: w}}, nil
	default:
		return nil, errors.Newf("unknown alert output mode: %s", oc.Mode)
	}
}
