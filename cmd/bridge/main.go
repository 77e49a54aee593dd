package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"esphome-humidifier-bridge/internal/adapters/input/http"
	"esphome-humidifier-bridge/internal/adapters/input/ssdp"
	"esphome-humidifier-bridge/internal/adapters/output/homeassistant"
	"esphome-humidifier-bridge/internal/adapters/output/metrics"
	"esphome-humidifier-bridge/internal/adapters/output/mqtt"
	"esphome-humidifier-bridge/internal/adapters/output/persistence"
	"esphome-humidifier-bridge/internal/config"
	"esphome-humidifier-bridge/internal/domain/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bridge stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := loadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	defaultPath := os.Getenv("BRIDGE_CONFIG")
	if defaultPath == "" {
		defaultPath = config.DefaultPath
	}
	configPath := flag.String("config", defaultPath, "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ip := cfg.HTTP.AdvertiseIP
	if ip == "" {
		ip = getLocalIP()
	}
	if ip == "" {
		return errors.New("could not determine local IP, set LOCAL_IP")
	}
	logger.Info("starting ESPHome humidifier bridge", "ip", ip, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence
	configRepo := persistence.NewJSONConfigRepository(cfg.Storage.EntriesPath)
	stateStore := persistence.NewJSONStateStore(cfg.Storage.StatePath, logger.With("component", "state"))

	// HA client: credentials saved from the admin API win over the bootstrap ones
	haClient := homeassistant.NewClient()
	stored, err := configRepo.Get(ctx)
	if err != nil {
		return fmt.Errorf("load stored entries: %w", err)
	}
	if stored.HassURL != "" && stored.HassToken != "" {
		haClient.Configure(stored.HassURL, stored.HassToken)
	} else if cfg.HomeAssistant.URL != "" {
		haClient.Configure(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token)
		stored.HassURL = cfg.HomeAssistant.URL
		stored.HassToken = cfg.HomeAssistant.Token
		if err := configRepo.Save(ctx, stored); err != nil {
			logger.Warn("could not persist Home Assistant credentials", "error", err)
		}
	} else {
		logger.Warn("Home Assistant is not configured yet, use the admin API")
	}

	collector := metrics.NewCollector()
	publisher, err := mqtt.Dial(cfg.MQTT.BrokerConfig, cfg.MQTT.Options(), logger.With("component", "mqtt"))
	if err != nil {
		return fmt.Errorf("connect to MQTT broker: %w", err)
	}
	defer publisher.Close()

	bridge := service.NewBridgeService(service.Dependencies{
		HomeAssistant: haClient,
		Publisher:     publisher,
		Store:         stateStore,
		Metrics:       collector,
		Logger:        logger,
	}, configRepo, cfg.Humidifiers)
	publisher.Bind(bridge)

	if err := bridge.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bridge.Stop(shutdownCtx)
	}()

	events := homeassistant.NewEventStream(haClient, logger.With("component", "events"))
	httpServer := http.NewServer(bridge, ip, cfg.HTTP.Port, collector.Handler(), logger.With("component", "http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.Run(gctx, bridge.HandleEvent, bridge.Resync)
	})
	g.Go(func() error {
		return httpServer.Run(gctx, fmt.Sprintf(":%d", cfg.HTTP.Port))
	})
	if cfg.HTTP.SSDPEnabled() {
		ssdpServer := ssdp.NewServer(ip, cfg.HTTP.Port, logger.With("component", "ssdp"))
		g.Go(func() error {
			// Discovery is optional; the bridge keeps running without it
			if err := ssdpServer.Run(gctx); err != nil {
				logger.Warn("SSDP responder stopped", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}
