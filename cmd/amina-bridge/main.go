package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"amina-zigbee/internal/codec"
	"amina-zigbee/internal/coordinator"
	"amina-zigbee/internal/hoststack"
	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/store"
	"amina-zigbee/internal/web"
	"amina-zigbee/internal/zcl"
	"amina-zigbee/internal/zcl/clusters"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	HostStack struct {
		URL            string        `yaml:"url"`
		Token          string        `yaml:"token"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"host_stack"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled         bool   `yaml:"enabled"`
		Broker          string `yaml:"broker"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		TopicPrefix     string `yaml:"topic_prefix"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	DevicesDir    string `yaml:"devices_dir"`
	ScriptsDir    string `yaml:"scripts_dir"`
	AutoConfigure *bool  `yaml:"auto_configure"`
}

func (c *Config) validate() error {
	if c.HostStack.URL == "" {
		return errors.New("host_stack.url is required")
	}
	u, err := url.Parse(c.HostStack.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("host_stack.url must be a ws:// or wss:// URL, got %q", c.HostStack.URL)
	}
	if c.HostStack.RequestTimeout < 0 {
		return fmt.Errorf("host_stack.request_timeout must not be negative")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("amina-bridge starting", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg *Config, logger *slog.Logger) error {
	schemas, err := schema.Builtin(logger)
	if err != nil {
		return fmt.Errorf("build schemas: %w", err)
	}

	registry := zcl.NewRegistry(logger)
	clusters.Load(registry)
	registerVendorCluster(registry, schemas)

	deviceDB := coordinator.BuiltinDevices()
	if err := coordinator.LoadDeviceDir(cfg.DevicesDir, deviceDB, registry, schemas, logger); err != nil {
		return fmt.Errorf("load device definitions: %w", err)
	}
	logger.Info("registries initialized", "revisions", len(schemas.Revisions()),
		"clusters", len(registry.All()), "devices", deviceDB.Len())

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// The host stack client needs the coordinator as its handler and the
	// coordinator needs the client as its transport.
	handler := &coordinatorHandler{}
	client := hoststack.NewClient(hoststack.Config{
		URL:            cfg.HostStack.URL,
		Token:          cfg.HostStack.Token,
		RequestTimeout: cfg.HostStack.RequestTimeout,
	}, handler, logger)

	events := coordinator.NewEventBus(logger)
	coord, err := coordinator.New(schemas, deviceDB, db, events, client, coordinator.Config{
		AutoConfigure: cfg.AutoConfigure == nil || *cfg.AutoConfigure,
	}, logger.With("component", "coordinator"))
	if err != nil {
		return err
	}
	handler.coord = coord

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hostDone := make(chan struct{})
	go func() {
		defer close(hostDone)
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("host stack client", "err", err)
		}
	}()

	// No-op when built with the no_automation tag.
	auto, autoWebOpts := initAutomation(coord, cfg, logger)

	webOpts := []web.ServerOption{web.WithVersion(version), web.WithClusters(registry)}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(coord, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	// No-op when built with the no_mqtt tag.
	mqtt := initMQTT(coord, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	cancel()
	<-hostDone
	coord.Stop()
	return nil
}

// coordinatorHandler forwards host stack traffic to a coordinator set after
// construction.
type coordinatorHandler struct {
	coord *coordinator.Coordinator
}

func (h *coordinatorHandler) HandleAnnounce(a coordinator.Announce) (*store.Device, error) {
	return h.coord.HandleAnnounce(a)
}

func (h *coordinatorHandler) HandleMessage(ieee string, msg codec.Message) (codec.State, error) {
	return h.coord.HandleMessage(ieee, msg)
}

func (h *coordinatorHandler) SetHostStackConnected(connected bool) {
	h.coord.SetHostStackConnected(connected)
}

// registerVendorCluster registers the proprietary cluster with the union of
// the attributes every revision places on it.
func registerVendorCluster(r *zcl.Registry, schemas *schema.Registry) {
	def := zcl.ClusterDef{ID: schemas.Latest().Proprietary(), Name: "aminaControl"}
	seen := make(map[uint16]bool)
	for _, rev := range schemas.Revisions() {
		sc, _ := schemas.Get(rev)
		for _, f := range sc.Fields() {
			if f.Cluster != def.ID || seen[f.Attribute.ID] {
				continue
			}
			seen[f.Attribute.ID] = true
			def.Attributes = append(def.Attributes, f.Attribute)
		}
	}
	r.Register(def)
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.HostStack.RequestTimeout == 0 {
		cfg.HostStack.RequestTimeout = 10 * time.Second
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "amina-bridge.db"
	}
	if cfg.DevicesDir == "" {
		cfg.DevicesDir = "devices"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "amina"
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
