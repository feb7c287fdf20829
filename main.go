package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"

	"github.com/Tutortoise/live-detection-service/config"
	"github.com/Tutortoise/live-detection-service/detections"
	"github.com/Tutortoise/live-detection-service/emitter"
	"github.com/Tutortoise/live-detection-service/pipeline"
	"github.com/Tutortoise/live-detection-service/preferences"
	"github.com/Tutortoise/live-detection-service/source"
)

var configPath = flag.String("config", "", "Path to the YAML configuration file")

func initLogger(level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	return log, nil
}

func openStore(cfg *config.Config) (preferences.Store, error) {
	if cfg.Preferences.DBPath == "" {
		return preferences.NewMemoryStore(), nil
	}
	return preferences.OpenSQLite(cfg.Preferences.DBPath)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("service stopped")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	log := logrus.NewEntry(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize ONNX Runtime
	libPath, err := resolveLibrary(cfg.Runtime.LibraryPath, librarySearchDirs())
	if err != nil {
		return err
	}
	destroy, err := initRuntime(libPath)
	if err != nil {
		return err
	}
	defer destroy()

	platform := detections.DetectPlatform(libPath)
	log.WithFields(logrus.Fields{"library": libPath, "platform": platform.String()}).Info("onnx runtime initialized")
	rt := detections.NewONNXRuntime(platform, cfg.TensorNames())

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	holder, err := preferences.NewHolder(ctx, store, log)
	if err != nil {
		return err
	}

	live := NewLiveSlot()
	sinks := pipeline.MultiSink{live}
	var mqttEmitter *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		mqttEmitter = emitter.NewMQTTEmitter(emitter.Options{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
		}, log)
		if err := mqttEmitter.Connect(ctx); err != nil {
			log.WithError(err).Warn("mqtt broker unreachable, detections will not be emitted until it connects")
		}
		defer mqttEmitter.Disconnect(cfg.Server.ShutdownTimeout)
		sinks = append(sinks, mqttEmitter)
	}

	src, err := source.NewFileSource(source.Options{
		Dir:     cfg.Capture.Dir,
		FPS:     cfg.Capture.FPS,
		Loop:    cfg.Capture.Loop,
		Capture: cfg.CaptureSize(),
		Log:     log,
	})
	if err != nil {
		return err
	}

	sched, err := pipeline.New(detections.NewSelector(rt, log), pipeline.Options{
		Capture:     cfg.CaptureSize(),
		Model:       cfg.ModelConfig(),
		Preferences: holder,
		FrameRate:   src,
		Sink:        sinks,
		JPEGQuality: cfg.Output.JPEGQuality,
		Log:         log,
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.WithError(err).Warn("releasing detector")
		}
	}()

	go func() {
		configureCtx, cancel := context.WithTimeout(ctx, cfg.Server.ConfigureTimeout)
		defer cancel()
		status, err := sched.Configure(configureCtx)
		if err != nil {
			log.WithError(err).Warn("initial detector configuration did not complete")
			return
		}
		log.WithField("success", status.Success).Info(status.Message)
	}()

	go func() {
		if err := src.Run(ctx, sched); err != nil {
			log.WithError(err).Error("frame source stopped")
		}
	}()

	state := &AppState{
		Detector:         sched,
		Preferences:      holder,
		Live:             live,
		ConfigureTimeout: cfg.Server.ConfigureTimeout,
		Log:              log.WithField("component", "http"),
	}
	if mqttEmitter != nil {
		state.Emitter = mqttEmitter
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         cfg.Server.Addr,
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
