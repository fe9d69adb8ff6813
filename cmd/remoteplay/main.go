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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zalo/remoteplay/internal/audio"
	"github.com/zalo/remoteplay/internal/config"
	"github.com/zalo/remoteplay/internal/decoder"
	"github.com/zalo/remoteplay/internal/logging"
	"github.com/zalo/remoteplay/internal/metrics"
	"github.com/zalo/remoteplay/internal/mirror"
	"github.com/zalo/remoteplay/internal/remote"
	"github.com/zalo/remoteplay/internal/session"
)

type flags struct {
	configPath string
	host       string
	registKey  string
	morning    string
	preset     string
	decoder    string
	hwDecode   string
	logLevel   string
	metrics    string
	mirror     string
	snapshot   string
	sleep      bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{}
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file (.json or .toml)")
	fs.StringVar(&f.host, "host", "", "Console host address")
	fs.StringVar(&f.registKey, "regist-key", "", "Hex regist key from registration")
	fs.StringVar(&f.morning, "morning", "", "Hex morning from registration")
	fs.StringVar(&f.preset, "preset", "", "Video preset: 360p, 540p, 720p or 1080p")
	fs.StringVar(&f.decoder, "decoder", "", "Decoder backend")
	fs.StringVar(&f.hwDecode, "hw-decode", "", "Hardware decode engine (empty for software)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.metrics, "metrics", "", "Prometheus listen address (e.g., :9100)")
	fs.StringVar(&f.mirror, "mirror", "", "Spectator mirror listen address (e.g., :8080)")
	fs.StringVar(&f.snapshot, "snapshot", "", "Write the latest decoded frame to this JPEG file")
	fs.BoolVar(&f.sleep, "sleep", false, "Put the console to sleep on exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(fs *flag.FlagSet, f *flags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "host":
			cfg.Host = f.host
		case "regist-key":
			cfg.RegistKey = f.registKey
		case "morning":
			cfg.Morning = f.morning
		case "preset":
			cfg.Video.Preset = f.preset
		case "decoder":
			cfg.Decoder = f.decoder
		case "hw-decode":
			cfg.HWDecodeEngine = f.hwDecode
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "metrics":
			cfg.MetricsAddr = f.metrics
		case "mirror":
			cfg.Mirror.ListenAddr = f.mirror
		case "sleep":
			cfg.SleepOnExit = f.sleep
		}
	})
	return cfg, nil
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	f, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := loadConfig(fs, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, f.snapshot, logger); err != nil {
		logger.Error("remoteplay exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, snapshot string, logger *zap.Logger) error {
	info, err := cfg.ConnectInfo()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	codec, err := decoder.Open(cfg.Decoder)
	if err != nil {
		return err
	}
	pipeline, err := decoder.New(decoder.ParseEngine(info.HWDecodeEngine), codec,
		decoder.WithLogger(logger), decoder.WithMetrics(m))
	if err != nil {
		codec.Close()
		return err
	}

	bridge := audio.NewBridge(&audio.MalgoDevice{BufferSize: info.AudioBufferSize, Logger: logger}, logger, m)

	client := remote.NewClient(remote.Config{
		Host:      info.Host,
		RegistKey: info.RegistKey,
		Morning:   info.Morning,
		Profile:   info.Video,
		Logger:    logger,
		Metrics:   m,
	})

	var mirrorMgr *mirror.Manager
	if cfg.Mirror.ListenAddr != "" {
		mirrorMgr, err = mirror.NewManager(mirror.Settings{
			ICEServers:     cfg.Mirror.ICEServers,
			TURNUsername:   cfg.Mirror.TURNUsername,
			TURNCredential: cfg.Mirror.TURNCredential,
			MaxPeers:       cfg.Mirror.MaxPeers,
			Codec:          info.Video.Codec,
			FPS:            info.Video.MaxFPS,
		}, logger, m)
		if err != nil {
			pipeline.Close()
			return err
		}
	}

	a := newApp(pipeline, snapshot, logger)
	handlers := a.handlers()
	if mirrorMgr != nil {
		handlers.VideoSample = mirrorMgr.WriteVideo
	}

	sess, err := session.New(info, session.Deps{
		Transport: client,
		Video:     pipeline,
		Audio:     bridge,
		Handlers:  handlers,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		pipeline.Close()
		bridge.Close()
		return err
	}
	defer sess.Close()
	a.sess = sess

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to console",
		zap.String("session", sess.ID),
		zap.String("host", info.Host),
		zap.Uint16("width", info.Video.Width),
		zap.Uint16("height", info.Video.Height),
		zap.Stringer("codec", info.Video.Codec),
		zap.Stringer("decoder", pipeline.Engine()),
		zap.Bool("fullscreen", info.Fullscreen))

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			logger.Info("Metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if mirrorMgr != nil {
		srv := mirror.NewServer(cfg.Mirror.ListenAddr, mirrorMgr, cfg.Mirror.ICEServers, logger)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	g.Go(func() error {
		return a.display(ctx)
	})

	g.Go(func() error {
		return a.promptPINs(ctx, os.Stdin)
	})

	g.Go(func() error {
		defer cancel()
		return a.wait(ctx, cfg.SleepOnExit)
	})

	return g.Wait()
}
