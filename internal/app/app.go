package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"yuributton/internal/button"
	"yuributton/internal/camera"
	"yuributton/internal/config"
	"yuributton/internal/detector"
	"yuributton/internal/lcd"
	"yuributton/internal/logger"
	"yuributton/internal/monitor"
	"yuributton/internal/pipeline"
	"yuributton/internal/recorder"
	"yuributton/internal/twitter"
)

// faceDetector is a detector holding native resources.
type faceDetector interface {
	pipeline.Detector
	Close() error
}

type App struct {
	config     *config.Config
	logger     *logger.Logger
	display    *lcd.Driver
	button     *button.Button
	controller *pipeline.Controller
	monitor    *monitor.Server
	closers    []func()
}

// NewApp opens the hardware and builds the pipeline. On error everything
// opened so far is released again.
func NewApp(cfg *config.Config) (*App, error) {
	log := logger.NewLogger(cfg)
	a, err := openApp(cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}
	return a, nil
}

func openApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c bus %q: %w", cfg.I2CBus, err)
	}

	btn, err := button.Open(cfg.GPIOPin)
	if err != nil {
		bus.Close()
		return nil, err
	}

	cascade, err := detector.New(cfg.CascadeFile, log)
	if err != nil {
		btn.Close()
		bus.Close()
		return nil, err
	}

	return newApp(cfg, log, bus, btn, cascade)
}

// newApp takes ownership of bus, btn and det. They are released when Run
// returns, or before newApp returns an error.
func newApp(cfg *config.Config, log *logger.Logger, bus i2c.BusCloser, btn *button.Button, det faceDetector) (*App, error) {
	a := &App{config: cfg, logger: log, button: btn}
	a.closers = append(a.closers, func() { bus.Close() })

	a.display = lcd.New(bus, cfg.I2CAddress)
	initErr := a.display.Initialize()
	if initErr == nil {
		a.closers = append(a.closers, func() { a.display.Clear() })
	}
	a.closers = append(a.closers, func() { btn.Close() }, func() { det.Close() })
	if initErr != nil {
		a.release()
		return nil, fmt.Errorf("failed to initialize display: %w", initErr)
	}

	var display pipeline.Display = a.display
	var mirror *monitor.Mirror
	if cfg.MonitorPort > 0 {
		mirror = monitor.NewMirror(a.display)
		display = mirror
	}

	a.controller = pipeline.NewController(
		display,
		camera.New(cfg.CameraDevice),
		det,
		recorder.New(cfg.NasneIP, &http.Client{Timeout: cfg.HTTPTimeout}, log),
		twitter.New(cfg, log),
		cfg,
		log,
	)

	if mirror != nil {
		a.controller.SetObserver(mirror)
		a.monitor = monitor.NewServer(cfg.MonitorPort, mirror, a.controller, log)
	}

	return a, nil
}

// Run shows the banner and handles button presses until ctx is cancelled.
// The display, pin, bus and cascade are released on return, including after
// a panic.
func (a *App) Run(ctx context.Context) error {
	defer a.logger.Close()
	defer a.release()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if a.monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.monitor.Run(ctx); err != nil {
				a.logger.Error("Monitor server failed: %v", err)
			}
		}()
	}

	a.logger.Info("YURI Button ready on %s (display %#x on i2c %s)", a.config.GPIOPin, a.config.I2CAddress, a.config.I2CBus)
	a.controller.Banner()

	err := a.controller.Loop(ctx, a.button)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("Shutting down")
		return nil
	}
	return err
}

// release runs the registered cleanups in reverse order.
func (a *App) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
