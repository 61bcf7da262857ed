package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"yuributton/internal/config"
	"yuributton/internal/detector"
	"yuributton/internal/lcd"
	"yuributton/internal/logger"
	"yuributton/internal/message"
)

// Display texts.
const (
	BannerText    = "YURI Button"
	PressedText   = "pressed!"
	UploadingText = "post->twitter..."
	SuccessText   = "      ->success!"
	FailedText    = "      ->failed!"
)

type Display interface {
	Clear() error
	WriteLine(text string, line int) error
}

type Camera interface {
	Capture() (gocv.Mat, error)
}

type Detector interface {
	Detect(frame gocv.Mat) (detector.Result, error)
}

// TitleSource returns the recorder title or "" when there is none.
type TitleSource interface {
	Title(ctx context.Context) string
}

// Publisher uploads both images and posts the status.
type Publisher interface {
	Publish(ctx context.Context, message string, raw, annotated gocv.Mat) bool
}

// Trigger reports whether the button is held down.
type Trigger interface {
	Pressed() bool
}

// Run summarizes one handled button press.
type Run struct {
	ID        string
	Count     int
	Title     string
	Message   string
	Published bool
	Err       error // set when the run was aborted
}

// Controller sequences capture, detection and publishing for each press and
// reports progress on the display. Runs never overlap: a press is only acted
// on from the idle state.
type Controller struct {
	display   Display
	camera    Camera
	detector  Detector
	titles    TitleSource
	publisher Publisher
	observer  Observer
	logger    *logger.Logger

	pollInterval time.Duration
	dwell        time.Duration
	sleep        func(time.Duration)

	mu    sync.RWMutex
	state State
}

func NewController(display Display, camera Camera, det Detector, titles TitleSource, publisher Publisher, cfg *config.Config, logger *logger.Logger) *Controller {
	return &Controller{
		display:      display,
		camera:       camera,
		detector:     det,
		titles:       titles,
		publisher:    publisher,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		dwell:        cfg.ResultDwell,
		sleep:        time.Sleep,
		state:        StateIdle,
	}
}

// SetObserver registers o for state transitions. Call before Loop.
func (c *Controller) SetObserver(o Observer) {
	c.observer = o
}

// State returns the current step.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Banner shows the idle banner on both lines.
func (c *Controller) Banner() {
	c.writeLine(BannerText, 1)
	c.writeLine(lcd.RightJustify(BannerText), 2)
}

// Loop polls trigger until ctx is cancelled. A press runs to completion
// before polling resumes; cancellation is only observed between runs.
func (c *Controller) Loop(ctx context.Context, trigger Trigger) error {
	for {
		if trigger.Pressed() {
			c.HandleTrigger(context.WithoutCancel(ctx))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// HandleTrigger executes one run. Presses arriving while a run is in
// progress are not queued.
func (c *Controller) HandleTrigger(ctx context.Context) Run {
	run := Run{ID: uuid.NewString()}

	c.logger.Info("pressed! (run %s)", run.ID)
	c.enter(run.ID, StatePressed)
	if err := c.display.Clear(); err != nil {
		c.logger.Warning("Failed to clear display: %v", err)
	}
	c.writeLine(PressedText, 1)

	c.enter(run.ID, StateCapturing)
	raw, err := c.camera.Capture()
	if err != nil {
		// The display keeps showing "pressed!" until the next run.
		c.logger.Error("Capture failed: %v", err)
		run.Err = err
		c.enter(run.ID, StateIdle)
		return run
	}
	defer raw.Close()

	c.enter(run.ID, StateDetecting)
	result := c.detect(raw)
	defer result.Annotated.Close()
	run.Count = result.Count
	c.logger.Info("detected faces: %d", run.Count)

	c.enter(run.ID, StateUploading)
	c.writeLine(UploadingText, 1)

	run.Title = c.titles.Title(ctx)
	c.logger.Info("nasne title: %s", run.Title)
	run.Message = message.Compose(run.Count, run.Title)

	c.enter(run.ID, StatePublishing)
	run.Published = c.publish(ctx, run.Message, raw, result.Annotated)

	c.enter(run.ID, StateResult)
	if run.Published {
		c.writeLine(SuccessText, 2)
	} else {
		c.writeLine(FailedText, 2)
	}

	c.sleep(c.dwell)
	c.Banner()
	c.enter(run.ID, StateIdle)
	return run
}

// detect never fails: on a detector error the run continues with no faces
// and an unmarked copy of the frame.
func (c *Controller) detect(raw gocv.Mat) detector.Result {
	result, err := c.detector.Detect(raw)
	if err == nil {
		return result
	}
	c.logger.Error("Detection failed: %v", err)
	return detector.Result{Annotated: raw.Clone()}
}

func (c *Controller) publish(ctx context.Context, msg string, raw, annotated gocv.Mat) bool {
	if !message.Fits(msg) {
		c.logger.Warning("message is too long! -> %s", msg)
		return false
	}

	return c.publisher.Publish(ctx, msg, raw, annotated)
}

func (c *Controller) writeLine(text string, line int) {
	if err := c.display.WriteLine(text, line); err != nil {
		c.logger.Warning("Failed to write display line %d: %v", line, err)
	}
}

func (c *Controller) enter(runID string, s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.StateChanged(runID, s)
	}
}
