package pipeline

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"yuributton/internal/camera"
	"yuributton/internal/config"
	"yuributton/internal/detector"
	"yuributton/internal/lcd"
	"yuributton/internal/logger"
	"yuributton/internal/message"
)

// ========================================
// Fakes
// ========================================

type fakeDisplay struct {
	lines [3]string
	calls []string
}

func (d *fakeDisplay) Clear() error {
	d.lines[1], d.lines[2] = string(lcd.Fit("")), string(lcd.Fit(""))
	d.calls = append(d.calls, "clear")
	return nil
}

func (d *fakeDisplay) WriteLine(text string, line int) error {
	if line != 1 && line != 2 {
		return nil
	}
	d.lines[line] = string(lcd.Fit(text))
	d.calls = append(d.calls, string(rune('0'+line))+":"+text)
	return nil
}

type fakeCamera struct {
	err   error
	calls int
}

func (c *fakeCamera) Capture() (gocv.Mat, error) {
	c.calls++
	if c.err != nil {
		return gocv.Mat{}, c.err
	}
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3), nil
}

type fakeDetector struct {
	count int
	err   error
}

func (d *fakeDetector) Detect(frame gocv.Mat) (detector.Result, error) {
	if d.err != nil {
		return detector.Result{}, d.err
	}
	boxes := make([]image.Rectangle, d.count)
	for i := range boxes {
		boxes[i] = image.Rect(i*10, 0, i*10+8, 8)
	}
	return detector.Annotate(frame, boxes)
}

type fakeTitles struct {
	title  string
	onCall func()
}

func (f *fakeTitles) Title(ctx context.Context) string {
	if f.onCall != nil {
		f.onCall()
	}
	return f.title
}

type postCall struct {
	message, rawID, annotatedID string
}

type fakePublisher struct {
	ids     []string // returned by successive uploads
	postOK  bool
	uploads int
	posts   []postCall
	lastCtx context.Context
}

func (p *fakePublisher) Publish(ctx context.Context, msg string, raw, annotated gocv.Mat) bool {
	rawID := p.upload(ctx)
	annotatedID := p.upload(ctx)
	return p.post(ctx, msg, rawID, annotatedID)
}

func (p *fakePublisher) upload(ctx context.Context) string {
	p.lastCtx = ctx
	p.uploads++
	if p.uploads <= len(p.ids) {
		return p.ids[p.uploads-1]
	}
	return ""
}

func (p *fakePublisher) post(ctx context.Context, msg, rawID, annotatedID string) bool {
	p.lastCtx = ctx
	if rawID == "" && annotatedID == "" {
		return false
	}
	p.posts = append(p.posts, postCall{msg, rawID, annotatedID})
	return p.postOK
}

type recordingObserver struct {
	mu     sync.Mutex
	states []State
	runs   map[string]bool
}

func (o *recordingObserver) StateChanged(runID string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = map[string]bool{}
	}
	o.runs[runID] = true
	o.states = append(o.states, s)
}

type harness struct {
	ctrl      *Controller
	display   *fakeDisplay
	camera    *fakeCamera
	detector  *fakeDetector
	titles    *fakeTitles
	publisher *fakePublisher
	sleeps    []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	t.Cleanup(log.Close)

	h := &harness{
		display:   &fakeDisplay{},
		camera:    &fakeCamera{},
		detector:  &fakeDetector{},
		titles:    &fakeTitles{},
		publisher: &fakePublisher{ids: []string{"raw-1", "det-2"}, postOK: true},
	}
	cfg := &config.Config{PollInterval: time.Millisecond, ResultDwell: 3 * time.Second}
	h.ctrl = NewController(h.display, h.camera, h.detector, h.titles, h.publisher, cfg, log)
	h.ctrl.sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }
	return h
}

func indexOf(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}

// ========================================
// Scenarios
// ========================================

func TestHandleTrigger_GroupSuccess(t *testing.T) {
	h := newHarness(t)
	h.detector.count = 4

	run := h.ctrl.HandleTrigger(context.Background())

	if run.Err != nil {
		t.Fatalf("Unexpected run error: %v", run.Err)
	}
	if run.Count != 4 {
		t.Errorf("Expected count 4, got %d", run.Count)
	}
	if run.Message != message.GroupTemplate {
		t.Errorf("Expected group template, got %q", run.Message)
	}
	if !run.Published {
		t.Error("Expected run to be published")
	}
	if len(h.publisher.posts) != 1 || h.publisher.posts[0] != (postCall{message.GroupTemplate, "raw-1", "det-2"}) {
		t.Errorf("Unexpected posts: %+v", h.publisher.posts)
	}

	success := indexOf(h.display.calls, "2:"+SuccessText)
	if success < 0 {
		t.Fatalf("Expected success line, calls: %v", h.display.calls)
	}
	if string(lcd.Fit(SuccessText)) != "      ->success!" {
		t.Errorf("Unexpected success text %q", SuccessText)
	}
	banner := indexOf(h.display.calls, "1:"+BannerText)
	if banner < success {
		t.Error("Expected banner after the result line")
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != 3*time.Second {
		t.Errorf("Expected a single 3s dwell, got %v", h.sleeps)
	}
	if h.display.lines[1] != "YURI Button     " || h.display.lines[2] != "     YURI Button" {
		t.Errorf("Expected idle banner, got %q / %q", h.display.lines[1], h.display.lines[2])
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("Expected idle state, got %v", h.ctrl.State())
	}
}

func TestHandleTrigger_DisplaySequence(t *testing.T) {
	h := newHarness(t)
	h.detector.count = 1

	h.ctrl.HandleTrigger(context.Background())

	expected := []string{
		"clear",
		"1:" + PressedText,
		"1:" + UploadingText,
		"2:" + SuccessText,
		"1:" + BannerText,
		"2:" + lcd.RightJustify(BannerText),
	}
	if strings.Join(h.display.calls, "|") != strings.Join(expected, "|") {
		t.Errorf("Unexpected display calls:\n got  %v\n want %v", h.display.calls, expected)
	}
}

func TestHandleTrigger_CaptureFails(t *testing.T) {
	h := newHarness(t)
	h.camera.err = camera.ErrNoFrame
	h.display.lines[2] = "previous line 2 "

	run := h.ctrl.HandleTrigger(context.Background())

	if !errors.Is(run.Err, camera.ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame, got %v", run.Err)
	}
	if h.display.lines[1] != "pressed!        " {
		t.Errorf("Expected display stuck on pressed!, got %q", h.display.lines[1])
	}
	// Cleared on press, then left alone.
	if h.display.lines[2] != strings.Repeat(" ", lcd.Width) {
		t.Errorf("Expected line 2 blank, got %q", h.display.lines[2])
	}
	if indexOf(h.display.calls, "1:"+UploadingText) >= 0 || indexOf(h.display.calls, "1:"+BannerText) >= 0 {
		t.Errorf("Expected no further display writes, got %v", h.display.calls)
	}
	if h.publisher.uploads != 0 || len(h.publisher.posts) != 0 {
		t.Error("Expected no publishing after capture failure")
	}
	if len(h.sleeps) != 0 {
		t.Error("Expected no dwell after capture failure")
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("Expected idle state, got %v", h.ctrl.State())
	}
}

func TestHandleTrigger_ZeroFacesRawUploadFails(t *testing.T) {
	for _, postOK := range []bool{true, false} {
		h := newHarness(t)
		h.detector.count = 0
		h.publisher.ids = []string{"", "det-2"}
		h.publisher.postOK = postOK

		run := h.ctrl.HandleTrigger(context.Background())

		if run.Message != message.PairTemplate {
			t.Errorf("Expected pair template for zero faces, got %q", run.Message)
		}
		if len(h.publisher.posts) != 1 {
			t.Fatalf("Expected post to be attempted, got %d", len(h.publisher.posts))
		}
		if p := h.publisher.posts[0]; p.rawID != "" || p.annotatedID != "det-2" {
			t.Errorf("Expected one empty id, got %+v", p)
		}
		if run.Published != postOK {
			t.Errorf("Expected published=%v, got %v", postOK, run.Published)
		}
		want := "2:" + FailedText
		if postOK {
			want = "2:" + SuccessText
		}
		if indexOf(h.display.calls, want) < 0 {
			t.Errorf("Expected %q, got %v", want, h.display.calls)
		}
	}
}

func TestHandleTrigger_BothUploadsFail(t *testing.T) {
	h := newHarness(t)
	h.publisher.ids = nil

	run := h.ctrl.HandleTrigger(context.Background())

	if run.Published {
		t.Error("Expected failure when no media was uploaded")
	}
	if indexOf(h.display.calls, "2:"+FailedText) < 0 {
		t.Errorf("Expected failed line, got %v", h.display.calls)
	}
}

func TestHandleTrigger_TitleAppended(t *testing.T) {
	h := newHarness(t)
	h.detector.count = 2
	h.titles.title = "Show X"

	run := h.ctrl.HandleTrigger(context.Background())

	if run.Message != message.PairTemplate+" => Show X" {
		t.Errorf("Unexpected message %q", run.Message)
	}
	if h.publisher.posts[0].message != run.Message {
		t.Errorf("Expected posted message %q, got %q", run.Message, h.publisher.posts[0].message)
	}
}

func TestHandleTrigger_MessageTooLong(t *testing.T) {
	h := newHarness(t)
	h.titles.title = strings.Repeat("長", message.MaxLength)

	run := h.ctrl.HandleTrigger(context.Background())

	if run.Published {
		t.Error("Expected overlong message not to be published")
	}
	if h.publisher.uploads != 0 || len(h.publisher.posts) != 0 {
		t.Error("Expected no upload for an overlong message")
	}
	if indexOf(h.display.calls, "2:"+FailedText) < 0 {
		t.Errorf("Expected failed line, got %v", h.display.calls)
	}
	if h.display.lines[1] != "YURI Button     " {
		t.Errorf("Expected banner restored, got %q", h.display.lines[1])
	}
}

func TestHandleTrigger_DetectorErrorContinues(t *testing.T) {
	h := newHarness(t)
	h.detector.err = errors.New("cascade exploded")

	run := h.ctrl.HandleTrigger(context.Background())

	if run.Count != 0 || run.Err != nil {
		t.Errorf("Expected run to continue with zero faces, got %+v", run)
	}
	if h.publisher.uploads != 2 {
		t.Errorf("Expected 2 uploads, got %d", h.publisher.uploads)
	}
}

func TestHandleTrigger_ObserverTransitions(t *testing.T) {
	h := newHarness(t)
	obs := &recordingObserver{}
	h.ctrl.SetObserver(obs)

	h.ctrl.HandleTrigger(context.Background())

	expected := []State{StatePressed, StateCapturing, StateDetecting, StateUploading, StatePublishing, StateResult, StateIdle}
	if len(obs.states) != len(expected) {
		t.Fatalf("Expected %d transitions, got %v", len(expected), obs.states)
	}
	for i, s := range expected {
		if obs.states[i] != s {
			t.Errorf("transition %d: expected %v, got %v", i, s, obs.states[i])
		}
	}
	if len(obs.runs) != 1 {
		t.Errorf("Expected a single run id, got %d", len(obs.runs))
	}
}

func TestHandleTrigger_UniqueRunIDs(t *testing.T) {
	h := newHarness(t)

	first := h.ctrl.HandleTrigger(context.Background())
	second := h.ctrl.HandleTrigger(context.Background())

	if first.ID == "" || first.ID == second.ID {
		t.Errorf("Expected distinct run ids, got %q and %q", first.ID, second.ID)
	}
}

// ========================================
// Polling loop
// ========================================

type scriptedTrigger struct {
	presses []bool
	polls   int
	onPoll  func(n int)
}

func (s *scriptedTrigger) Pressed() bool {
	s.polls++
	if s.onPoll != nil {
		s.onPoll(s.polls)
	}
	if s.polls <= len(s.presses) {
		return s.presses[s.polls-1]
	}
	return false
}

func TestLoop_RunsOnPressAndStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := &scriptedTrigger{presses: []bool{false, true, false}}
	trigger.onPoll = func(n int) {
		if n == 4 {
			cancel()
		}
	}

	err := h.ctrl.Loop(ctx, trigger)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if h.camera.calls != 1 {
		t.Errorf("Expected exactly one run, got %d", h.camera.calls)
	}
}

func TestLoop_CancelDuringRunCompletesRun(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.titles.onCall = cancel

	err := h.ctrl.Loop(ctx, &scriptedTrigger{presses: []bool{true}})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if h.publisher.lastCtx == nil || h.publisher.lastCtx.Err() != nil {
		t.Error("Expected the run to publish with a live context")
	}
	if len(h.publisher.posts) != 1 {
		t.Errorf("Expected the started run to finish, got %d posts", len(h.publisher.posts))
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("Expected idle after run, got %v", h.ctrl.State())
	}
}

func TestBanner(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Banner()

	if h.display.lines[1] != "YURI Button     " {
		t.Errorf("Unexpected line 1 %q", h.display.lines[1])
	}
	if h.display.lines[2] != "     YURI Button" {
		t.Errorf("Unexpected line 2 %q", h.display.lines[2])
	}
}

func TestState_String(t *testing.T) {
	if StatePublishing.String() != "publishing" || State(99).String() != "unknown" {
		t.Error("Unexpected state names")
	}
}
