package monitor

import (
	"encoding/json"
	"sync"

	"yuributton/internal/dto"
	"yuributton/internal/lcd"
	"yuributton/internal/pipeline"
)

// Display is the character display being mirrored.
type Display interface {
	Clear() error
	WriteLine(text string, line int) error
}

// Mirror forwards display writes to the real display and keeps a copy of
// what the LCD shows, publishing every change to the hub. It also relays
// pipeline state transitions.
type Mirror struct {
	display Display
	hub     *HubService
	mu      sync.RWMutex
	lines   [2]string
}

func NewMirror(display Display) *Mirror {
	blank := string(lcd.Fit(""))
	return &Mirror{display: display, lines: [2]string{blank, blank}}
}

// Attach sets the hub receiving events.
func (m *Mirror) Attach(hub *HubService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hub = hub
}

func (m *Mirror) Clear() error {
	if err := m.display.Clear(); err != nil {
		return err
	}
	blank := string(lcd.Fit(""))
	m.update(1, blank)
	m.update(2, blank)
	return nil
}

func (m *Mirror) WriteLine(text string, line int) error {
	if err := m.display.WriteLine(text, line); err != nil {
		return err
	}
	if line == 1 || line == 2 {
		m.update(line, string(lcd.Fit(text)))
	}
	return nil
}

// StateChanged implements pipeline.Observer.
func (m *Mirror) StateChanged(runID string, state pipeline.State) {
	m.publish(dto.Event{Type: dto.EventState, Run: runID, State: state.String()})
}

// Lines returns the current content of both lines.
func (m *Mirror) Lines() [2]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lines
}

// Snapshot encodes the current display as one event per line.
func (m *Mirror) Snapshot() [][]byte {
	lines := m.Lines()
	messages := make([][]byte, 0, len(lines))
	for i, text := range lines {
		data, err := json.Marshal(dto.Event{Type: dto.EventDisplay, Line: i + 1, Text: text})
		if err != nil {
			continue
		}
		messages = append(messages, data)
	}
	return messages
}

func (m *Mirror) update(line int, text string) {
	m.mu.Lock()
	m.lines[line-1] = text
	m.mu.Unlock()
	m.publish(dto.Event{Type: dto.EventDisplay, Line: line, Text: text})
}

func (m *Mirror) publish(event dto.Event) {
	m.mu.RLock()
	hub := m.hub
	m.mu.RUnlock()
	if hub == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	hub.Broadcast(data)
}
