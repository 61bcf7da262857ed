package button

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Pin is the subset of gpio.PinIO used by the button.
type Pin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	Halt() error
}

// Button reads a push button wired to a digital input. High means pressed.
type Button struct {
	pin Pin
}

// Open looks up the named pin and configures it as a plain input.
func Open(name string) (*Button, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return New(p)
}

// New configures pin as an input without pull resistor or edge detection.
func New(pin Pin) (*Button, error) {
	if err := pin.In(gpio.Float, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure %v as input: %w", pin, err)
	}
	return &Button{pin: pin}, nil
}

// Pressed reports whether the input currently reads high.
func (b *Button) Pressed() bool {
	return b.pin.Read() == gpio.High
}

// Close releases the pin.
func (b *Button) Close() error {
	return b.pin.Halt()
}
