// Package lcd drives a 16x2 HD44780 character LCD behind a PCF8574 I2C
// backpack. The controller runs in 4-bit mode: every byte is sent as two
// nibbles, each latched by pulsing the enable bit.
package lcd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

const (
	// Width is the number of characters per display line.
	Width = 16

	modeCommand byte = 0x00
	modeData    byte = 0x01

	backlight byte = 0x08
	enable    byte = 0x04

	cmdClear byte = 0x01
	cmdLine1 byte = 0x80
	cmdLine2 byte = 0xC0

	// pulseDelay is the settle time around each enable edge.
	pulseDelay = 500 * time.Microsecond
)

// initSequence switches the controller to 4-bit mode, sets entry mode,
// turns the display on without cursor, selects two lines and clears.
var initSequence = []byte{0x33, 0x32, 0x06, 0x0C, 0x28, cmdClear}

// Driver owns the I2C device of the display for the process lifetime.
type Driver struct {
	dev   *i2c.Dev
	sleep func(time.Duration)
}

// New binds a driver to the backpack at addr on bus. The bus stays owned by
// the caller, who must keep it open for as long as the driver is used.
func New(bus i2c.Bus, addr uint16) *Driver {
	return &Driver{
		dev:   &i2c.Dev{Bus: bus, Addr: addr},
		sleep: time.Sleep,
	}
}

// Initialize sends the controller initialization sequence. It must be called
// once before any other write.
func (d *Driver) Initialize() error {
	for _, b := range initSequence {
		if err := d.sendByte(b, modeCommand); err != nil {
			return fmt.Errorf("lcd init: %w", err)
		}
	}
	d.sleep(pulseDelay)
	return nil
}

// Clear sends the clear-display command.
func (d *Driver) Clear() error {
	return d.sendByte(cmdClear, modeCommand)
}

// WriteLine writes text to line 1 or 2, padded with spaces or truncated to
// Width. Any other line number is ignored.
func (d *Driver) WriteLine(text string, line int) error {
	var addr byte
	switch line {
	case 1:
		addr = cmdLine1
	case 2:
		addr = cmdLine2
	default:
		return nil
	}

	if err := d.sendByte(addr, modeCommand); err != nil {
		return fmt.Errorf("lcd line %d: %w", line, err)
	}
	for _, c := range Fit(text) {
		if err := d.sendByte(c, modeData); err != nil {
			return fmt.Errorf("lcd line %d: %w", line, err)
		}
	}
	return nil
}

// Fit converts text to exactly Width bytes of display characters. Runes
// outside printable ASCII are shown as '?'.
func Fit(text string) []byte {
	out := make([]byte, 0, Width)
	for _, r := range text {
		if len(out) == Width {
			break
		}
		if r < 0x20 || r > 0x7e {
			r = '?'
		}
		out = append(out, byte(r))
	}
	for len(out) < Width {
		out = append(out, ' ')
	}
	return out
}

// RightJustify pads text on the left so it ends at the last column.
func RightJustify(text string) string {
	return fmt.Sprintf("%*s", Width, text)
}

func (d *Driver) sendByte(bits, mode byte) error {
	high := mode | (bits & 0xF0) | backlight
	low := mode | ((bits << 4) & 0xF0) | backlight

	if err := d.write(high); err != nil {
		return err
	}
	if err := d.toggleEnable(high); err != nil {
		return err
	}
	if err := d.write(low); err != nil {
		return err
	}
	return d.toggleEnable(low)
}

func (d *Driver) toggleEnable(bits byte) error {
	d.sleep(pulseDelay)
	if err := d.write(bits | enable); err != nil {
		return err
	}
	d.sleep(pulseDelay)
	if err := d.write(bits &^ enable); err != nil {
		return err
	}
	d.sleep(pulseDelay)
	return nil
}

func (d *Driver) write(b byte) error {
	_, err := d.dev.Write([]byte{b})
	return err
}
