//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLine is an output line on the Linux GPIO character device.
type RealLine struct {
	line *gpiocdev.Line
}

// OpenLine requests pin on chip as an output, initially inactive (relay off).
// With activeLow the kernel inverts the physical level, so logical 1 always
// means the relay is energised.
func OpenLine(chip string, pin int, activeLow bool) (*RealLine, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.WithConsumer("thermostat"),
		gpiocdev.AsOutput(0),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request relay pin %d on %s: %w", pin, chip, err)
	}
	return &RealLine{line: line}, nil
}

func (l *RealLine) Value() (int, error) {
	return l.line.Value()
}

func (l *RealLine) SetValue(value int) error {
	return l.line.SetValue(value)
}

// Close switches the relay off before releasing the line, so a stopped
// daemon never leaves the heating running.
func (l *RealLine) Close() error {
	var errs []error
	if err := l.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("switch relay off: %w", err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	return errors.Join(errs...)
}
