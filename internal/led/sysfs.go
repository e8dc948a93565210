package led

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// fastBlinkMS is the on and off time of the fast pattern.
const fastBlinkMS = "100"

// sysfs implements Controller using the Linux LED class interface.
type sysfs struct {
	root string
	name string
}

func newSysfs(name string) *sysfs {
	return &sysfs{root: sysfsLEDPath, name: name}
}

func (s *sysfs) Name() string { return s.name }

// Set writes the trigger and brightness for pattern.
func (s *sysfs) Set(pattern Pattern) error {
	dir := filepath.Join(s.root, s.name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", s.name, dir, err)
	}

	trigger, brightness := "none", "1"
	switch pattern {
	case PatternOff:
		brightness = "0"
	case PatternSolid:
	case PatternBlink:
		trigger = "heartbeat"
	case PatternFast:
		trigger = "timer"
	default:
		return fmt.Errorf("unknown LED pattern %q", pattern)
	}

	if err := s.write(dir, "trigger", trigger); err != nil {
		return err
	}
	if pattern == PatternFast {
		// timer exposes delay_on and delay_off once selected
		if err := s.write(dir, "delay_on", fastBlinkMS); err != nil {
			return err
		}
		if err := s.write(dir, "delay_off", fastBlinkMS); err != nil {
			return err
		}
		return nil
	}
	if trigger == "none" {
		return s.write(dir, "brightness", brightness)
	}
	return nil
}

func (s *sysfs) write(dir, file, value string) error {
	if err := os.WriteFile(filepath.Join(dir, file), []byte(value), 0o644); err != nil {
		return fmt.Errorf("failed to set LED %s: %w", file, err)
	}
	return nil
}
