package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps a device tree model substring to the LED used for status.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// New returns a controller for the named sysfs LED, or for the board's
// default status LED when name is empty. Unknown boards get a no-op.
func New(logger *slog.Logger, name string) Controller {
	if name != "" {
		logger.Info("Using configured status LED", "led", name)
		return newSysfs(name)
	}

	model := detectBoard(deviceTreeModelPath)
	if led := boardLED(model); led != "" {
		logger.Info("Detected board with status LED", "board_model", model, "led", led)
		return newSysfs(led)
	}
	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger)
}

func boardLED(model string) string {
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			return b.led
		}
	}
	return ""
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// the model string is NUL terminated
	return strings.TrimRight(string(data), "\x00")
}
