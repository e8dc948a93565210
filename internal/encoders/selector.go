package encoders

import (
	"context"
	"fmt"

	"github.com/fcclab/streamlab/internal/logging"
)

// Availability is the probe result for one profile.
type Availability struct {
	Profile   Profile `json:"profile"`
	Available bool    `json:"available"`
}

// Report lists every profile with its availability and the chosen one.
type Report struct {
	Encoders []Availability `json:"encoders"`
	Selected Profile        `json:"selected"`
}

// Select returns the first available profile in priority order. When no
// hardware encoder is found the software profile is returned without
// probing it, matching gst-launch behavior of failing later on a missing
// x264enc.
func Select(ctx context.Context, prober Prober) (Profile, error) {
	logger := logging.GetLogger("encoders")
	for _, p := range priority {
		if p.Element == Software.Element {
			break
		}
		ok, err := prober.HasElement(ctx, p.Element)
		if err != nil {
			return Profile{}, fmt.Errorf("probe %s: %w", p.Element, err)
		}
		if ok {
			logger.Info("Using hardware encoder", "encoder", p.Element, "description", p.Description)
			return p, nil
		}
		logger.Debug("Encoder not available", "encoder", p.Element)
	}
	logger.Info("Using software encoder", "encoder", Software.Element)
	return Software, nil
}

// Probe checks every profile, including software, and reports the selection.
func Probe(ctx context.Context, prober Prober) (*Report, error) {
	report := &Report{}
	selected := false
	for _, p := range priority {
		ok, err := prober.HasElement(ctx, p.Element)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", p.Element, err)
		}
		report.Encoders = append(report.Encoders, Availability{Profile: p, Available: ok})
		if ok && !selected {
			report.Selected = p
			selected = true
		}
	}
	if !selected {
		report.Selected = Software
	}
	return report, nil
}
