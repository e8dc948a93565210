// Package pipeline builds GStreamer pipeline descriptions for the
// publishers and the viewer.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fcclab/streamlab/internal/encoders"
)

// Protocol selects how a publisher pushes video to the media server.
type Protocol string

// Supported protocols.
const (
	ProtocolUDP  Protocol = "udp"  // RTP over UDP
	ProtocolRTMP Protocol = "rtmp" // FLV over RTMP
)

// Default media server ports per protocol.
const (
	DefaultUDPPort  = 8000
	DefaultRTMPPort = 1935
)

// DefaultRTMPTimeout is the rtmp2sink connection timeout in seconds.
const DefaultRTMPTimeout = 2

// SinkName is the name given to the network sink in publisher descriptions.
const SinkName = "mysink"

// ErrInvalidParams wraps all parameter validation failures.
var ErrInvalidParams = errors.New("invalid pipeline parameters")

// ParseProtocol parses "udp" or "rtmp", case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtocolUDP, ProtocolRTMP:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown protocol %q (want udp or rtmp)", ErrInvalidParams, s)
	}
}

// DefaultPort returns the media server port conventionally used by p.
func (p Protocol) DefaultPort() int {
	if p == ProtocolRTMP {
		return DefaultRTMPPort
	}
	return DefaultUDPPort
}

// EffectivePort returns the port to use for protocol. Zero selects the
// protocol default, and a port equal to the other protocol's default is
// corrected to this protocol's default. Any other port is kept.
func EffectivePort(protocol Protocol, port int) int {
	switch {
	case port == 0:
		return protocol.DefaultPort()
	case protocol == ProtocolRTMP && port == DefaultUDPPort:
		return DefaultRTMPPort
	case protocol == ProtocolUDP && port == DefaultRTMPPort:
		return DefaultUDPPort
	default:
		return port
	}
}

// SourceKind distinguishes capture devices from media files.
type SourceKind int

// Source kinds.
const (
	SourceDevice SourceKind = iota
	SourceFile
)

// Params describes one publisher pipeline.
type Params struct {
	Source string
	Kind   SourceKind

	// Format, Width and Height constrain the raw caps of a capture device.
	// Empty or zero values let the device negotiate.
	Format string
	Width  int
	Height int

	Host     string
	Port     int
	Path     string
	Protocol Protocol

	// RTMPTimeout is passed to rtmp2sink for live RTMP publishing.
	RTMPTimeout int

	Encoder encoders.Profile
}

// Mode returns the encoder mode matching the source kind.
func (p Params) Mode() encoders.Mode {
	if p.Kind == SourceFile {
		return encoders.ModeFile
	}
	return encoders.ModeLive
}

// Validate checks required fields.
func (p Params) Validate() error {
	var problems []string
	if p.Source == "" {
		problems = append(problems, "source is required")
	}
	if p.Host == "" {
		problems = append(problems, "server host is required")
	}
	if p.Port < 0 || p.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", p.Port))
	}
	if p.Protocol != ProtocolUDP && p.Protocol != ProtocolRTMP {
		problems = append(problems, fmt.Sprintf("unknown protocol %q", p.Protocol))
	}
	if p.Encoder.Element == "" {
		problems = append(problems, "encoder is required")
	}
	if p.Width < 0 || p.Height < 0 {
		problems = append(problems, "resolution must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(problems, "; "))
	}
	return nil
}

// ParseResolution parses "WIDTHxHEIGHT".
func ParseResolution(s string) (width, height int, err error) {
	if s == "" {
		return 0, 0, nil
	}
	if _, err := fmt.Sscanf(strings.ToLower(s), "%dx%d", &width, &height); err != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: resolution %q (want WIDTHxHEIGHT)", ErrInvalidParams, s)
	}
	return width, height, nil
}

// RTMPURL returns the publish URL for RTMP.
func (p Params) RTMPURL() string {
	return fmt.Sprintf("rtmp://%s:%d%s", p.Host, EffectivePort(p.Protocol, p.Port), normalizePath(p.Path))
}

func normalizePath(path string) string {
	if path == "" || strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

// Target returns the destination as a URL, used to label logs and metrics.
func (p Params) Target() string {
	if p.Protocol == ProtocolRTMP {
		return p.RTMPURL()
	}
	return fmt.Sprintf("udp://%s:%d", p.Host, EffectivePort(p.Protocol, p.Port))
}
