package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fcclab/streamlab/internal/encoders"
)

// chain accumulates "!"-separated stages.
type chain []string

func (c *chain) add(stage string, props ...string) {
	parts := append([]string{stage}, props...)
	*c = append(*c, strings.Join(parts, " "))
}

func (c chain) String() string {
	return strings.Join(c, " ! ")
}

// quote wraps values containing spaces or quotes so gst-launch and
// gst_parse_launch read them as one token.
func quote(v string) string {
	if !strings.ContainsAny(v, " \t\"'") {
		return v
	}
	return strconv.Quote(v)
}

// Build returns the description for a publisher:
//
//	source ! raw caps ! [converter ! caps] ! encoder ! h264parse ! payload/mux ! sink
//
// The converter is skipped for capture devices when the encoder accepts the
// requested raw format directly.
func Build(p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	var c chain
	mode := p.Mode()

	switch p.Kind {
	case SourceFile:
		c.add("filesrc", "location="+quote(p.Source))
		c.add("decodebin")
	default:
		c.add("v4l2src", "device="+quote(p.Source), "io-mode=2", "do-timestamp=true")
		c.add(rawCaps(p.Format, p.Width, p.Height))
	}

	if p.Kind == SourceFile || !p.Encoder.AcceptsNative(p.Format) {
		c.add(p.Encoder.Converter)
		if caps := p.Encoder.Caps(mode); caps != "" {
			c.add(caps)
		}
	}

	c.add(p.Encoder.Element, propStrings(p.Encoder.Properties(mode))...)

	if mode == encoders.ModeLive {
		c.add("h264parse", "config-interval=1")
	} else {
		c.add("h264parse")
	}

	port := EffectivePort(p.Protocol, p.Port)
	switch {
	case p.Protocol == ProtocolRTMP && mode == encoders.ModeLive:
		timeout := p.RTMPTimeout
		if timeout <= 0 {
			timeout = DefaultRTMPTimeout
		}
		c.add("flvmux", "streamable=true")
		c.add("rtmp2sink", "name="+SinkName, "location="+strconv.Quote(p.RTMPURL()), "sync=false", "timeout="+strconv.Itoa(timeout))
	case p.Protocol == ProtocolRTMP:
		c.add("flvmux", "streamable=true")
		c.add("rtmpsink", "name="+SinkName, "location="+quote(p.RTMPURL()), "sync=true")
	default:
		bufferSize := "1048576"
		if mode == encoders.ModeFile {
			bufferSize = "1"
		}
		c.add("rtph264pay", "config-interval=1", "pt=96", "mtu=1400")
		c.add("udpsink", "name="+SinkName, "host="+p.Host, "port="+strconv.Itoa(port), "sync=false", "buffer-size="+bufferSize)
	}

	return c.String(), nil
}

func rawCaps(format string, width, height int) string {
	caps := []string{"video/x-raw"}
	if format != "" {
		caps = append(caps, "format="+format)
	}
	if width > 0 && height > 0 {
		caps = append(caps, fmt.Sprintf("width=%d", width), fmt.Sprintf("height=%d", height))
	}
	return strings.Join(caps, ",")
}

func propStrings(props []encoders.Prop) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.String()
	}
	return out
}

// LaunchBinary is the GStreamer command line launcher.
const LaunchBinary = "gst-launch-1.0"

// LaunchArgs turns a description into a gst-launch-1.0 argument vector.
// -e makes gst-launch send EOS on interrupt so muxers finish cleanly.
func LaunchArgs(description string) ([]string, error) {
	tokens, err := splitDescription(description)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty description", ErrInvalidParams)
	}
	return append([]string{LaunchBinary, "-e"}, tokens...), nil
}

// splitDescription splits on whitespace outside double quotes and strips
// the quotes, which is how a shell would hand the tokens to gst-launch.
func splitDescription(description string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inQuote, inToken := false, false

	for i := 0; i < len(description); i++ {
		ch := description[i]
		switch {
		case ch == '\\' && inQuote && i+1 < len(description):
			i++
			current.WriteByte(description[i])
		case ch == '"':
			inQuote = !inQuote
			inToken = true
		case !inQuote && (ch == ' ' || ch == '\t' || ch == '\n'):
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteByte(ch)
			inToken = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unbalanced quote in description", ErrInvalidParams)
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
