// Package encoders describes the H.264 encoders streamlab can drive and
// picks the best one available on the host.
package encoders

import "strings"

// Mode selects which property set a profile contributes.
type Mode string

// Pipeline modes.
const (
	ModeLive Mode = "live" // camera capture, latency-tuned
	ModeFile Mode = "file" // decoded file input, keyframe every frame
)

// Prop is one element property in description order.
type Prop struct {
	Key   string
	Value string
}

func (p Prop) String() string {
	return p.Key + "=" + p.Value
}

// Props renders properties as "k=v k=v".
func Props(props []Prop) string {
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}

// Profile describes how to feed and configure one encoder element.
type Profile struct {
	// Element is the GStreamer factory name, e.g. "vaapih264enc".
	Element     string `json:"element"`
	Description string `json:"description"`
	HWAccel     bool   `json:"hwaccel"`

	// Converter is placed before the encoder, ConvertCaps right after it.
	Converter   string `json:"converter"`
	ConvertCaps string `json:"convert_caps,omitempty"`
	// FileConvertCaps replaces ConvertCaps for decoded file input.
	FileConvertCaps string `json:"file_convert_caps,omitempty"`

	// NativeFormats are raw system-memory formats the encoder accepts
	// without conversion.
	NativeFormats []string `json:"native_formats,omitempty"`

	LiveProps []Prop `json:"-"`
	FileProps []Prop `json:"-"`
}

// Properties returns the encoder properties for mode.
func (p Profile) Properties(mode Mode) []Prop {
	if mode == ModeFile {
		return p.FileProps
	}
	return p.LiveProps
}

// Caps returns the caps filter placed after the converter for mode.
func (p Profile) Caps(mode Mode) string {
	if mode == ModeFile && p.FileConvertCaps != "" {
		return p.FileConvertCaps
	}
	return p.ConvertCaps
}

// AcceptsNative reports whether raw frames in format can skip conversion.
func (p Profile) AcceptsNative(format string) bool {
	for _, f := range p.NativeFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// Software is the fallback encoder used when no hardware encoder is present.
var Software = Profile{
	Element:         "x264enc",
	Description:     "Software encoder (x264)",
	Converter:       "videoconvert",
	FileConvertCaps: "video/x-raw,format=I420",
	NativeFormats:   []string{"I420", "YV12", "NV12", "Y42B", "Y444"},
	LiveProps: []Prop{
		{"bitrate", "2000"},
		{"speed-preset", "ultrafast"},
		{"tune", "zerolatency"},
		{"keyint", "30"},
		{"sync-lookahead", "0"},
		{"sliced-threads", "true"},
		{"threads", "1"},
	},
}

// priority lists encoders in selection order. Software is always last.
var priority = []Profile{
	{
		Element:     "nvv4l2h264enc",
		Description: "Jetson hardware encoder",
		HWAccel:     true,
		Converter:   "nvvidconv",
		ConvertCaps: "video/x-raw(memory:NVMM),format=NV12",
		LiveProps: []Prop{
			{"bitrate", "2000000"},
			{"iframeinterval", "30"},
			{"insert-sps-pps", "true"},
			{"insert-vui", "true"},
		},
		FileProps: []Prop{{"iframeinterval", "1"}},
	},
	{
		Element:     "nv264enc",
		Description: "NVIDIA GPU encoder",
		HWAccel:     true,
		Converter:   "nvvidconv",
		ConvertCaps: "video/x-raw(memory:NVMM),format=NV12",
		LiveProps: []Prop{
			{"bitrate", "2000000"},
			{"insert-sps-pps", "true"},
		},
	},
	{
		Element:       "vaapih264enc",
		Description:   "VAAPI hardware encoder (Intel/AMD)",
		HWAccel:       true,
		Converter:     "vaapipostproc",
		ConvertCaps:   "video/x-raw,format=NV12",
		NativeFormats: []string{"NV12"},
		LiveProps: []Prop{
			{"bitrate", "2000000"},
			{"tune", "low-latency"},
			{"keyframe-period", "30"},
		},
		FileProps: []Prop{
			{"tune", "low-latency"},
			{"keyframe-period", "1"},
		},
	},
	{
		Element:         "v4l2h264enc",
		Description:     "V4L2 memory-to-memory hardware encoder",
		HWAccel:         true,
		Converter:       "videoconvert",
		FileConvertCaps: "video/x-raw,format=I420",
		NativeFormats:   []string{"NV12", "I420"},
		LiveProps:       []Prop{{"keyframe-interval", "30"}},
		FileProps:       []Prop{{"keyframe-interval", "1"}},
	},
	Software,
}

// Profiles returns every known encoder in selection order.
func Profiles() []Profile {
	return append([]Profile(nil), priority...)
}

// Lookup returns the profile for an element name.
func Lookup(element string) (Profile, bool) {
	for _, p := range priority {
		if p.Element == element {
			return p, true
		}
	}
	return Profile{}, false
}
