package events

// Event type constants for kelindar/event.
const (
	TypeViewerStateChanged uint32 = iota + 1
	TypeRecordingStarted
	TypeRecordingStopped
	TypePublisherStatus
	TypeSettingsReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ViewerStateChangedEvent is published on every viewer state transition.
type ViewerStateChangedEvent struct {
	State     string `json:"state" example:"open" doc:"New viewer state"`
	Previous  string `json:"previous" example:"connecting" doc:"Previous viewer state"`
	URL       string `json:"url" example:"rtsp://192.168.1.10:8554/front" doc:"Stream URL"`
	Retries   int    `json:"retries" example:"0" doc:"Consecutive connection failures"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ViewerStateChangedEvent.
func (e ViewerStateChangedEvent) Type() uint32 { return TypeViewerStateChanged }

// RecordingStartedEvent is published when the recording branch is linked.
type RecordingStartedEvent struct {
	ID        string `json:"id" example:"5b1f0c6e-8d7a-4a43-9f0e-2d4c6f1e9a21" doc:"Recording session ID"`
	Path      string `json:"path" example:"/var/lib/streamlab/recording_20250127_103000.mp4" doc:"Output file"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStartedEvent.
func (e RecordingStartedEvent) Type() uint32 { return TypeRecordingStarted }

// RecordingStoppedEvent is published after the recording branch is removed.
type RecordingStoppedEvent struct {
	ID        string `json:"id" doc:"Recording session ID"`
	Path      string `json:"path" doc:"Output file"`
	Bytes     int64  `json:"bytes" example:"1048576" doc:"Final file size"`
	Error     string `json:"error,omitempty" doc:"Teardown error, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:31:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStoppedEvent.
func (e RecordingStoppedEvent) Type() uint32 { return TypeRecordingStopped }

// PublisherStatusEvent is published once per status tick of a publisher.
type PublisherStatusEvent struct {
	Target    string `json:"target" example:"rtmp://10.0.0.2:1935/stream/go2/front" doc:"Destination"`
	Attempt   int    `json:"attempt" example:"1" doc:"Connection attempt"`
	Bytes     uint64 `json:"bytes" example:"4096" doc:"Bytes sent by the sink"`
	Stalled   bool   `json:"stalled" doc:"Whether the byte counter stopped moving"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PublisherStatusEvent.
func (e PublisherStatusEvent) Type() uint32 { return TypePublisherStatus }

// SettingsReloadedEvent is published when the settings file changed on disk.
type SettingsReloadedEvent struct {
	URLs      int    `json:"urls" example:"3" doc:"Number of configured stream URLs"`
	URLIndex  int    `json:"url_index" example:"0" doc:"Selected URL index"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SettingsReloadedEvent.
func (e SettingsReloadedEvent) Type() uint32 { return TypeSettingsReloaded }
