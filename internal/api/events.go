package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/fcclab/streamlab/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time viewer state, recording, publisher and settings events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"viewer-state":      events.ViewerStateChangedEvent{},
		"recording-started": events.RecordingStartedEvent{},
		"recording-stopped": events.RecordingStoppedEvent{},
		"publisher-status":  events.PublisherStatusEvent{},
		"settings-reloaded": events.SettingsReloadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ViewerStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingStoppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PublisherStatusEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SettingsReloadedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// The current state goes first so clients need no separate GET.
		st := s.viewer.Status()
		if err := send.Data(events.ViewerStateChangedEvent{
			State:     st.State.String(),
			Previous:  st.State.String(),
			URL:       st.URL,
			Retries:   st.Retries,
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
