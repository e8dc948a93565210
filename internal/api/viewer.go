package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fcclab/streamlab/internal/api/models"
	"github.com/fcclab/streamlab/internal/settings"
	"github.com/fcclab/streamlab/internal/viewer"
)

func (s *Server) registerViewerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-viewer",
		Method:      http.MethodGet,
		Path:        "/api/viewer",
		Summary:     "Viewer Status",
		Description: "Get the stream state, current URL, recording and control affordances",
		Tags:        []string{"viewer"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ViewerResponse, error) {
		return s.viewerResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "open-stream",
		Method:      http.MethodPost,
		Path:        "/api/viewer/open",
		Summary:     "Open Stream",
		Description: "Open a URL, or select and open a configured stream by index. With an empty body the selected stream is opened. An open stream is closed first.",
		Tags:        []string{"viewer"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422, 500},
	}, func(ctx context.Context, input *models.OpenRequest) (*models.ViewerResponse, error) {
		url, err := s.resolveOpenURL(input.Body)
		if err != nil {
			return nil, err
		}
		if err := s.viewer.Open(ctx, url); err != nil {
			return nil, huma.Error500InternalServerError("Failed to open stream", err)
		}
		return s.viewerResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "close-stream",
		Method:      http.MethodPost,
		Path:        "/api/viewer/close",
		Summary:     "Close Stream",
		Description: "Stop playback. Closing a closed stream does nothing.",
		Tags:        []string{"viewer"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.ViewerResponse, error) {
		if err := s.viewer.Close(ctx); err != nil {
			return nil, huma.Error500InternalServerError("Failed to close stream", err)
		}
		return s.viewerResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-recording",
		Method:        http.MethodPost,
		Path:          "/api/viewer/recording",
		Summary:       "Start Recording",
		Description:   "Record the open stream to a file without re-encoding",
		Tags:          []string{"recording"},
		Security:      withAuth(),
		DefaultStatus: http.StatusCreated,
		Errors:        []int{401, 409, 500},
	}, func(ctx context.Context, input *models.RecordRequest) (*models.ViewerResponse, error) {
		if _, err := s.viewer.StartRecording(ctx, input.Body.Path); err != nil {
			switch {
			case errors.Is(err, viewer.ErrNotOpen):
				return nil, huma.Error409Conflict("Stream is not open", err)
			case errors.Is(err, viewer.ErrAlreadyRecording):
				return nil, huma.Error409Conflict("Recording already active", err)
			default:
				return nil, huma.Error500InternalServerError("Failed to start recording", err)
			}
		}
		return s.viewerResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodDelete,
		Path:        "/api/viewer/recording",
		Summary:     "Stop Recording",
		Description: "Finalize the recording file and detach it. Stopping while idle does nothing.",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.ViewerResponse, error) {
		if err := s.viewer.StopRecording(ctx); err != nil {
			return nil, huma.Error500InternalServerError("Recording stopped with errors", err)
		}
		return s.viewerResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "probe-stream",
		Method:      http.MethodGet,
		Path:        "/api/viewer/probe",
		Summary:     "Probe Stream",
		Description: "Issue an RTSP DESCRIBE and list the announced tracks",
		Tags:        []string{"viewer"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 502},
	}, func(ctx context.Context, input *models.ProbeRequest) (*models.ProbeResponse, error) {
		url := input.URL
		if url == "" {
			sel, ok := s.settings.Current().Selected()
			if !ok {
				return nil, huma.Error400BadRequest("No stream selected")
			}
			url = sel.URL
		}
		result, err := s.probe(ctx, url)
		if err != nil {
			return nil, huma.Error502BadGateway("RTSP DESCRIBE failed", err)
		}
		return &models.ProbeResponse{
			Body: models.ProbeData{Result: *result, HasVideo: result.HasVideo()},
		}, nil
	})
}

// resolveOpenURL picks the URL to open. Selecting by index persists the
// new selection.
func (s *Server) resolveOpenURL(req models.OpenRequestData) (string, error) {
	if req.URL != "" {
		return req.URL, nil
	}
	if req.Index != nil {
		st, err := s.settings.Update(func(st *settings.Settings) error {
			return st.SetURLIndex(*req.Index)
		})
		if err != nil {
			return "", huma.Error422UnprocessableEntity("Unknown stream index", err)
		}
		sel, _ := st.Selected()
		return sel.URL, nil
	}
	sel, ok := s.settings.Current().Selected()
	if !ok {
		return "", huma.Error400BadRequest("No stream selected")
	}
	return sel.URL, nil
}

func (s *Server) viewerResponse() *models.ViewerResponse {
	st := s.viewer.Status()
	data := models.ViewerData{
		State:    st.State.String(),
		URL:      st.URL,
		Retries:  st.Retries,
		Controls: st.Controls,
	}
	if st.Recording {
		data.Recording = &models.RecordingData{
			ID:        st.RecordingID,
			Path:      st.RecordingPath,
			StartedAt: st.RecordingSince,
		}
	}
	return &models.ViewerResponse{Body: data}
}
