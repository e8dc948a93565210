package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fcclab/streamlab/internal/api/models"
	"github.com/fcclab/streamlab/internal/settings"
)

func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Get Settings",
		Description: "Get the configured streams and the selected index",
		Tags:        []string{"settings"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SettingsResponse, error) {
		return settingsResponse(s.settings.Current()), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "put-settings",
		Method:      http.MethodPut,
		Path:        "/api/settings",
		Summary:     "Replace Settings",
		Description: "Replace the stream list and selection and save them. Window geometry and unknown keys are kept.",
		Tags:        []string{"settings"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, input *models.SettingsRequest) (*models.SettingsResponse, error) {
		for i, st := range input.Body.URLs {
			if st.Name == "" || st.URL == "" {
				return nil, huma.Error422UnprocessableEntity("Stream entries need a name and a url",
					&huma.ErrorDetail{Location: "body.urls", Value: i})
			}
		}
		next, err := s.settings.Update(func(st *settings.Settings) error {
			st.URLs = append([]settings.Stream(nil), input.Body.URLs...)
			return st.SetURLIndex(input.Body.URLIndex)
		})
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("Selected index out of range", err)
		}
		return settingsResponse(next), nil
	})
}

func settingsResponse(st *settings.Settings) *models.SettingsResponse {
	urls := st.URLs
	if urls == nil {
		urls = []settings.Stream{}
	}
	return &models.SettingsResponse{
		Body: models.SettingsData{URLs: urls, URLIndex: st.URLIndex},
	}
}
