package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alterity-ai/alterity/internal/api/response"
	"github.com/alterity-ai/alterity/internal/store"
	"github.com/alterity-ai/alterity/pkg/models"
)

// ConfigKeyAvailableModels is the configuration row holding the model catalog.
const ConfigKeyAvailableModels = "AVAILABLE_MODELS"

// defaultModels is served when the catalog row is missing or unreadable.
var defaultModels = []models.ModelOption{
	{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
	{ID: "gpt-4o", Name: "GPT-4o"},
	{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo"},
	{ID: "claude-3-opus", Name: "Claude 3 Opus"},
}

// PlatformReader defines the interface the platform config handler depends on.
type PlatformReader interface {
	GetConfiguration(ctx context.Context, key string) (*models.Configuration, error)
	ListFeatureFlags(ctx context.Context) ([]*models.FeatureFlag, error)
}

// NewPlatformConfigHandler returns an http.HandlerFunc for
// GET /api/v1/platform/config.
func NewPlatformConfigHandler(st PlatformReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog := defaultModels
		cfg, err := st.GetConfiguration(r.Context(), ConfigKeyAvailableModels)
		switch {
		case err == nil:
			var parsed []models.ModelOption
			if jsonErr := json.Unmarshal(cfg.Value, &parsed); jsonErr != nil || len(parsed) == 0 {
				slog.Warn("unusable model catalog, serving defaults", "error", jsonErr)
			} else {
				catalog = parsed
			}
		case errors.Is(err, store.ErrNotFound):
			// Seed row absent, defaults apply.
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		flags, err := st.ListFeatureFlags(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		flagMap := make(map[string]bool, len(flags))
		for _, f := range flags {
			flagMap[f.Name] = f.IsEnabled
		}

		response.JSON(w, platformConfigResponse{
			Models:       catalog,
			FeatureFlags: flagMap,
		})
	}
}

type platformConfigResponse struct {
	Models       []models.ModelOption `json:"models"`
	FeatureFlags map[string]bool      `json:"feature_flags"`
}
