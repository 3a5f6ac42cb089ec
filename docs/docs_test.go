package docs_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/docs"
	"github.com/sitecraft/backend/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestSwaggerDocCoversRoutes(t *testing.T) {
	raw, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var doc struct {
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, "/api/v1", doc.BasePath)

	router := handlers.NewRouter(&handlers.Handler{}, handlers.RouterConfig{Logger: zerolog.Nop()})
	err = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		path, ok := strings.CutPrefix(route, doc.BasePath)
		if !ok {
			return nil
		}
		ops, found := doc.Paths[path]
		if assert.True(t, found, "undocumented path %s", path) {
			assert.Contains(t, ops, strings.ToLower(method), "undocumented %s %s", method, path)
		}
		return nil
	})
	require.NoError(t, err)
}
