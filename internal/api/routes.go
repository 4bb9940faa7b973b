package api

import (
	"net/http"

	"github.com/kavlartius217/meditrust/internal/config"
	"github.com/kavlartius217/meditrust/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	maxUpload := cfg.API.MaxUploadSizeBytes()

	groups := []routes.Group{
		domain.Sessions.Handler(maxUpload).Routes(),
		domain.Documents.Handler(maxUpload).Routes(),
		domain.Artifacts.Handler().Routes(),
		domain.Prompts.Handler().Routes(),
		newStorageHandler(runtime.Storage, runtime.Logger).routes(),
	}
	routes.Register(mux, groups...)

	for _, p := range routes.Patterns(groups...) {
		runtime.Logger.Debug("route registered", "pattern", p, "base", cfg.API.BasePath)
	}
}
