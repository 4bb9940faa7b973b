// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kavlartius217/meditrust/internal/config"
	"github.com/kavlartius217/meditrust/internal/infrastructure"
	"github.com/kavlartius217/meditrust/pkg/middleware"
	"github.com/kavlartius217/meditrust/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// When auth is enabled the OIDC issuer is discovered here, so an unreachable
// issuer fails startup.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain, err := NewDomain(runtime)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))

	if cfg.Auth.Enabled {
		verifier, err := middleware.NewVerifier(context.Background(), &cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		m.Use(middleware.Auth(verifier, runtime.Logger))
	}

	return m, nil
}
