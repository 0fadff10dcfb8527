package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cast"

	"github.com/HerbHall/strata/pkg/plugin"
)

// Upload is the name of the media upload plugin.
const Upload = "upload"

const defaultSizeLimit = 200 * 1024 * 1024

var errUploadConfig = errors.New("invalid upload config")

func upload() plugin.Server {
	return plugin.Server{
		Routes: []plugin.Route{
			{Method: "GET", Path: "/settings", Handler: "settings.find"},
		},
		Controllers: map[string]plugin.Handler{
			"settings.find": uploadSettings,
		},
		Config: &plugin.ConfigSpec{
			DefaultFunc: func(env plugin.Env) (map[string]any, error) {
				return map[string]any{
					"provider":  env.String("UPLOAD_PROVIDER", "local"),
					"sizeLimit": env.Int("UPLOAD_SIZE_LIMIT", defaultSizeLimit),
					"breakpoints": map[string]any{
						"large":  1000,
						"medium": 750,
						"small":  500,
					},
				}, nil
			},
			Validator: validateUpload,
		},
	}
}

func validateUpload(cfg map[string]any) error {
	limit, err := cast.ToInt64E(cfg["sizeLimit"])
	if err != nil {
		return fmt.Errorf("%w: sizeLimit: %v", errUploadConfig, err)
	}
	if limit <= 0 {
		return fmt.Errorf("%w: sizeLimit must be positive, got %d", errUploadConfig, limit)
	}
	if p, ok := cfg["provider"].(string); !ok || p == "" {
		return fmt.Errorf("%w: provider must be a non-empty string", errUploadConfig)
	}
	return nil
}

func uploadSettings(_ context.Context, call plugin.Call) (any, error) {
	if call.Host == nil {
		return nil, fmt.Errorf("no host")
	}
	p, ok := call.Host.Plugin(Upload)
	if !ok {
		return nil, fmt.Errorf("plugin %q not registered", Upload)
	}
	return map[string]any{
		"provider":  p.Config["provider"],
		"sizeLimit": p.Config["sizeLimit"],
	}, nil
}
