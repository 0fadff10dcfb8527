package host

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HerbHall/strata/internal/config"
	"github.com/HerbHall/strata/internal/discovery"
	"github.com/HerbHall/strata/internal/env"
	"github.com/HerbHall/strata/pkg/plugin"
)

const greeterServer = `
local greeting = "unset"

return {
  register = function(host)
    host.log("registering greeter")
  end,
  bootstrap = function(host)
    if not host.hasPlugin("audit") then
      error("audit plugin missing")
    end
    greeting = host.env("GREETING", "hello") .. " from " .. host.config("app.env")
  end,
  controllers = {
    greeter = { hello = function(call) return { message = greeting } end },
  },
}
`

func newApp(t *testing.T, destroyed *[]string) *App {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/app/plugins/greeter/strapi-server.lua", []byte(greeterServer), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/srv/app/config/plugins.yaml", []byte(`
audit:
  enabled: true
greeter:
  resolve: ./plugins/greeter
`), 0o644))

	cfg := config.New(nil)
	config.SetDefaults(cfg.Viper())
	cfg.Set("app.dir", "/srv/app")
	cfg.Set("app.env", "staging")

	catalog := plugin.NewCatalog()
	catalog.MustRegister("audit", func() plugin.Server {
		return plugin.Server{
			Destroy: func(context.Context, plugin.Host) error {
				*destroyed = append(*destroyed, "audit")
				return nil
			},
		}
	})

	return New(Options{
		Fs:      fs,
		Config:  cfg,
		Env:     env.FromMap(map[string]string{"GREETING": "hi"}),
		Catalog: catalog,
		Bundled: discovery.ParseBundledCatalog([]byte("entries:\n  - name: audit\n")),
		Logger:  zaptest.NewLogger(t),
	})
}

func TestAppLifecycle(t *testing.T) {
	var destroyed []string
	app := newApp(t, &destroyed)
	ctx := context.Background()

	_, ok := app.Plugin("audit")
	assert.False(t, ok, "no plugins before Load")
	assert.ErrorIs(t, app.Start(ctx), ErrNotLoaded)

	require.NoError(t, app.Load(ctx))
	assert.Error(t, app.Load(ctx), "second Load must fail")

	assert.Equal(t, []string{"audit", "greeter"}, app.PluginNames())
	report, ok := app.Report()
	require.True(t, ok)
	assert.Equal(t, []string{"audit", "greeter"}, report.Registered)

	require.NoError(t, app.Start(ctx))

	greeter, ok := app.Plugin("greeter")
	require.True(t, ok)
	res, err := greeter.Controllers["greeter.hello"](ctx, plugin.Call{Host: app})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"message": "hi from staging"}, res)

	require.NoError(t, app.Stop(ctx))
	assert.Equal(t, []string{"audit"}, destroyed)
}

func TestAppBootstrapFailure(t *testing.T) {
	var destroyed []string
	app := newApp(t, &destroyed)
	ctx := context.Background()

	// Disable audit so the greeter's bootstrap check fails.
	app.catalog = plugin.NewCatalog()
	app.bundled = discovery.ParseBundledCatalog(nil)
	require.NoError(t, afero.WriteFile(app.fs, "/srv/app/config/plugins.yaml", []byte(`
greeter:
  resolve: ./plugins/greeter
`), 0o644))

	require.NoError(t, app.Load(ctx))
	err := app.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit plugin missing")
	assert.Contains(t, err.Error(), `bootstrap plugin "greeter"`)
	require.NoError(t, app.Stop(ctx))
}

func TestAppLoadFailure(t *testing.T) {
	var destroyed []string
	app := newApp(t, &destroyed)
	require.NoError(t, afero.WriteFile(app.fs, "/srv/app/config/plugins.yaml", []byte("missing: true\n"), 0o644))

	err := app.Load(context.Background())
	var notInstalled *discovery.NotInstalledError
	require.True(t, errors.As(err, &notInstalled))
	assert.Nil(t, app.Registry())
	assert.NoError(t, app.Stop(context.Background()))
}

func TestAppCapabilities(t *testing.T) {
	app := New(Options{})
	assert.NotNil(t, app.Logger())
	assert.NotNil(t, app.Config())
	assert.NotNil(t, app.Env())
	assert.Nil(t, app.Metrics())
	assert.Nil(t, app.PluginNames())
}

func TestAppCloseSkipsDestroy(t *testing.T) {
	var destroyed []string
	app := newApp(t, &destroyed)
	assert.NoError(t, app.Close(), "Close before Load is a no-op")

	require.NoError(t, app.Load(context.Background()))
	require.NoError(t, app.Close())
	assert.Empty(t, destroyed)
}
