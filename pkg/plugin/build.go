package plugin

import "context"

// Server is what a plugin entry declares. Nil fields are omitted and get
// their defaults from Build.
type Server struct {
	Register  Hook
	Bootstrap Hook
	Destroy   Hook

	Routes       []Route
	Controllers  map[string]Handler
	Services     map[string]Handler
	Policies     map[string]Handler
	Middlewares  map[string]Handler
	ContentTypes map[string]*ContentType

	Config *ConfigSpec
	Extra  map[string]any
}

// NoopHook is the default lifecycle hook.
func NoopHook(context.Context, Host) error { return nil }

// AcceptAll is the default config validator.
func AcceptAll(map[string]any) error { return nil }

// Build turns a declared Server into a Plugin with every omitted field
// filled. The config declaration is defaulted per field, so a plugin that
// declares only a validator keeps it and gets an empty default, and the
// other way round.
func Build(name string, s Server) *Plugin {
	p := &Plugin{
		Name:         name,
		Register:     orHook(s.Register),
		Bootstrap:    orHook(s.Bootstrap),
		Destroy:      orHook(s.Destroy),
		Routes:       s.Routes,
		Controllers:  orHandlers(s.Controllers),
		Services:     orHandlers(s.Services),
		Policies:     orHandlers(s.Policies),
		Middlewares:  orHandlers(s.Middlewares),
		ContentTypes: s.ContentTypes,
		Extra:        s.Extra,
	}
	if p.Routes == nil {
		p.Routes = []Route{}
	}
	if p.ContentTypes == nil {
		p.ContentTypes = map[string]*ContentType{}
	}

	spec := ConfigSpec{}
	if s.Config != nil {
		spec = *s.Config
	}
	if spec.Default == nil && spec.DefaultFunc == nil {
		spec.Default = map[string]any{}
	}
	if spec.Validator == nil {
		spec.Validator = AcceptAll
	}
	p.Spec = &spec
	return p
}

func orHook(h Hook) Hook {
	if h == nil {
		return NoopHook
	}
	return h
}

func orHandlers(m map[string]Handler) map[string]Handler {
	if m == nil {
		return map[string]Handler{}
	}
	return m
}
