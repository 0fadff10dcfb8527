package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/strata/pkg/plugin"
)

// maxBodyBytes caps plugin route request bodies.
const maxBodyBytes = 1 << 20

var routeParam = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Pattern converts a plugin route to a ServeMux pattern mounted under
// /api/<plugin>. ":param" segments become "{param}" wildcards.
func Pattern(pluginName string, r plugin.Route) string {
	path := routeParam.ReplaceAllString(r.Path, "{$1}")
	return fmt.Sprintf("%s /api/%s%s", strings.ToUpper(r.Method), pluginName, path)
}

// mountPluginRoutes registers every plugin route. Routes whose handler or
// policies cannot be resolved are skipped with a warning.
func (s *Server) mountPluginRoutes() {
	seen := make(map[string]bool)
	routes := s.registry.AllRoutes()
	for _, name := range s.registry.Names() {
		p, _ := s.registry.Get(name)
		for _, route := range routes[name] {
			pattern := Pattern(name, route)
			if seen[pattern] {
				s.logger.Warn("duplicate route skipped", zap.String("plugin", name), zap.String("pattern", pattern))
				continue
			}
			h, err := s.routeHandler(name, p, route)
			if err != nil {
				s.logger.Warn("route not mounted", zap.String("plugin", name), zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			if err := s.handle(pattern, h); err != nil {
				s.logger.Warn("route not mounted", zap.String("plugin", name), zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			seen[pattern] = true
			s.logger.Debug("mounted route",
				zap.String("plugin", name),
				zap.String("pattern", pattern),
			)
		}
	}
}

// handle registers h on the mux. ServeMux panics on malformed patterns and
// on patterns that conflict with one already registered; that panic comes
// back as an error and the mux is left unchanged.
func (s *Server) handle(pattern string, h http.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid route pattern: %v", r)
		}
	}()
	s.mux.Handle(pattern, h)
	return nil
}

type boundPolicy struct {
	name    string
	handler plugin.Handler
}

func (s *Server) routeHandler(pluginName string, p *plugin.Plugin, route plugin.Route) (http.Handler, error) {
	handler, ok := p.Controllers[route.Handler]
	if !ok {
		return nil, fmt.Errorf("unknown controller action %q", route.Handler)
	}

	policies := make([]boundPolicy, 0, len(route.Policies))
	for _, name := range route.Policies {
		h, err := s.lookupPolicy(p, name)
		if err != nil {
			return nil, err
		}
		policies = append(policies, boundPolicy{name: name, handler: h})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call, err := s.buildCall(r, route)
		if err != nil {
			BadRequest(w, err.Error(), r.URL.Path)
			return
		}

		for _, pol := range policies {
			res, err := pol.handler(r.Context(), call)
			if err != nil {
				s.logger.Error("policy failed", zap.String("plugin", pluginName), zap.String("policy", pol.name), zap.Error(err))
				InternalError(w, err.Error(), r.URL.Path)
				return
			}
			if allowed, isBool := res.(bool); isBool && !allowed {
				Forbidden(w, fmt.Sprintf("policy %q denied the request", pol.name), r.URL.Path)
				return
			}
		}

		res, err := handler(r.Context(), call)
		if err != nil {
			s.logger.Error("handler failed",
				zap.String("plugin", pluginName),
				zap.String("handler", route.Handler),
				zap.Error(err),
			)
			InternalError(w, err.Error(), r.URL.Path)
			return
		}
		if res == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}), nil
}

// lookupPolicy resolves "name" against the plugin's own policies and
// "other::name" against another plugin's.
func (s *Server) lookupPolicy(p *plugin.Plugin, name string) (plugin.Handler, error) {
	owner := p
	policy := name
	if other, pol, found := strings.Cut(name, "::"); found {
		op, ok := s.registry.Get(other)
		if !ok {
			return nil, fmt.Errorf("policy %q: unknown plugin %q", name, other)
		}
		owner, policy = op, pol
	}
	h, ok := owner.Policies[policy]
	if !ok {
		return nil, fmt.Errorf("unknown policy %q", name)
	}
	return h, nil
}

func (s *Server) buildCall(r *http.Request, route plugin.Route) (plugin.Call, error) {
	call := plugin.Call{
		Host:   s.host,
		Params: make(map[string]string),
		Query:  r.URL.Query(),
	}
	for _, m := range routeParam.FindAllStringSubmatch(route.Path, -1) {
		call.Params[m[1]] = r.PathValue(m[1])
	}

	if r.Body == nil || r.ContentLength == 0 {
		return call, nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&call.Body); err != nil && !errors.Is(err, io.EOF) {
		return call, fmt.Errorf("invalid JSON body: %w", err)
	}
	return call, nil
}
