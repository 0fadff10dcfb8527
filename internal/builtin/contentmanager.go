package builtin

import (
	"context"
	"fmt"
	"sort"

	"github.com/HerbHall/strata/pkg/contenttype"
	"github.com/HerbHall/strata/pkg/plugin"
)

// ContentManager is the name of the content editing plugin.
const ContentManager = "content-manager"

func contentManager() plugin.Server {
	return plugin.Server{
		Routes: []plugin.Route{
			{Method: "GET", Path: "/content-types", Handler: "content-types.findAll"},
			{Method: "POST", Path: "/sanitize/:plugin/:contentType", Handler: "entries.sanitize"},
		},
		Controllers: map[string]plugin.Handler{
			"content-types.findAll": findAllContentTypes,
			"entries.sanitize":      sanitizeEntry,
		},
		Services: map[string]plugin.Handler{
			"fields.strip": stripService,
		},
	}
}

// ContentTypeInfo is one entry of the content-types listing.
type ContentTypeInfo struct {
	UID        string   `json:"uid"`
	Plugin     string   `json:"plugin"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Attributes []string `json:"attributes"`
}

func findAllContentTypes(_ context.Context, call plugin.Call) (any, error) {
	lister, ok := call.Host.(plugin.PluginLister)
	if !ok {
		return nil, fmt.Errorf("host cannot list plugins")
	}
	out := []ContentTypeInfo{}
	for _, name := range lister.PluginNames() {
		p, ok := call.Host.Plugin(name)
		if !ok {
			continue
		}
		cts := make([]string, 0, len(p.ContentTypes))
		for ct := range p.ContentTypes {
			cts = append(cts, ct)
		}
		sort.Strings(cts)
		for _, ct := range cts {
			if p.ContentTypes[ct] == nil {
				continue
			}
			schema := p.ContentTypes[ct].Schema
			out = append(out, ContentTypeInfo{
				UID:        name + "." + ct,
				Plugin:     name,
				Name:       ct,
				Kind:       schema.Kind(),
				Attributes: schema.AttributeNames(),
			})
		}
	}
	return out, nil
}

// sanitizeEntry strips system fields from the request body using the schema
// of the content type named in the path.
func sanitizeEntry(_ context.Context, call plugin.Call) (any, error) {
	schema, err := lookupSchema(call.Host, call.Params["plugin"], call.Params["contentType"])
	if err != nil {
		return nil, err
	}
	return contenttype.StripFields(call.Body, schema, components(call.Host)), nil
}

// stripService is the programmatic form of sanitizeEntry:
// Args = [plugin, contentType, data].
func stripService(_ context.Context, call plugin.Call) (any, error) {
	if len(call.Args) != 3 {
		return nil, fmt.Errorf("fields.strip: want 3 arguments, got %d", len(call.Args))
	}
	pluginName, _ := call.Args[0].(string)
	ctName, _ := call.Args[1].(string)
	data, ok := call.Args[2].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("fields.strip: data must be an object")
	}
	schema, err := lookupSchema(call.Host, pluginName, ctName)
	if err != nil {
		return nil, err
	}
	return contenttype.StripFields(data, schema, components(call.Host)), nil
}

func lookupSchema(host plugin.Host, pluginName, ctName string) (contenttype.Schema, error) {
	if host == nil {
		return nil, fmt.Errorf("no host")
	}
	p, ok := host.Plugin(pluginName)
	if !ok {
		return nil, fmt.Errorf("unknown plugin %q", pluginName)
	}
	ct, ok := p.ContentTypes[ctName]
	if !ok || ct == nil {
		return nil, fmt.Errorf("plugin %q has no content type %q", pluginName, ctName)
	}
	return ct.Schema, nil
}

// components indexes every content type of the host by "<plugin>.<name>",
// the UID used by component attributes.
func components(host plugin.Host) map[string]contenttype.Schema {
	out := map[string]contenttype.Schema{}
	lister, ok := host.(plugin.PluginLister)
	if !ok {
		return out
	}
	for _, name := range lister.PluginNames() {
		p, ok := host.Plugin(name)
		if !ok {
			continue
		}
		for ct, v := range p.ContentTypes {
			if v != nil {
				out[name+"."+ct] = v.Schema
			}
		}
	}
	return out
}
