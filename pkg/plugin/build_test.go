package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/HerbHall/strata/pkg/contenttype"
)

func TestBuildFillsDefaults(t *testing.T) {
	p := Build("empty", Server{})

	if !p.Complete() {
		t.Fatal("Build() left structural fields nil")
	}
	if p.Name != "empty" {
		t.Errorf("Name = %q, want empty", p.Name)
	}
	if len(p.Routes) != 0 || len(p.Controllers) != 0 || len(p.ContentTypes) != 0 {
		t.Errorf("defaults should be empty, got %+v", p)
	}
	if err := p.Register(context.Background(), nil); err != nil {
		t.Errorf("default Register hook error = %v", err)
	}
	if p.Spec == nil || p.Spec.Default == nil || p.Spec.Validator == nil {
		t.Fatalf("Spec = %+v, want default and validator filled", p.Spec)
	}
	if err := p.Spec.Validator(map[string]any{"anything": 1}); err != nil {
		t.Errorf("default validator error = %v", err)
	}
	if p.Resolved() {
		t.Error("a freshly built plugin should not be resolved")
	}
}

func TestBuildKeepsDeclaredFields(t *testing.T) {
	called := false
	errBad := errors.New("bad")
	s := Server{
		Bootstrap: func(context.Context, Host) error { called = true; return nil },
		Routes:    []Route{{Method: "GET", Path: "/ping", Handler: "ping.index"}},
		Services: map[string]Handler{
			"ping": func(context.Context, Call) (any, error) { return "pong", nil },
		},
		ContentTypes: map[string]*ContentType{
			"note": {Schema: contenttype.Schema{"kind": "collectionType"}},
		},
		Config: &ConfigSpec{Validator: func(map[string]any) error { return errBad }},
	}

	p := Build("ping", s)
	if err := p.Bootstrap(context.Background(), nil); err != nil || !called {
		t.Error("declared Bootstrap hook was not kept")
	}
	if len(p.Routes) != 1 || p.Routes[0].Handler != "ping.index" {
		t.Errorf("Routes = %+v", p.Routes)
	}
	if _, ok := p.Services["ping"]; !ok {
		t.Error("declared service missing")
	}
	if _, ok := p.ContentTypes["note"]; !ok {
		t.Error("declared content type missing")
	}
	if err := p.Spec.Validator(nil); !errors.Is(err, errBad) {
		t.Errorf("declared validator not kept, got %v", err)
	}
	if p.Spec.Default == nil {
		t.Error("missing default should be filled even when a validator is declared")
	}
}

func TestBuildKeepsDefaultFunc(t *testing.T) {
	fn := func(Env) (map[string]any, error) { return map[string]any{"a": 1}, nil }
	p := Build("lazy", Server{Config: &ConfigSpec{DefaultFunc: fn}})
	if p.Spec.DefaultFunc == nil {
		t.Fatal("DefaultFunc dropped")
	}
	if p.Spec.Default != nil {
		t.Error("static default should stay nil when a DefaultFunc is declared")
	}
}

func TestSetResolved(t *testing.T) {
	p := Build("x", Server{})
	p.SetResolved(nil)
	if !p.Resolved() {
		t.Error("Resolved() = false after SetResolved")
	}
	if p.Config == nil {
		t.Error("SetResolved(nil) should store an empty map")
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	if err := c.Register("users", func() Server { return Server{} }); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := c.Register("users", func() Server { return Server{} }); err == nil {
		t.Error("Register() duplicate expected error")
	}
	if err := c.Register("", func() Server { return Server{} }); err == nil {
		t.Error("Register() empty name expected error")
	}
	if err := c.Register("nil", nil); err == nil {
		t.Error("Register() nil factory expected error")
	}
	if _, ok := c.Entry("users"); !ok {
		t.Error("Entry(users) not found")
	}

	c.Extend("users", func(_ context.Context, p *Plugin) (*Plugin, error) { return p, nil })
	c.Extend("users", func(_ context.Context, p *Plugin) (*Plugin, error) { return p, nil })
	if got := len(c.Extensions("users")); got != 2 {
		t.Errorf("Extensions(users) len = %d, want 2", got)
	}
	if got := len(c.Extensions("upload")); got != 0 {
		t.Errorf("Extensions(upload) len = %d, want 0", got)
	}
	if names := c.Names(); len(names) != 1 || names[0] != "users" {
		t.Errorf("Names() = %v", names)
	}
}

func TestMustRegisterPanics(t *testing.T) {
	c := NewCatalog()
	c.MustRegister("a", func() Server { return Server{} })
	defer func() {
		if recover() == nil {
			t.Error("MustRegister() duplicate should panic")
		}
	}()
	c.MustRegister("a", func() Server { return Server{} })
}
