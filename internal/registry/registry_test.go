package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/HerbHall/strata/internal/testutil"
	"github.com/HerbHall/strata/pkg/plugin"
)

func testLogger() *zap.Logger {
	return testutil.Logger()
}

// recorder builds plugins whose hooks append to a shared log.
type recorder struct {
	calls []string
}

func (r *recorder) plugin(name string, failOn string) *plugin.Plugin {
	hook := func(phase string) plugin.Hook {
		return func(context.Context, plugin.Host) error {
			r.calls = append(r.calls, phase+":"+name)
			if phase == failOn {
				return errors.New(phase + " failed")
			}
			return nil
		}
	}
	return plugin.Build(name, plugin.Server{
		Register:  hook("register"),
		Bootstrap: hook("bootstrap"),
		Destroy:   hook("destroy"),
	})
}

func TestAdd(t *testing.T) {
	reg := New(testLogger())

	p := plugin.Build("alpha", plugin.Server{})
	if err := reg.Add("alpha", p); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// Duplicate registration should fail.
	if err := reg.Add("alpha", p); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Add() error = %v, want ErrDuplicate", err)
	}
}

func TestAddInvalid(t *testing.T) {
	reg := New(testLogger())
	if err := reg.Add("", plugin.Build("x", plugin.Server{})); err == nil {
		t.Error("Add() expected error for empty name, got nil")
	}
	if err := reg.Add("x", nil); err == nil {
		t.Error("Add() expected error for nil plugin, got nil")
	}
}

func TestAddPartialPlugin(t *testing.T) {
	reg := New(testLogger())
	custom := &plugin.Plugin{Extra: map[string]any{"registerCustom": true}}
	if err := reg.Add("users", custom); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	got, ok := reg.Get("users")
	if !ok || got != custom {
		t.Fatalf("Get(users) = %v, %v; want the stored value", got, ok)
	}
}

func TestSeal(t *testing.T) {
	reg := New(testLogger())
	if err := reg.Add("a", plugin.Build("a", plugin.Server{})); err != nil {
		t.Fatal(err)
	}
	reg.Seal()
	if !reg.Sealed() {
		t.Fatal("Sealed() = false after Seal()")
	}
	if err := reg.Add("b", plugin.Build("b", plugin.Server{})); !errors.Is(err, ErrSealed) {
		t.Fatalf("Add() after Seal error = %v, want ErrSealed", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestFromMapKeepsOrder(t *testing.T) {
	m := plugin.NewMap()
	for _, name := range []string{"c", "a", "b"} {
		m.Put(name, plugin.Build(name, plugin.Server{}))
	}
	reg, err := FromMap(m, testLogger())
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}

	names := reg.Names()
	want := []string{"c", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
	all := reg.All()
	if len(all) != 3 || all[0].Name != "c" {
		t.Errorf("All() order wrong: %v", all)
	}
}

func TestGet(t *testing.T) {
	reg := New(testLogger())
	reg.Add("a", plugin.Build("a", plugin.Server{}))

	if _, ok := reg.Get("a"); !ok {
		t.Error("Get('a') returned false, want true")
	}
	if _, ok := reg.Get("nonexistent"); ok {
		t.Error("Get('nonexistent') returned true, want false")
	}
}

func TestAllRoutes(t *testing.T) {
	reg := New(testLogger())
	reg.Add("web", plugin.Build("web", plugin.Server{
		Routes: []plugin.Route{{Method: "GET", Path: "/test", Handler: "page.find"}},
	}))
	reg.Add("noroutes", plugin.Build("noroutes", plugin.Server{}))
	reg.Add("custom", &plugin.Plugin{})

	routes := reg.AllRoutes()
	if len(routes) != 1 {
		t.Fatalf("AllRoutes() returned %d plugin route sets, want 1", len(routes))
	}
	if _, ok := routes["web"]; !ok {
		t.Error("AllRoutes() missing 'web' routes")
	}
}

func TestLifecycleOrder(t *testing.T) {
	host := testutil.NewHost(nil)
	reg := New(testLogger())
	reg.Add("a", testutil.NewPlugin("a", testutil.WithRecorder()))
	reg.Add("b", testutil.NewPlugin("b", testutil.WithRecorder()))
	reg.Add("partial", &plugin.Plugin{})

	ctx := context.Background()
	if err := reg.RegisterAll(ctx, host); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	if err := reg.BootstrapAll(ctx, host); err != nil {
		t.Fatalf("BootstrapAll() error = %v", err)
	}
	if err := reg.DestroyAll(ctx, host); err != nil {
		t.Fatalf("DestroyAll() error = %v", err)
	}

	want := []string{
		"register:a", "register:b",
		"bootstrap:a", "bootstrap:b",
		"destroy:b", "destroy:a",
	}
	if diff := cmp.Diff(want, host.Events()); diff != "" {
		t.Fatalf("lifecycle order mismatch (-want +got):\n%s", diff)
	}
}

func TestBootstrapAllStopsOnError(t *testing.T) {
	rec := &recorder{}
	reg := New(testLogger())
	reg.Add("a", rec.plugin("a", "bootstrap"))
	reg.Add("b", rec.plugin("b", ""))

	err := reg.BootstrapAll(context.Background(), nil)
	if err == nil {
		t.Fatal("BootstrapAll() expected error, got nil")
	}
	if len(rec.calls) != 1 {
		t.Errorf("calls = %v, want only bootstrap:a", rec.calls)
	}
}

func TestDestroyAllRunsEveryHook(t *testing.T) {
	rec := &recorder{}
	reg := New(testLogger())
	reg.Add("a", rec.plugin("a", "destroy"))
	reg.Add("b", rec.plugin("b", "destroy"))

	err := reg.DestroyAll(context.Background(), nil)
	if err == nil {
		t.Fatal("DestroyAll() expected error, got nil")
	}
	if len(rec.calls) != 2 {
		t.Errorf("calls = %v, want both destroy hooks", rec.calls)
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Errorf("DestroyAll() error = %v, want two joined errors", err)
	}
}
