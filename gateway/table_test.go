package gateway_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/evalkernel/gateway"
)

func newTable(t *testing.T) (*gateway.Table, *int) {
	t.Helper()

	echoMaxLines := 2
	table := gateway.New()
	engine := table.Owner("engine")

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Declare() failed: %v", err)
		}
	}

	must(engine.ReadOnly("execution_count", func() any { return 7 }))
	must(engine.ReadOnly("state", func() any { return "idle" }))
	must(engine.Declare("echo_max_lines", gateway.Attribute{
		Get:      func() any { return echoMaxLines },
		Set:      func(v any) error { n, err := gateway.Int(v); echoMaxLines = n; return err },
		Validate: gateway.MinInt(1),
	}))
	must(engine.Declare("secret", gateway.Attribute{
		Set: func(any) error { return nil },
	}))
	must(table.Owner("kernel").Owner("transport").ReadOnly("ip", func() any { return "127.0.0.1" }))

	return table, &echoMaxLines
}

func TestGet(t *testing.T) {
	table, _ := newTable(t)

	tests := []struct {
		name     string
		attr     string
		want     any
		wantKind gateway.Kind
	}{
		{name: "attribute", attr: "engine.execution_count", want: 7, wantKind: gateway.KindOK},
		{name: "nested attribute", attr: "kernel.transport.ip", want: "127.0.0.1", wantKind: gateway.KindOK},
		{name: "nonexistent", attr: "nonexistent.attr", wantKind: gateway.AttributeError},
		{name: "missing leaf", attr: "engine.nope", wantKind: gateway.AttributeError},
		{name: "below attribute", attr: "engine.state.deeper", wantKind: gateway.AttributeError},
		{name: "private", attr: "_private", wantKind: gateway.AccessError},
		{name: "private segment", attr: "engine._counter", wantKind: gateway.AccessError},
		{name: "write-only", attr: "engine.secret", wantKind: gateway.AccessError},
		{name: "empty", attr: "", wantKind: gateway.AttributeError},
		{name: "empty segment", attr: "engine..state", wantKind: gateway.AttributeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Get(tt.attr)
			if kind := gateway.KindOf(err); kind != tt.wantKind {
				t.Fatalf("KindOf(Get(%q)) = %v, want %v (err: %v)", tt.attr, kind, tt.wantKind, err)
			}
			if err == nil && got != tt.want {
				t.Errorf("Get(%q) = %v, want %v", tt.attr, got, tt.want)
			}
		})
	}
}

func TestGet_OwnerSnapshot(t *testing.T) {
	table, _ := newTable(t)

	got, err := table.Get("engine")
	if err != nil {
		t.Fatalf("Get(engine) failed: %v", err)
	}

	want := map[string]any{
		"execution_count": 7,
		"state":           "idle",
		"echo_max_lines":  2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get(engine) mismatch (-want +got):\n%s", diff)
	}

	got, err = table.Get("kernel")
	if err != nil {
		t.Fatalf("Get(kernel) failed: %v", err)
	}
	want = map[string]any{"transport": map[string]any{"ip": "127.0.0.1"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get(kernel) mismatch (-want +got):\n%s", diff)
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		name     string
		attr     string
		value    any
		wantKind gateway.Kind
		want     int
	}{
		{name: "valid", attr: "engine.echo_max_lines", value: float64(5), wantKind: gateway.KindOK, want: 5},
		{name: "below minimum", attr: "engine.echo_max_lines", value: float64(0), wantKind: gateway.ValueError, want: 2},
		{name: "not integral", attr: "engine.echo_max_lines", value: 2.5, wantKind: gateway.ValueError, want: 2},
		{name: "wrong type", attr: "engine.echo_max_lines", value: "3", wantKind: gateway.ValueError, want: 2},
		{name: "read-only", attr: "engine.execution_count", value: float64(1), wantKind: gateway.AccessError, want: 2},
		{name: "owner", attr: "engine", value: map[string]any{}, wantKind: gateway.AccessError, want: 2},
		{name: "private", attr: "_private", value: 1, wantKind: gateway.AccessError, want: 2},
		{name: "nonexistent", attr: "engine.missing", value: 1, wantKind: gateway.AttributeError, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, echoMaxLines := newTable(t)

			err := table.Set(tt.attr, tt.value)
			if kind := gateway.KindOf(err); kind != tt.wantKind {
				t.Fatalf("KindOf(Set(%q)) = %v, want %v (err: %v)", tt.attr, kind, tt.wantKind, err)
			}
			if *echoMaxLines != tt.want {
				t.Errorf("echo_max_lines = %d, want %d", *echoMaxLines, tt.want)
			}
		})
	}
}

func TestDeclare_Conflicts(t *testing.T) {
	table := gateway.New()
	get := func() any { return 1 }

	if err := table.Declare("a.b", gateway.Attribute{Get: get}); err != nil {
		t.Fatalf("Declare(a.b) failed: %v", err)
	}

	tests := []struct {
		name    string
		attr    string
		wantErr error
	}{
		{name: "duplicate", attr: "a.b", wantErr: gateway.ErrAlreadyExists},
		{name: "owner as attribute", attr: "a", wantErr: gateway.ErrAlreadyExists},
		{name: "attribute as owner", attr: "a.b.c", wantErr: gateway.ErrAlreadyExists},
		{name: "empty", attr: "", wantErr: gateway.ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := table.Declare(tt.attr, gateway.Attribute{Get: get})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Declare(%q) error = %v, want %v", tt.attr, err, tt.wantErr)
			}
		})
	}
}

func TestNames(t *testing.T) {
	table, _ := newTable(t)

	want := []string{
		"engine.echo_max_lines",
		"engine.execution_count",
		"engine.secret",
		"engine.state",
		"kernel.transport.ip",
	}
	if diff := cmp.Diff(want, table.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}
