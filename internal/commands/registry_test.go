package commands

import (
	"context"
	"strings"
	"testing"
)

func okHandler(text string) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		return &Result{Text: text + ":" + inv.Args}, nil
	}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(nil)
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if r.byName == nil {
		t.Fatal("index not initialized")
	}
	if names := r.Names(); len(names) != 0 {
		t.Fatalf("Names() = %v, want empty", names)
	}
}

func TestRegistry_Register_Errors(t *testing.T) {
	r := NewRegistry(nil)

	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil command")
	}
	if err := r.Register(&Command{Handler: okHandler("x")}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register(&Command{Name: "test"}); err == nil {
		t.Error("expected error for nil handler")
	}
	if err := r.Register(&Command{Name: "test", Handler: okHandler("x"), Subcommands: []*Command{{Name: "sub"}}}); err == nil {
		t.Error("expected error for subcommand without handler")
	}

	if err := r.Register(&Command{Name: "first", Aliases: []string{"f"}, Handler: okHandler("x")}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(&Command{Name: "first", Handler: okHandler("x")}); err == nil {
		t.Error("expected duplicate error")
	}
	if err := r.Register(&Command{Name: "f", Handler: okHandler("x")}); err == nil {
		t.Error("expected alias conflict error")
	}
}

func TestRegistry_GetByAlias(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&Command{Name: "pinboards", Aliases: []string{"pb"}, Handler: okHandler("list")})

	cmd, ok := r.Get("PB")
	if !ok || cmd.Name != "pinboards" {
		t.Fatalf("Get(PB) = %v, %v", cmd, ok)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "pinboards" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestRegistry_ExecuteSubcommand(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Register(&Command{
		Name:                   "pinboards",
		AcceptsArgs:            false,
		RequiresManageMessages: true,
		Handler:                okHandler("list"),
		Subcommands: []*Command{
			{Name: "add", AcceptsArgs: true, RequiresManageMessages: true, Handler: okHandler("add")},
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	ctx := context.Background()

	res, err := r.Execute(ctx, &Invocation{Name: "pinboards", Args: "ADD <#1>", CanManageMessages: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Text != "add:<#1>" {
		t.Fatalf("Execute() text = %q", res.Text)
	}

	res, _ = r.Execute(ctx, &Invocation{Name: "pinboards", CanManageMessages: true})
	if res.Text != "list:" {
		t.Fatalf("parent handler text = %q", res.Text)
	}

	res, _ = r.Execute(ctx, &Invocation{Name: "pinboards", Args: "bogus", CanManageMessages: true})
	if !strings.Contains(res.Error, "does not accept arguments") {
		t.Fatalf("unknown subcommand result = %+v", res)
	}
}

func TestRegistry_ExecuteRequiresManageMessages(t *testing.T) {
	r := NewRegistry(nil)
	called := false
	_ = r.Register(&Command{
		Name:                   "migrate",
		RequiresManageMessages: true,
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			called = true
			return &Result{}, nil
		},
	})

	res, err := r.Execute(context.Background(), &Invocation{Name: "migrate"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if called {
		t.Fatal("handler ran without permission")
	}
	if !strings.Contains(res.Error, "Manage Messages") {
		t.Fatalf("Execute() error text = %q", res.Error)
	}
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Execute(context.Background(), &Invocation{Name: "nope"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if _, err := r.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil invocation")
	}
}
