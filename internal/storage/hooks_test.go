package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testHookContext() HookContext {
	return HookContext{
		File:       "/tmp/staging/home.bar",
		Number:     3,
		Type:       "FILE",
		Size:       4096,
		DateTime:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		User:       "alice",
		Group:      "staff",
		Permission: 0644,
		Part:       1,
		Compress:   "ZSTD",
		Crypt:      "AES256-CBC",
		Name:       "home.bar",
	}
}

func TestExpandTemplate_SimpleMacros(t *testing.T) {
	got, err := ExpandTemplate("cp %file /archive/%name", testHookContext())
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	want := "cp /tmp/staging/home.bar /archive/home.bar"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandTemplate_LiteralPercent(t *testing.T) {
	got, err := ExpandTemplate("echo 100%% done: %name", testHookContext())
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	if got != "echo 100% done: home.bar" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandTemplate_WidthRightAndLeftAlign(t *testing.T) {
	got, err := ExpandTemplate("[%number:5][%type:-6]", testHookContext())
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	want := "[    3][FILE  ]"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandTemplate_GroupedWidth(t *testing.T) {
	got, err := ExpandTemplate("[%{%type-%number:10}]", testHookContext())
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	want := "[    FILE-3]"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandTemplate_UnknownMacroErrors(t *testing.T) {
	if _, err := ExpandTemplate("%nosuchmacro", testHookContext()); err == nil {
		t.Fatal("expected error for unknown macro")
	}
}

func TestExpandTemplate_UnterminatedGroupErrors(t *testing.T) {
	if _, err := ExpandTemplate("%{%name", testHookContext()); err == nil {
		t.Fatal("expected error for unterminated %{ group")
	}
}

func TestRunHook_EmptyCommandIsNoop(t *testing.T) {
	if err := RunHook(context.Background(), "", testHookContext()); err != nil {
		t.Fatalf("RunHook with empty command: %v", err)
	}
}

func TestRunHook_ExpandsAndExecutes(t *testing.T) {
	err := RunHook(context.Background(), "test %name = home.bar", testHookContext())
	if err != nil {
		t.Fatalf("RunHook: %v", err)
	}
}

func TestRunHook_FailingCommandReturnsError(t *testing.T) {
	err := RunHook(context.Background(), "false", testHookContext())
	if err == nil {
		t.Fatal("expected error from a failing hook command")
	}
	if !strings.Contains(err.Error(), "hook command") {
		t.Fatalf("error = %v, want it to mention the hook command", err)
	}
}
