package commands

import "testing"

func TestParser_ParseCommand(t *testing.T) {
	p := NewParser("!")

	tests := []struct {
		name     string
		input    string
		wantNil  bool
		wantName string
		wantArgs string
	}{
		{name: "bare command", input: "!migrate", wantName: "migrate"},
		{name: "command with args", input: "!pinboards add <#123>", wantName: "pinboards", wantArgs: "add <#123>"},
		{name: "mixed case", input: "  !PinBoards  ", wantName: "pinboards"},
		{name: "multiline args", input: "!pinboards link\n<#1> <#2>", wantName: "pinboards", wantArgs: "link\n<#1> <#2>"},
		{name: "no prefix", input: "pinboards", wantNil: true},
		{name: "prefix only", input: "!", wantNil: true},
		{name: "prefix then digit", input: "!1", wantNil: true},
		{name: "punctuation after name", input: "!migrate?", wantNil: true},
		{name: "empty", input: "", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.ParseCommand(tt.input)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("ParseCommand(%q) = %+v, want nil", tt.input, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseCommand(%q) = nil", tt.input)
			}
			if got.Name != tt.wantName || got.Args != tt.wantArgs {
				t.Fatalf("ParseCommand(%q) = %q/%q, want %q/%q", tt.input, got.Name, got.Args, tt.wantName, tt.wantArgs)
			}
			if got.Prefix != "!" {
				t.Fatalf("Prefix = %q", got.Prefix)
			}
		})
	}
}

func TestParser_CustomPrefix(t *testing.T) {
	p := NewParser("pb.")
	cmd := p.ParseCommand("pb.migrate")
	if cmd == nil || cmd.Name != "migrate" {
		t.Fatalf("ParseCommand() = %+v", cmd)
	}
	if p.IsCommand("!migrate") {
		t.Fatal("default prefix should not match when a custom one is set")
	}
}

func TestParser_EmptyPrefixFallsBack(t *testing.T) {
	p := NewParser("  ")
	if !p.IsCommand("!migrate") {
		t.Fatal("expected default prefix to be used")
	}
}

func TestSplitCommandArgs(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArgs string
	}{
		{"add <#1>", "add", "<#1>"},
		{"MODE", "mode", ""},
		{"link  <#1> <#2>", "link", "<#1> <#2>"},
		{"link\n<#1>", "link", "<#1>"},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, args := SplitCommandArgs(tt.input)
		if name != tt.wantName || args != tt.wantArgs {
			t.Errorf("SplitCommandArgs(%q) = %q/%q, want %q/%q", tt.input, name, args, tt.wantName, tt.wantArgs)
		}
	}
}
