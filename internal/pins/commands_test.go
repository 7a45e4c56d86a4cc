package pins

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/pinboard/pkg/models"
)

func command(content string) *models.Message {
	msg := newMessage("cmd", content)
	msg.AuthorID = testMod
	return msg
}

func lastSent(fp *fakePlatform) string {
	var out string
	fp.snapshot(func(f *fakePlatform) {
		if len(f.sent) > 0 {
			out = f.sent[len(f.sent)-1].Content
		}
	})
	return out
}

func TestParseChannelRef(t *testing.T) {
	tests := map[string]string{
		"<#123>":   "123",
		"456":      "456",
		" <#7> ":   "7",
		"#general": "",
		"<#abc>":   "",
		"":         "",
	}
	for in, want := range tests {
		if got := parseChannelRef(in); got != want {
			t.Errorf("parseChannelRef(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPinboardCommands(t *testing.T) {
	fp := newFakePlatform()
	fp.addChannel(textChannel("100"))
	fp.addChannel(textChannel("200"))
	svc, stores := newTestService(t, fp)
	ctx := context.Background()

	svc.HandleMessageCreate(ctx, command("!pinboards"))
	if body := fp.promptBodies[0]; body.Title != "📌 Pinboards" || !strings.Contains(body.Description, "pinboards add") {
		t.Errorf("empty list = %+v", body)
	}

	svc.HandleMessageCreate(ctx, command("!pinboards link <#100> <#200>"))
	if got := lastSent(fp); !strings.Contains(got, "not a pinboard") {
		t.Errorf("link to unregistered board replied %q", got)
	}

	svc.HandleMessageCreate(ctx, command("!pinboards add <#200>"))
	if got := lastSent(fp); got != "Registered <#200> as a pinboard!" {
		t.Errorf("add replied %q", got)
	}

	svc.HandleMessageCreate(ctx, command("!pinboards link <#100> <#200>"))
	if got := lastSent(fp); got != "Successfully linked <#100> to the 📌<#200>" {
		t.Errorf("link replied %q", got)
	}
	ids, _ := stores.Pinboards.PinboardsFor(ctx, "100")
	if len(ids) != 1 || ids[0] != "200" {
		t.Errorf("links = %v", ids)
	}

	svc.HandleMessageCreate(ctx, command("!pinboards"))
	if body := fp.promptBodies[1]; body.Description != "<#200>" {
		t.Errorf("list = %q", body.Description)
	}
}

func TestModeCommand(t *testing.T) {
	fp := newFakePlatform()
	svc, stores := newTestService(t, fp)
	ctx := context.Background()

	svc.HandleMessageCreate(ctx, command("!pinboards mode automatic"))
	mode, _ := stores.Settings.MigrationMode(ctx)
	if mode != models.MigrationAutomatic {
		t.Fatalf("mode = %s, want automatic", mode)
	}

	svc.HandleMessageCreate(ctx, command("!pinboards mode sometimes"))
	if got := lastSent(fp); !strings.Contains(got, "unknown migration mode") {
		t.Errorf("bad mode replied %q", got)
	}
}

func TestCommandsRequireManageMessages(t *testing.T) {
	fp := newFakePlatform()
	fp.addChannel(textChannel("200"))
	svc, stores := newTestService(t, fp)
	ctx := context.Background()

	msg := command("!pinboards add <#200>")
	msg.AuthorID = "member"
	svc.HandleMessageCreate(ctx, msg)

	if got := lastSent(fp); !strings.Contains(got, "Manage Messages") {
		t.Errorf("reply = %q", got)
	}
	if boards, _ := stores.Pinboards.List(ctx, 0); len(boards) != 0 {
		t.Errorf("unprivileged user registered %d pinboards", len(boards))
	}
}

func TestMigrateCommandWithSinglePinboard(t *testing.T) {
	fp := newFakePlatform()
	fp.addChannel(textChannel("general"))
	fp.addChannel(textChannel("board"))
	fp.pinMany("general", 4)
	svc, stores := newTestService(t, fp)
	ctx := context.Background()
	_ = stores.Pinboards.Link(ctx, &models.PinboardLink{SourceChannelID: "general", PinboardChannelID: "board"})

	svc.HandleMessageCreate(ctx, command("!migrate"))

	if got := lastSent(fp); got != "Migrated 4 of 4 pinned messages to 📌<#board>" {
		t.Errorf("reply = %q", got)
	}
	if len(fp.prompts) != 0 {
		t.Error("single pinboard should not open the picker")
	}
}

func TestMigrateCommandWithoutPinboards(t *testing.T) {
	fp := newFakePlatform()
	fp.addChannel(textChannel("general"))
	svc, _ := newTestService(t, fp)

	svc.HandleMessageCreate(context.Background(), command("!migrate"))

	if got := lastSent(fp); !strings.Contains(got, "No pinboards are linked") {
		t.Errorf("reply = %q", got)
	}
}
