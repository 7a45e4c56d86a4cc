package pins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/pinboard/internal/channels"
	"github.com/haasonsaas/pinboard/pkg/models"
)

func TestMigrateReplaysInPinOrder(t *testing.T) {
	fp := newFakePlatform()
	svc, _ := newTestService(t, fp)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// Most recently pinned first. Creation times disagree with pin order.
	messages := []*models.Message{
		{ID: "c", ChannelID: "general", Content: "pinned third", CreatedAt: base.Add(time.Hour)},
		{ID: "b", ChannelID: "general", Content: "pinned second", CreatedAt: base},
		{ID: "a", ChannelID: "general", Content: "pinned first", CreatedAt: base.Add(2 * time.Hour)},
	}

	report := svc.Migrate(context.Background(), "general", textChannel("board"), messages)

	if report != (MigrationReport{Attempted: 3, Migrated: 3}) {
		t.Fatalf("report = %+v", report)
	}
	want := []string{"pinned first", "pinned second", "pinned third"}
	if len(fp.sent) != len(want) {
		t.Fatalf("sent %d copies, want %d", len(fp.sent), len(want))
	}
	for i, sent := range fp.sent {
		if sent.ChannelID != "board" || sent.Content != want[i] {
			t.Errorf("send %d = %+v, want %q to board", i, sent, want[i])
		}
	}
	if got := fp.unpinned; len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("unpin order = %v", got)
	}
}

func TestMigrateSkipsNilMessages(t *testing.T) {
	fp := newFakePlatform()
	svc, _ := newTestService(t, fp)
	messages := []*models.Message{
		{ID: "b", ChannelID: "general", Content: "newer"},
		nil,
		{ID: "a", ChannelID: "general", Content: "older"},
	}

	report := svc.Migrate(context.Background(), "general", textChannel("board"), messages)

	if report.Attempted != 2 || report.Migrated != 2 {
		t.Fatalf("report = %+v", report)
	}
	if fp.sent[0].Content != "older" {
		t.Errorf("first copy = %q, want older", fp.sent[0].Content)
	}
}

func TestMigrateContinuesPastFailures(t *testing.T) {
	fp := newFakePlatform()
	fp.addChannel(textChannel("general"))
	pinned := fp.pinMany("general", 3)
	fp.unpinErr = func(_, messageID string) error {
		if messageID == pinned[0].ID {
			return channels.ErrPermission("missing permissions", nil)
		}
		return nil
	}
	fp.sendErr = func(_, content string) error {
		if content == pinned[2].Content {
			return errors.New("send failed")
		}
		return nil
	}
	svc, _ := newTestService(t, fp)
	if _, err := svc.Cache().MaybeFetch(context.Background(), "general"); err != nil {
		t.Fatalf("MaybeFetch() error = %v", err)
	}

	report := svc.Migrate(context.Background(), "general", textChannel("board"), pinned)

	if report != (MigrationReport{Attempted: 3, Migrated: 1, Failed: 2}) {
		t.Fatalf("report = %+v", report)
	}
	if len(fp.sent) != 2 {
		t.Errorf("sent %d copies, want 2", len(fp.sent))
	}
	if len(fp.unpinned) != 1 || fp.unpinned[0] != pinned[1].ID {
		t.Errorf("unpinned = %v, want only %s", fp.unpinned, pinned[1].ID)
	}
	if n, _ := svc.Cache().Count("general"); n != 2 {
		t.Errorf("cache count = %d, want 2", n)
	}
}
