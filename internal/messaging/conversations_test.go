package messaging

import (
	"testing"
	"time"

	"inbox/internal/db"
	"inbox/internal/models"
)

func TestBuildConversationsOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msgAt := func(id string, at time.Time) *models.Message {
		return &models.Message{ID: id, CreatedAt: at}
	}

	summaries := []db.ThreadSummary{
		{CounterpartID: "usr_c", LastMessage: msgAt("m1", base), UnreadCount: 2},
		{CounterpartID: "usr_a", LastMessage: msgAt("m2", base.Add(time.Minute))},
		{CounterpartID: "usr_b", LastMessage: msgAt("m3", base)},
	}
	connected := []string{"usr_z", "usr_a", "usr_y"}
	profiles := map[string]*models.User{
		"usr_a": {ID: "usr_a", Name: "Ann"},
		"usr_b": {ID: "usr_b", Name: "Ben"},
	}

	got := buildConversations("usr_me", summaries, connected, profiles)

	wantOrder := []string{"usr_a", "usr_b", "usr_c", "usr_y", "usr_z"}
	if len(got) != len(wantOrder) {
		t.Fatalf("len(buildConversations()) = %d, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].CounterpartID() != id {
			t.Fatalf("conversation %d = %s, want %s", i, got[i].CounterpartID(), id)
		}
	}

	if got[0].User.Name != "Ann" {
		t.Fatalf("profile for usr_a = %+v, want Ann", got[0].User)
	}
	if got[2].User.Name != "" || got[2].UnreadCount != 2 {
		t.Fatalf("unresolved counterpart = %+v, want placeholder with 2 unread", got[2])
	}
	if got[3].LastMessage != nil {
		t.Fatalf("connection without messages has LastMessage %+v", got[3].LastMessage)
	}
}

func TestBuildConversationsIsDeterministic(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	summaries := []db.ThreadSummary{
		{CounterpartID: "usr_3", LastMessage: &models.Message{CreatedAt: at}},
		{CounterpartID: "usr_1", LastMessage: &models.Message{CreatedAt: at}},
		{CounterpartID: "usr_2", LastMessage: &models.Message{CreatedAt: at}},
	}

	first := buildConversations("usr_me", summaries, nil, nil)
	for i := 0; i < 10; i++ {
		again := buildConversations("usr_me", summaries, nil, nil)
		for j := range first {
			if first[j].CounterpartID() != again[j].CounterpartID() {
				t.Fatalf("run %d position %d = %s, want %s", i, j, again[j].CounterpartID(), first[j].CounterpartID())
			}
		}
	}
	if first[0].CounterpartID() != "usr_1" {
		t.Fatalf("first = %s, want usr_1 on tie", first[0].CounterpartID())
	}
}

func TestBuildConversationsSkipsViewer(t *testing.T) {
	got := buildConversations("usr_me", nil, []string{"usr_me", "usr_x"}, nil)
	if len(got) != 1 || got[0].CounterpartID() != "usr_x" {
		t.Fatalf("buildConversations() = %+v, want only usr_x", got)
	}
}
