package chat_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	memclock "github.com/Overland-East-Bay/carpool-api/internal/adapters/memory/clock"
	memchatrepo "github.com/Overland-East-Bay/carpool-api/internal/adapters/memory/chatrepo"
	"github.com/Overland-East-Bay/carpool-api/internal/app/apperr"
	"github.com/Overland-East-Bay/carpool-api/internal/app/chat"
	"github.com/Overland-East-Bay/carpool-api/internal/app/seq"
	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

var (
	alice = domain.Participant{UserID: "alice", DisplayName: "Alice"}
	bob   = domain.Participant{UserID: "bob", DisplayName: "Bob"}
	carol = domain.Participant{UserID: "carol", DisplayName: "Carol"}
)

func newService(t *testing.T) (*chat.Service, *memclock.ManualClock) {
	t.Helper()
	clk := memclock.NewManualClock(time.Unix(1000, 0).UTC())
	svc := chat.NewService(memchatrepo.NewRepo(), clk)
	var mu sync.Mutex
	c, m := 0, 0
	svc.SetIDsForTest(
		func() domain.ConversationID {
			mu.Lock()
			defer mu.Unlock()
			c++
			return domain.ConversationID(fmt.Sprintf("c%d", c))
		},
		func() domain.MessageID {
			mu.Lock()
			defer mu.Unlock()
			m++
			return domain.MessageID(fmt.Sprintf("m%d", m))
		},
	)
	return svc, clk
}

func TestService_GetOrCreate_UnorderedPair(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	first, created, err := svc.GetOrCreate(ctx, alice, bob)
	if err != nil || !created {
		t.Fatalf("GetOrCreate(a,b) created=%v err=%v", created, err)
	}
	again, created, err := svc.GetOrCreate(ctx, bob, alice)
	if err != nil || created {
		t.Fatalf("GetOrCreate(b,a) created=%v err=%v", created, err)
	}
	if again.ID != first.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, again.ID)
	}
	if _, _, err := svc.GetOrCreate(ctx, alice, alice); apperr.CodeOf(err) != apperr.CodeInvalidInput {
		t.Fatalf("GetOrCreate(a,a) err=%v", err)
	}
}

func TestService_GetOrCreate_ReturnsExistingUnchanged(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	c, _, _ := svc.GetOrCreate(ctx, alice, bob)
	if _, err := svc.PostMessage(ctx, c.ID, "alice", "hello"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	got, created, err := svc.GetOrCreate(ctx, bob, alice)
	if err != nil || created || len(got.Messages) != 1 {
		t.Fatalf("created=%v messages=%d err=%v", created, len(got.Messages), err)
	}
}

func TestService_Open_StoresOpeningMessageOnce(t *testing.T) {
	t.Parallel()

	svc, clk := newService(t)
	ctx := context.Background()

	c, created, err := svc.Open(ctx, bob, alice, "  Hi Alice  ")
	if err != nil || !created {
		t.Fatalf("Open created=%v err=%v", created, err)
	}
	if len(c.Messages) != 1 || c.Messages[0].Text != "Hi Alice" || c.Messages[0].SenderID != "bob" {
		t.Fatalf("messages=%+v", c.Messages)
	}
	if !c.Messages[0].CreatedAt.Equal(c.CreatedAt) || c.Messages[0].ConversationID != c.ID {
		t.Fatalf("opening message=%+v conv=%s created=%v", c.Messages[0], c.ID, c.CreatedAt)
	}

	clk.Advance(time.Minute)
	again, created, err := svc.Open(ctx, alice, bob, "Hi Bob")
	if err != nil || created || again.ID != c.ID {
		t.Fatalf("Open(existing) id=%s created=%v err=%v", again.ID, created, err)
	}
	if len(again.Messages) != 1 || again.Messages[0].Text != "Hi Alice" {
		t.Fatalf("existing conversation changed: %+v", again.Messages)
	}
}

func TestService_PostMessage_Errors(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	c, _, _ := svc.GetOrCreate(ctx, alice, bob)

	if _, err := svc.PostMessage(ctx, "missing", "alice", "hi"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("missing conversation err=%v", err)
	}
	if _, err := svc.PostMessage(ctx, c.ID, "carol", "hi"); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("non-participant err=%v", err)
	}
	if _, err := svc.PostMessage(ctx, c.ID, "bob", "   \n"); apperr.CodeOf(err) != apperr.CodeEmptyMessage {
		t.Fatalf("blank err=%v", err)
	}
	got, _ := svc.Get(ctx, c.ID, "alice")
	if len(got.Messages) != 0 {
		t.Fatalf("failed posts appended %d messages", len(got.Messages))
	}
}

func TestService_PostMessage_TimestampsNeverGoBackwards(t *testing.T) {
	t.Parallel()

	svc, clk := newService(t)
	ctx := context.Background()
	c, _, _ := svc.GetOrCreate(ctx, alice, bob)

	m1, err := svc.PostMessage(ctx, c.ID, "alice", "one")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	clk.Advance(-time.Hour)
	m2, err := svc.PostMessage(ctx, c.ID, "bob", "two")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if m2.CreatedAt.Before(m1.CreatedAt) {
		t.Fatalf("m2=%v before m1=%v", m2.CreatedAt, m1.CreatedAt)
	}
	clk.Advance(2 * time.Hour)
	m3, _ := svc.PostMessage(ctx, c.ID, "alice", "three")
	if !m3.CreatedAt.After(m2.CreatedAt) {
		t.Fatalf("m3=%v not after m2=%v", m3.CreatedAt, m2.CreatedAt)
	}

	got, _ := svc.Get(ctx, c.ID, "bob")
	if len(got.Messages) != 3 || got.Messages[0].Text != "one" || got.Messages[2].Text != "three" {
		t.Fatalf("messages=%+v", got.Messages)
	}
}

func TestService_ConversationsFor_MostRecentFirst(t *testing.T) {
	t.Parallel()

	svc, clk := newService(t)
	ctx := context.Background()
	ab, _, _ := svc.GetOrCreate(ctx, alice, bob)
	clk.Advance(time.Minute)
	ac, _, _ := svc.GetOrCreate(ctx, carol, alice)
	clk.Advance(time.Minute)
	if _, err := svc.PostMessage(ctx, ab.ID, "bob", "ping"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	cs, err := seq.Collect(svc.ConversationsFor(ctx, "alice"))
	if err != nil {
		t.Fatalf("ConversationsFor: %v", err)
	}
	if len(cs) != 2 || cs[0].ID != ab.ID || cs[1].ID != ac.ID {
		t.Fatalf("order=%v", cs)
	}
	bs, _ := seq.Collect(svc.ConversationsFor(ctx, "bob"))
	if len(bs) != 1 {
		t.Fatalf("bob has %d conversations, want 1", len(bs))
	}
}

func TestService_GetAndDelete_Authorization(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	c, _, _ := svc.GetOrCreate(ctx, alice, bob)

	if _, err := svc.Get(ctx, c.ID, "carol"); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("Get(non-participant) err=%v", err)
	}
	if err := svc.Delete(ctx, c.ID, "carol"); apperr.CodeOf(err) != apperr.CodeForbidden {
		t.Fatalf("Delete(non-participant) err=%v", err)
	}
	if err := svc.Delete(ctx, c.ID, "bob"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, c.ID, "alice"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("Get after delete err=%v", err)
	}
	if err := svc.Delete(ctx, c.ID, "bob"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("Delete twice err=%v", err)
	}
}
