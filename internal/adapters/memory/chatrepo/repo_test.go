package chatrepo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/chatrepo"
)

func TestRepo_GetOrCreate_ConcurrentSamePair(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	now := time.Unix(100, 0).UTC()
	a := domain.Participant{UserID: "alice", DisplayName: "Alice"}
	b := domain.Participant{UserID: "bob", DisplayName: "Bob"}

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[domain.ConversationID]int{}
		created int
	)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			x, y := a, b
			if i%2 == 1 {
				x, y = b, a
			}
			c := domain.NewConversation(domain.ConversationID(fmt.Sprintf("c-%02d", i)), x, y, now)
			got, ok, err := r.GetOrCreate(context.Background(), c)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[got.ID]++
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 || created != 1 {
		t.Fatalf("distinct ids=%d created=%d, want 1 and 1", len(ids), created)
	}
}

func TestRepo_Delete_FreesPair(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx := context.Background()
	now := time.Unix(100, 0).UTC()
	a := domain.Participant{UserID: "alice"}
	b := domain.Participant{UserID: "bob"}

	first, _, err := r.GetOrCreate(ctx, domain.NewConversation("c1", a, b, now))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := r.Delete(ctx, first.ID, nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.AppendMessage(ctx, first.ID, func(domain.Conversation) (domain.Message, error) {
		return domain.Message{ID: "m1"}, nil
	}); err != chatrepo.ErrNotFound {
		t.Fatalf("AppendMessage after delete err=%v, want %v", err, chatrepo.ErrNotFound)
	}

	second, created, err := r.GetOrCreate(ctx, domain.NewConversation("c2", b, a, now))
	if err != nil || !created || second.ID != "c2" {
		t.Fatalf("GetOrCreate after delete: id=%s created=%v err=%v", second.ID, created, err)
	}
}
