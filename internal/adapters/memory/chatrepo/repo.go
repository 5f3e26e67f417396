package chatrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/platform/keylock"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/chatrepo"
)

// Repo is an in-memory implementation of chatrepo.Repository.
// It is safe for concurrent use.
//
// pairLocks serializes GetOrCreate per unordered pair; convLocks serializes
// AppendMessage and Delete per conversation.
type Repo struct {
	mu     sync.RWMutex
	byID   map[domain.ConversationID]domain.Conversation
	byPair map[domain.PairKey]domain.ConversationID

	pairLocks *keylock.Locker[domain.PairKey]
	convLocks *keylock.Locker[domain.ConversationID]
}

func NewRepo() *Repo {
	return &Repo{
		byID:      make(map[domain.ConversationID]domain.Conversation),
		byPair:    make(map[domain.PairKey]domain.ConversationID),
		pairLocks: keylock.New[domain.PairKey](),
		convLocks: keylock.New[domain.ConversationID](),
	}
}

func (r *Repo) GetOrCreate(ctx context.Context, c domain.Conversation) (domain.Conversation, bool, error) {
	_ = ctx
	unlock := r.pairLocks.Lock(c.Pair)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPair[c.Pair]; ok {
		return r.byID[id].Clone(), false, nil
	}
	if _, ok := r.byID[c.ID]; ok || c.ID == "" {
		return domain.Conversation{}, false, chatrepo.ErrAlreadyExists
	}
	c = c.Clone()
	if c.Messages == nil {
		c.Messages = []domain.Message{}
	}
	for i := range c.Messages {
		c.Messages[i].ConversationID = c.ID
	}
	r.byID[c.ID] = c.Clone()
	r.byPair[c.Pair] = c.ID
	return c.Clone(), true, nil
}

func (r *Repo) Get(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.Conversation{}, chatrepo.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *Repo) AppendMessage(ctx context.Context, id domain.ConversationID, fn chatrepo.ComposeFunc) (domain.Message, error) {
	_ = ctx
	unlock := r.convLocks.Lock(id)
	defer unlock()

	r.mu.RLock()
	c, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Message{}, chatrepo.ErrNotFound
	}

	m, err := fn(c.Clone())
	if err != nil {
		return domain.Message{}, err
	}
	m.ConversationID = id

	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.byID[id]
	cur.Messages = append(cur.Clone().Messages, m)
	r.byID[id] = cur
	return m, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.ConversationID, check func(domain.Conversation) error) error {
	_ = ctx
	unlock := r.convLocks.Lock(id)
	defer unlock()

	r.mu.RLock()
	c, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return chatrepo.ErrNotFound
	}
	if check != nil {
		if err := check(c.Clone()); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	if r.byPair[c.Pair] == id {
		delete(r.byPair, c.Pair)
	}
	return nil
}

func (r *Repo) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	_ = ctx
	r.mu.RLock()
	out := make([]domain.Conversation, 0)
	for _, c := range r.byID {
		if c.HasParticipant(userID) {
			out = append(out, c.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
