package contracttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	chatrepoport "github.com/Overland-East-Bay/carpool-api/internal/ports/out/chatrepo"
	idempotencyport "github.com/Overland-East-Bay/carpool-api/internal/ports/out/idempotency"
	riderepoport "github.com/Overland-East-Bay/carpool-api/internal/ports/out/riderepo"
)

type CleanupFunc = func()

type RideRepoFactory func(t *testing.T) (riderepoport.Repository, CleanupFunc)
type ChatRepoFactory func(t *testing.T) (chatrepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      "k-1",
		UserID:   domain.UserID("user-" + uuid.NewString()),
		Method:   "POST",
		Route:    "/rides/{rideId}/passengers",
		BodyHash: "",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}
	rec := idempotencyport.Record{
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"id":"c-1"}`),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != `{"id":"c-1"}` || got.ContentType != "application/json" || got.StatusCode != 201 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte(`{"id":"c-2"}`)
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != `{"id":"c-2"}` {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}

	// A different body hash is a different request.
	other := fp
	other.BodyHash = "different"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get other body: ok=%v err=%v", ok, err)
	}

	// Reserve never overwrites a live record.
	cur, reserved, err := store.Reserve(ctx, fp, idempotencyport.Record{CreatedAt: time.Unix(200, 0).UTC()})
	if err != nil || reserved || string(cur.Body) != `{"id":"c-2"}` {
		t.Fatalf("Reserve(existing): reserved=%v err=%v body=%q", reserved, err, string(cur.Body))
	}
	if err := store.Release(ctx, fp); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get after Release: ok=%v err=%v", ok, err)
	}
	if err := store.Release(ctx, fp); err != nil {
		t.Fatalf("Release(missing): %v", err)
	}

	runIdempotencyConcurrentReserve(t, store)
}

// runIdempotencyConcurrentReserve races Reserve on one fingerprint.
func runIdempotencyConcurrentReserve(t *testing.T, store idempotencyport.Store) {
	t.Helper()
	ctx := context.Background()

	fp := idempotencyport.Fingerprint{
		Key:      "k-race",
		UserID:   domain.UserID("user-" + uuid.NewString()),
		Method:   "POST",
		Route:    "/rides/{rideId}/passengers",
		BodyHash: "h",
	}
	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, reserved, err := store.Reserve(ctx, fp, idempotencyport.Record{CreatedAt: time.Unix(300, 0).UTC()})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if reserved {
				won++
			}
		}()
	}
	wg.Wait()
	if len(errs) != 0 || won != 1 {
		t.Fatalf("concurrent Reserve: won=%d errs=%v", won, errs)
	}
	rec, ok, err := store.Get(ctx, fp)
	if err != nil || !ok || !rec.Pending() {
		t.Fatalf("reservation: ok=%v err=%v rec=%+v", ok, err, rec)
	}
}

func newRide(hostID domain.UserID, date, tm string, seats int, now time.Time) domain.Ride {
	return domain.Ride{
		ID:             domain.RideID(uuid.NewString()),
		HostID:         hostID,
		HostName:       "Host " + string(hostID),
		Schedule:       domain.Schedule{Date: date, Time: tm},
		Vehicle:        "Blue Civic",
		Pickup:         "North Hall",
		Destination:    "Station",
		TotalSeats:     seats,
		AvailableSeats: seats,
		Passengers:     []domain.PassengerRef{},
		Fare:           domain.Fare{Distance: 42, Price: 10.98},
		CreatedAt:      now,
	}
}

func RunRideRepo(t *testing.T, newRepo RideRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	hostID := domain.UserID("host-" + uuid.NewString())

	r := newRide(hostID, "2031-05-02", "09:30", 2, now)
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, r); !errors.Is(err, riderepoport.ErrAlreadyExists) {
		t.Fatalf("Create duplicate err=%v, want %v", err, riderepoport.ErrAlreadyExists)
	}
	got, err := repo.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HostID != hostID || got.Schedule != r.Schedule || got.Fare != r.Fare || got.AvailableSeats != 2 || len(got.Passengers) != 0 {
		t.Fatalf("unexpected ride: %+v", got)
	}
	if _, err := repo.Get(ctx, domain.RideID(uuid.NewString())); !errors.Is(err, riderepoport.ErrNotFound) {
		t.Fatalf("Get missing err=%v", err)
	}

	// Update persists on success and passenger order is preserved.
	for _, uid := range []domain.UserID{"p-b", "p-a"} {
		uid := uid
		if _, err := repo.Update(ctx, r.ID, func(ride *domain.Ride) error {
			return ride.Join(domain.PassengerRef{UserID: uid, DisplayName: string(uid)})
		}); err != nil {
			t.Fatalf("Update(join %s): %v", uid, err)
		}
	}
	got, _ = repo.Get(ctx, r.ID)
	if got.AvailableSeats != 0 || len(got.Passengers) != 2 || got.Passengers[0].UserID != "p-b" || got.Passengers[1].UserID != "p-a" {
		t.Fatalf("after joins: %+v", got)
	}

	// Update discards the change when fn fails.
	if _, err := repo.Update(ctx, r.ID, func(ride *domain.Ride) error {
		if err := ride.Leave("p-b"); err != nil {
			return err
		}
		return domain.ErrForbidden
	}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Update(fail) err=%v", err)
	}
	got, _ = repo.Get(ctx, r.ID)
	if got.AvailableSeats != 0 || len(got.Passengers) != 2 {
		t.Fatalf("failed update leaked: %+v", got)
	}
	if _, err := repo.Update(ctx, domain.RideID(uuid.NewString()), func(*domain.Ride) error { return nil }); !errors.Is(err, riderepoport.ErrNotFound) {
		t.Fatalf("Update missing err=%v", err)
	}

	// List ordering: schedule ascending, ties by insertion order.
	early := newRide(hostID, "2031-05-01", "07:00", 1, now)
	tie := newRide(hostID, "2031-05-02", "09:30", 1, now)
	for _, x := range []domain.Ride{early, tie} {
		if err := repo.Create(ctx, x); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var mine []domain.RideID
	for _, x := range all {
		if x.HostID == hostID {
			mine = append(mine, x.ID)
		}
	}
	want := []domain.RideID{early.ID, r.ID, tie.ID}
	if fmt.Sprint(mine) != fmt.Sprint(want) {
		t.Fatalf("List order=%v, want %v", mine, want)
	}

	// Delete honors the check and reports the removed ride.
	if _, err := repo.Delete(ctx, tie.ID, func(domain.Ride) error { return domain.ErrForbidden }); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Delete(check) err=%v", err)
	}
	removed, err := repo.Delete(ctx, tie.ID, nil)
	if err != nil || removed.ID != tie.ID {
		t.Fatalf("Delete: removed=%s err=%v", removed.ID, err)
	}
	if _, err := repo.Get(ctx, tie.ID); !errors.Is(err, riderepoport.ErrNotFound) {
		t.Fatalf("Get after delete err=%v", err)
	}
	if _, err := repo.Delete(ctx, tie.ID, nil); !errors.Is(err, riderepoport.ErrNotFound) {
		t.Fatalf("Delete twice err=%v", err)
	}

	runRideRepoConcurrentJoins(t, repo, hostID, now)
}

// runRideRepoConcurrentJoins races many joins for a single seat.
func runRideRepoConcurrentJoins(t *testing.T, repo riderepoport.Repository, hostID domain.UserID, now time.Time) {
	t.Helper()
	ctx := context.Background()

	r := newRide(hostID, "2031-06-01", "10:00", 1, now)
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		full int
		errs []error
	)
	for i := 0; i < n; i++ {
		uid := domain.UserID(fmt.Sprintf("racer-%02d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, r.ID, func(ride *domain.Ride) error {
				return ride.Join(domain.PassengerRef{UserID: uid})
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrRideFull):
				full++
			default:
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()
	if len(errs) != 0 || ok != 1 || full != n-1 {
		t.Fatalf("concurrent joins: ok=%d full=%d errs=%v", ok, full, errs)
	}
	got, err := repo.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := got.CheckSeatInvariant(); err != nil || got.AvailableSeats != 0 {
		t.Fatalf("after race: %+v invariant=%v", got, err)
	}
}

func RunChatRepo(t *testing.T, newRepo ChatRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(5000, 0).UTC()
	suffix := uuid.NewString()
	alice := domain.Participant{UserID: domain.UserID("alice-" + suffix), DisplayName: "Alice"}
	bob := domain.Participant{UserID: domain.UserID("bob-" + suffix), DisplayName: "Bob"}
	carol := domain.Participant{UserID: domain.UserID("carol-" + suffix), DisplayName: "Carol"}

	ab := domain.NewConversation(domain.ConversationID(uuid.NewString()), alice, bob, now)
	got, created, err := repo.GetOrCreate(ctx, ab)
	if err != nil || !created || got.ID != ab.ID {
		t.Fatalf("GetOrCreate(new): id=%s created=%v err=%v", got.ID, created, err)
	}
	if got.Participants[0].DisplayName == "" || got.Participants[1].DisplayName == "" {
		t.Fatalf("participant names lost: %+v", got.Participants)
	}

	// Same pair in the other order resolves to the stored conversation.
	ba := domain.NewConversation(domain.ConversationID(uuid.NewString()), bob, alice, now)
	got, created, err = repo.GetOrCreate(ctx, ba)
	if err != nil || created || got.ID != ab.ID {
		t.Fatalf("GetOrCreate(existing): id=%s created=%v err=%v", got.ID, created, err)
	}

	// Messages keep insertion order and fn sees the latest history.
	for i, text := range []string{"one", "two", "three"} {
		i, text := i, text
		m, err := repo.AppendMessage(ctx, ab.ID, func(c domain.Conversation) (domain.Message, error) {
			if len(c.Messages) != i {
				return domain.Message{}, fmt.Errorf("fn saw %d messages, want %d", len(c.Messages), i)
			}
			return domain.Message{
				ID:        domain.MessageID(uuid.NewString()),
				SenderID:  alice.UserID,
				Text:      text,
				CreatedAt: now.Add(time.Duration(i) * time.Second),
			}, nil
		})
		if err != nil {
			t.Fatalf("AppendMessage(%s): %v", text, err)
		}
		if m.ConversationID != ab.ID {
			t.Fatalf("message conversation id=%s", m.ConversationID)
		}
	}
	if _, err := repo.AppendMessage(ctx, ab.ID, func(domain.Conversation) (domain.Message, error) {
		return domain.Message{}, domain.ErrEmptyMessage
	}); !errors.Is(err, domain.ErrEmptyMessage) {
		t.Fatalf("AppendMessage(fail) err=%v", err)
	}
	c, err := repo.Get(ctx, ab.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(c.Messages) != 3 || c.Messages[0].Text != "one" || c.Messages[2].Text != "three" {
		t.Fatalf("messages=%+v", c.Messages)
	}
	if !c.Messages[2].CreatedAt.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("message time=%v", c.Messages[2].CreatedAt)
	}

	// ListByUser: most recent activity first.
	ac := domain.NewConversation(domain.ConversationID(uuid.NewString()), alice, carol, now.Add(time.Hour))
	if _, _, err := repo.GetOrCreate(ctx, ac); err != nil {
		t.Fatalf("GetOrCreate(a,c): %v", err)
	}
	list, err := repo.ListByUser(ctx, alice.UserID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 2 || list[0].ID != ac.ID || list[1].ID != ab.ID {
		t.Fatalf("ListByUser order: %+v", list)
	}
	if list, _ := repo.ListByUser(ctx, bob.UserID); len(list) != 1 {
		t.Fatalf("bob conversations=%d", len(list))
	}

	// Delete honors the check, then frees the pair.
	if err := repo.Delete(ctx, ab.ID, func(domain.Conversation) error { return domain.ErrForbidden }); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Delete(check) err=%v", err)
	}
	if err := repo.Delete(ctx, ab.ID, nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, ab.ID); !errors.Is(err, chatrepoport.ErrNotFound) {
		t.Fatalf("Get after delete err=%v", err)
	}
	if err := repo.Delete(ctx, ab.ID, nil); !errors.Is(err, chatrepoport.ErrNotFound) {
		t.Fatalf("Delete twice err=%v", err)
	}
	fresh := domain.NewConversation(domain.ConversationID(uuid.NewString()), alice, bob, now)
	if _, created, err := repo.GetOrCreate(ctx, fresh); err != nil || !created {
		t.Fatalf("GetOrCreate after delete: created=%v err=%v", created, err)
	}

	runChatRepoConcurrentCreate(t, repo, now)
}

// runChatRepoConcurrentCreate races GetOrCreate for one pair from both sides.
// Every caller brings an opening message; only the winner's is stored.
func runChatRepoConcurrentCreate(t *testing.T, repo chatrepoport.Repository, now time.Time) {
	t.Helper()
	ctx := context.Background()

	suffix := uuid.NewString()
	x := domain.Participant{UserID: domain.UserID("x-" + suffix)}
	y := domain.Participant{UserID: domain.UserID("y-" + suffix)}

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[domain.ConversationID]struct{}{}
		created int
		errs    []error
	)
	for i := 0; i < n; i++ {
		a, b := x, y
		if i%2 == 1 {
			a, b = y, x
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := domain.NewConversation(domain.ConversationID(uuid.NewString()), a, b, now)
			c.Messages = append(c.Messages, domain.Message{
				ID:        domain.MessageID(uuid.NewString()),
				SenderID:  a.UserID,
				Text:      "hello",
				CreatedAt: now,
			})
			got, ok, err := repo.GetOrCreate(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[got.ID] = struct{}{}
			if ok {
				created++
			}
		}()
	}
	wg.Wait()
	if len(errs) != 0 || len(ids) != 1 || created != 1 {
		t.Fatalf("concurrent GetOrCreate: ids=%d created=%d errs=%v", len(ids), created, errs)
	}
	for id := range ids {
		c, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(c.Messages) != 1 || c.Messages[0].ConversationID != id || c.Messages[0].Text != "hello" {
			t.Fatalf("opening messages=%+v, want exactly one", c.Messages)
		}
		if !c.LastActivity().Equal(now) {
			t.Fatalf("last activity=%v, want %v", c.LastActivity(), now)
		}
	}
}
