package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/eventhub/internal/broker"
	"github.com/Shivanand-hulikatti/eventhub/internal/model"
	"github.com/Shivanand-hulikatti/eventhub/internal/repository"
)

type published struct {
	routingKey string
	payload    any
}

// recordingPublisher captures notifications and optionally fails.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{routingKey: routingKey, payload: payload})
	return p.err
}

// failingStore returns err from every operation.
type failingStore struct {
	err error
}

func (s failingStore) Ensure(context.Context) error { return s.err }
func (s failingStore) LoadAll(context.Context) ([]model.Event, error) {
	return nil, s.err
}
func (s failingStore) SaveAll(context.Context, []model.Event) error { return s.err }
func (s failingStore) Update(context.Context, repository.UpdateFunc) error {
	return s.err
}
func (s failingStore) Close() error { return nil }

func newTestService(t *testing.T) (*EventService, repository.Store, *recordingPublisher) {
	t.Helper()

	store := repository.NewFileStore(filepath.Join(t.TempDir(), "events.json"))
	pub := &recordingPublisher{}
	return NewEventService(store, pub, zap.NewNop()), store, pub
}

func createReq(maxAttendees string) model.CreateEventRequest {
	return model.CreateEventRequest{
		Title:        "Meetup",
		Date:         "2025-01-01",
		Location:     "HQ",
		MaxAttendees: json.RawMessage(maxAttendees),
	}
}

func mustCreate(t *testing.T, svc *EventService, maxAttendees string) *model.Event {
	t.Helper()

	event, err := svc.CreateEvent(context.Background(), createReq(maxAttendees))
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	return event
}

func loadAll(t *testing.T, store repository.Store) []model.Event {
	t.Helper()

	events, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	return events
}

func TestCreateEvent(t *testing.T) {
	t.Parallel()

	t.Run("creates an upcoming event with no attendees", func(t *testing.T) {
		t.Parallel()
		svc, store, pub := newTestService(t)

		req := createReq("3")
		req.Description = "monthly"
		event, err := svc.CreateEvent(context.Background(), req)
		if err != nil {
			t.Fatalf("CreateEvent() error = %v", err)
		}

		if !strings.HasPrefix(event.EventID, "EVT-") {
			t.Errorf("eventId = %q; want EVT- prefix", event.EventID)
		}
		want := model.Event{
			EventID:          event.EventID,
			Title:            "Meetup",
			Description:      "monthly",
			Date:             "2025-01-01",
			Location:         "HQ",
			MaxAttendees:     3,
			CurrentAttendees: 0,
			Status:           model.StatusUpcoming,
			Attendees:        []model.Attendee{},
		}
		if diff := cmp.Diff(want, *event); diff != "" {
			t.Errorf("event mismatch (-want +got):\n%s", diff)
		}

		if diff := cmp.Diff([]model.Event{want}, loadAll(t, store)); diff != "" {
			t.Errorf("persisted mismatch (-want +got):\n%s", diff)
		}

		if len(pub.msgs) != 1 || pub.msgs[0].routingKey != broker.EventCreated {
			t.Errorf("published = %+v; want one %s", pub.msgs, broker.EventCreated)
		}
	})

	t.Run("appends in creation order with distinct IDs", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestService(t)

		first := mustCreate(t, svc, "1")
		second := mustCreate(t, svc, "1")
		if first.EventID == second.EventID {
			t.Fatalf("duplicate eventId %q", first.EventID)
		}

		events := loadAll(t, store)
		if len(events) != 2 || events[0].EventID != first.EventID || events[1].EventID != second.EventID {
			t.Errorf("events out of order: %+v", events)
		}
	})

	t.Run("accepts numeric coercions of maxAttendees", func(t *testing.T) {
		t.Parallel()

		tests := map[string]int{
			`5`:     5,
			`"5"`:   5,
			`" 7 "`: 7,
			`5.0`:   5,
			`1e2`:   100,
		}
		for raw, want := range tests {
			svc, _, _ := newTestService(t)
			event, err := svc.CreateEvent(context.Background(), createReq(raw))
			if err != nil {
				t.Errorf("maxAttendees=%s: error = %v", raw, err)
				continue
			}
			if event.MaxAttendees != want {
				t.Errorf("maxAttendees=%s: got %d; want %d", raw, event.MaxAttendees, want)
			}
		}
	})

	t.Run("rejects invalid maxAttendees without persisting", func(t *testing.T) {
		t.Parallel()

		for _, raw := range []string{`0`, `-1`, `3.5`, `"abc"`, `""`, `null`, `true`, `[]`, `{}`, `"Infinity"`, `1e12`} {
			raw := raw
			t.Run(raw, func(t *testing.T) {
				t.Parallel()
				svc, store, pub := newTestService(t)

				_, err := svc.CreateEvent(context.Background(), createReq(raw))
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("error = %v; want *ValidationError", err)
				}
				if got, want := verr.Error(), "maxAttendees must be a positive integer"; got != want {
					t.Errorf("message = %q; want %q", got, want)
				}
				if n := len(loadAll(t, store)); n != 0 {
					t.Errorf("persisted %d events; want 0", n)
				}
				if len(pub.msgs) != 0 {
					t.Errorf("published %d messages; want 0", len(pub.msgs))
				}
			})
		}
	})

	t.Run("enumerates every violation", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)

		_, err := svc.CreateEvent(context.Background(), model.CreateEventRequest{Description: "only"})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("error = %v; want *ValidationError", err)
		}

		want := []model.FieldError{
			{Field: "title", Message: msgRequired},
			{Field: "date", Message: msgRequired},
			{Field: "location", Message: msgRequired},
			{Field: "maxAttendees", Message: msgRequired},
		}
		if diff := cmp.Diff(want, verr.Fields); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}
		if got, want := verr.Error(), "Missing required fields: title, date, location, maxAttendees"; got != want {
			t.Errorf("message = %q; want %q", got, want)
		}
	})

	t.Run("mixes missing and malformed fields", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)

		req := createReq(`"abc"`)
		req.Location = ""
		_, err := svc.CreateEvent(context.Background(), req)
		if err == nil {
			t.Fatal("CreateEvent() succeeded; want error")
		}
		want := "Missing required fields: location; maxAttendees must be a positive integer"
		if err.Error() != want {
			t.Errorf("message = %q; want %q", err.Error(), want)
		}
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		t.Parallel()
		svc := NewEventService(failingStore{err: repository.ErrStoreWrite}, nil, zap.NewNop())

		_, err := svc.CreateEvent(context.Background(), createReq("1"))
		if !errors.Is(err, repository.ErrStoreWrite) {
			t.Errorf("error = %v; want ErrStoreWrite", err)
		}
	})
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ann := model.RegisterRequest{Name: "Ann", Email: "a@x.com"}
	bob := model.RegisterRequest{Name: "Bob", Email: "b@x.com"}

	t.Run("appends the attendee and increments the count", func(t *testing.T) {
		t.Parallel()
		svc, store, pub := newTestService(t)
		event := mustCreate(t, svc, "2")

		first, err := svc.Register(ctx, event.EventID, ann)
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		second, err := svc.Register(ctx, event.EventID, bob)
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if !strings.HasPrefix(first.ID, "ATT-") || first.ID == second.ID {
			t.Errorf("attendee IDs = %q, %q; want distinct ATT- IDs", first.ID, second.ID)
		}

		got := loadAll(t, store)[0]
		if got.CurrentAttendees != 2 {
			t.Errorf("currentAttendees = %d; want 2", got.CurrentAttendees)
		}
		if diff := cmp.Diff([]model.Attendee{*first, *second}, got.Attendees); diff != "" {
			t.Errorf("attendees mismatch (-want +got):\n%s", diff)
		}

		if n := len(pub.msgs); n != 3 || pub.msgs[2].routingKey != broker.AttendeeRegistered {
			t.Errorf("published = %+v; want event.created then two attendee.registered", pub.msgs)
		}
	})

	t.Run("full event is rejected and unchanged", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestService(t)
		event := mustCreate(t, svc, "1")

		if _, err := svc.Register(ctx, event.EventID, ann); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		before := loadAll(t, store)

		_, err := svc.Register(ctx, event.EventID, bob)
		if !errors.Is(err, repository.ErrEventFull) {
			t.Fatalf("error = %v; want ErrEventFull", err)
		}
		if diff := cmp.Diff(before, loadAll(t, store)); diff != "" {
			t.Errorf("store changed (-before +after):\n%s", diff)
		}
	})

	t.Run("unknown event is not found and store unchanged", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestService(t)
		mustCreate(t, svc, "1")
		before := loadAll(t, store)

		_, err := svc.Register(ctx, "EVT-missing", ann)
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("error = %v; want ErrNotFound", err)
		}
		if diff := cmp.Diff(before, loadAll(t, store)); diff != "" {
			t.Errorf("store changed (-before +after):\n%s", diff)
		}
	})

	t.Run("missing name and email are both reported", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		event := mustCreate(t, svc, "1")

		_, err := svc.Register(ctx, event.EventID, model.RegisterRequest{})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("error = %v; want *ValidationError", err)
		}
		if got, want := verr.Error(), "Missing required fields: name, email"; got != want {
			t.Errorf("message = %q; want %q", got, want)
		}
	})

	t.Run("validation runs before lookup", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)

		_, err := svc.Register(ctx, "EVT-missing", model.RegisterRequest{Name: "Ann"})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("error = %v; want *ValidationError", err)
		}
	})

	t.Run("publish failure does not fail the registration", func(t *testing.T) {
		t.Parallel()
		svc, _, pub := newTestService(t)
		event := mustCreate(t, svc, "1")
		pub.err = errors.New("broker down")

		if _, err := svc.Register(ctx, event.EventID, ann); err != nil {
			t.Errorf("Register() error = %v; want nil", err)
		}
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		t.Parallel()
		svc := NewEventService(failingStore{err: repository.ErrStoreRead}, nil, zap.NewNop())

		_, err := svc.Register(ctx, "EVT-1", ann)
		if !errors.Is(err, repository.ErrStoreRead) {
			t.Errorf("error = %v; want ErrStoreRead", err)
		}
	})
}

// TestRegister_Concurrent fires more registrations than seats at once and
// checks that exactly capacity of them succeed.
func TestRegister_Concurrent(t *testing.T) {
	t.Parallel()

	const (
		capacity = 10
		requests = 50
	)

	svc, store, _ := newTestService(t)
	event := mustCreate(t, svc, "10")

	var succeeded, full atomic.Int64
	var g errgroup.Group
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			_, err := svc.Register(context.Background(), event.EventID, model.RegisterRequest{Name: "user", Email: "u@x.com"})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, repository.ErrEventFull):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := succeeded.Load(); got != capacity {
		t.Errorf("succeeded = %d; want %d", got, capacity)
	}
	if got := full.Load(); got != requests-capacity {
		t.Errorf("full = %d; want %d", got, requests-capacity)
	}

	persisted := loadAll(t, store)[0]
	if persisted.CurrentAttendees != capacity || len(persisted.Attendees) != capacity {
		t.Errorf("persisted current=%d len=%d; want %d", persisted.CurrentAttendees, len(persisted.Attendees), capacity)
	}
}

func TestGetEventAndList(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	events, err := svc.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d; want 0", len(events))
	}

	created := mustCreate(t, svc, "4")
	got, err := svc.GetEvent(ctx, created.EventID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if diff := cmp.Diff(*created, *got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.GetEvent(ctx, "EVT-missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetEvent() error = %v; want ErrNotFound", err)
	}

	failing := NewEventService(failingStore{err: repository.ErrStoreRead}, nil, zap.NewNop())
	if _, err := failing.ListEvents(ctx); !errors.Is(err, repository.ErrStoreRead) {
		t.Errorf("ListEvents() error = %v; want ErrStoreRead", err)
	}
}
