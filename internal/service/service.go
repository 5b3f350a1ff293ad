// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/eventhub/internal/broker"
	"github.com/Shivanand-hulikatti/eventhub/internal/model"
	"github.com/Shivanand-hulikatti/eventhub/internal/repository"
)

// ID prefixes.
const (
	eventIDPrefix    = "EVT"
	attendeeIDPrefix = "ATT"
)

// EventService orchestrates event-related business operations.
type EventService struct {
	store     repository.Store
	publisher broker.Publisher
	logger    *zap.Logger
	validate  *validator.Validate
	newID     func(prefix string) string
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	store repository.Store,
	publisher broker.Publisher,
	logger *zap.Logger,
) *EventService {
	if publisher == nil {
		publisher = broker.NopPublisher{}
	}
	return &EventService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		validate:  newValidator(),
		newID:     newID,
	}
}

// newID returns prefix-<uuid>. Random IDs cannot collide the way per-millisecond
// timestamps do.
func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report violations by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ListEvents returns the full collection in insertion order.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	events, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return repository.FindByID(events, id)
}

// CreateEvent validates the request, appends a new event to the collection and
// persists it.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	var fields []model.FieldError
	fields = append(fields, s.requiredFields(req)...)

	maxAttendees, capErr := parseCapacity(req.MaxAttendees)
	if capErr != nil {
		fields = append(fields, *capErr)
	}
	if len(fields) > 0 {
		return nil, newValidationError(fields)
	}

	event := model.Event{
		EventID:          s.newID(eventIDPrefix),
		Title:            req.Title,
		Description:      req.Description,
		Date:             req.Date,
		Location:         req.Location,
		MaxAttendees:     maxAttendees,
		CurrentAttendees: 0,
		Status:           model.StatusUpcoming,
		Attendees:        []model.Attendee{},
	}

	err := s.store.Update(ctx, func(events []model.Event) ([]model.Event, error) {
		return append(events, event), nil
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.publish(ctx, broker.EventCreated, event)
	return &event, nil
}

// Register validates the request and, inside one serialized store update,
// looks the event up, checks its capacity and appends the attendee.
func (s *EventService) Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Attendee, error) {
	if fields := s.requiredFields(req); len(fields) > 0 {
		return nil, newValidationError(fields)
	}

	attendee := model.Attendee{
		ID:    s.newID(attendeeIDPrefix),
		Name:  req.Name,
		Email: req.Email,
	}

	err := s.store.Update(ctx, func(events []model.Event) ([]model.Event, error) {
		event, err := repository.FindByID(events, eventID)
		if err != nil {
			return nil, err
		}
		if event.IsFull() {
			return nil, repository.ErrEventFull
		}
		event.AddAttendee(attendee)
		return events, nil
	})
	if err != nil {
		// Surface domain errors directly so handlers can set correct HTTP status.
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrEventFull) {
			return nil, err
		}
		return nil, fmt.Errorf("register for event: %w", err)
	}

	s.publish(ctx, broker.AttendeeRegistered, registeredMessage{EventID: eventID, Attendee: attendee})
	return &attendee, nil
}

type registeredMessage struct {
	EventID  string         `json:"eventId"`
	Attendee model.Attendee `json:"attendee"`
}

// publish is best effort: the write already succeeded, so failures are only logged.
func (s *EventService) publish(ctx context.Context, routingKey string, payload any) {
	if err := s.publisher.Publish(ctx, routingKey, payload); err != nil {
		s.logger.Warn("publish notification failed",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

// requiredFields runs the struct validator and converts every violation.
func (s *EventService) requiredFields(req any) []model.FieldError {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []model.FieldError{{Field: "body", Message: err.Error()}}
	}

	fields := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := "is invalid"
		if fe.Tag() == "required" {
			msg = msgRequired
		}
		fields = append(fields, model.FieldError{Field: fe.Field(), Message: msg})
	}
	return fields
}
