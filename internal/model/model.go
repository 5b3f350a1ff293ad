// Package model defines the core domain types for the event registration service.
package model

import "encoding/json"

// Status is the lifecycle state of an event.
type Status string

// StatusUpcoming is assigned at creation; no transitions exist.
const StatusUpcoming Status = "upcoming"

// Event is a capacity-bounded activity that attendees register for.
// Field order matches the persisted JSON layout.
type Event struct {
	EventID          string     `json:"eventId"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Date             string     `json:"date"`
	Location         string     `json:"location"`
	MaxAttendees     int        `json:"maxAttendees"`
	CurrentAttendees int        `json:"currentAttendees"`
	Status           Status     `json:"status"`
	Attendees        []Attendee `json:"attendees"`
}

// Remaining returns the number of available seats.
func (e *Event) Remaining() int {
	return e.MaxAttendees - e.CurrentAttendees
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.CurrentAttendees >= e.MaxAttendees
}

// AddAttendee appends a to the attendee list and keeps the derived counter in sync.
func (e *Event) AddAttendee(a Attendee) {
	e.Attendees = append(e.Attendees, a)
	e.CurrentAttendees = len(e.Attendees)
}

// Attendee is a participant registered for exactly one event.
type Attendee struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateEventRequest is the payload for creating a new event.
// MaxAttendees is kept raw because numeric strings are accepted too.
type CreateEventRequest struct {
	Title        string          `json:"title" validate:"required"`
	Description  string          `json:"description"`
	Date         string          `json:"date" validate:"required"`
	Location     string          `json:"location" validate:"required"`
	MaxAttendees json.RawMessage `json:"maxAttendees"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required"`
}

// RegisterResponse confirms a successful registration.
type RegisterResponse struct {
	Message  string   `json:"message"`
	Attendee Attendee `json:"attendee"`
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}
