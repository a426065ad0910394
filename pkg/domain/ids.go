// Package domain holds typed identifiers and primitives shared across the
// aid core. IDs are distinct types over uuid.UUID so a donation ID can never
// be passed where a request ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "aidpool/pkg/domain-errors"
)

// ActorID identifies a user acting on the system: requester, admin or donor.
type ActorID uuid.UUID

// RequestID identifies an aid request.
type RequestID uuid.UUID

// DonationID identifies a donation.
type DonationID uuid.UUID

// NewActorID returns a fresh random actor ID.
func NewActorID() ActorID { return ActorID(uuid.New()) }

// NewRequestID returns a fresh random request ID.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewDonationID returns a fresh random donation ID.
func NewDonationID() DonationID { return DonationID(uuid.New()) }

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}

// ParseActorID validates and returns an ActorID.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor")
	return ActorID(u), err
}

// ParseRequestID validates and returns a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request")
	return RequestID(u), err
}

// ParseDonationID validates and returns a DonationID.
func ParseDonationID(s string) (DonationID, error) {
	u, err := parseUUID(s, "donation")
	return DonationID(u), err
}

func (id ActorID) String() string    { return uuid.UUID(id).String() }
func (id RequestID) String() string  { return uuid.UUID(id).String() }
func (id DonationID) String() string { return uuid.UUID(id).String() }

func (id ActorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DonationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// IDs serialize as canonical uuid strings so persisted JSON documents stay
// readable and comparable by value.

func (id ActorID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id RequestID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id DonationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ActorID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = ActorID(u)
	return nil
}

func (id *RequestID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = RequestID(u)
	return nil
}

func (id *DonationID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = DonationID(u)
	return nil
}
