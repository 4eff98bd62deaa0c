package service

import (
	"time"

	"github.com/google/uuid"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock is the wall clock in UTC.
func SystemClock() Clock {
	return realClock{}
}

// IDGenerator issues identifiers for new reservations and loans.
type IDGenerator interface {
	New() uuid.UUID
}

type uuidGen struct{}

func (uuidGen) New() uuid.UUID {
	return uuid.New()
}

func RandomIDs() IDGenerator {
	return uuidGen{}
}
