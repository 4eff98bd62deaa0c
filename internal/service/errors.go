package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound covers missing tools, members, reservations and loans, and
	// also ownership mismatches so callers cannot probe for foreign ids.
	ErrNotFound         = errors.New("not found")
	ErrInvalidWindow    = errors.New("invalid time window")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidState     = errors.New("invalid state")
	ErrToolUnavailable  = errors.New("tool unavailable")
	ErrDuplicateInBatch = errors.New("tool requested more than once in batch")
)

// UnavailableError reports an all-or-nothing rejection. UnavailableIDs lists
// every offending tool (missing, out of service or booked); AvailableIDs lists
// the requested tools that would have been bookable.
type UnavailableError struct {
	AvailableIDs   []uuid.UUID
	UnavailableIDs []uuid.UUID
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrToolUnavailable, joinIDs(e.UnavailableIDs))
}

func (e *UnavailableError) Unwrap() error {
	return ErrToolUnavailable
}

type DuplicateInBatchError struct {
	ToolIDs []uuid.UUID
}

func (e *DuplicateInBatchError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateInBatch, joinIDs(e.ToolIDs))
}

func (e *DuplicateInBatchError) Unwrap() error {
	return ErrDuplicateInBatch
}

func invalidWindow(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidWindow, msg)
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

func invalidState(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, msg)
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

// findDuplicates returns each id that occurs more than once in ids.
func findDuplicates(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]int, len(ids))
	var dups []uuid.UUID
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	return dups
}
