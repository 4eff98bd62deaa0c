package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository"
	"toolrent-backend/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Handler serves the booking API on top of the booking services.
type Handler struct {
	availability service.AvailabilityService
	reservations service.ReservationService
	loans        service.LoanService
	clock        service.Clock
}

func NewHandler(availability service.AvailabilityService, reservations service.ReservationService, loans service.LoanService, clock service.Clock) *Handler {
	if clock == nil {
		clock = service.SystemClock()
	}
	return &Handler{
		availability: availability,
		reservations: reservations,
		loans:        loans,
		clock:        clock,
	}
}

type availabilityRequest struct {
	ToolIDs []uuid.UUID `json:"tool_ids"`
	Start   time.Time   `json:"start"`
	End     time.Time   `json:"end"`
}

type availabilityResponse struct {
	Availability map[uuid.UUID]bool `json:"availability"`
}

type createReservationRequest struct {
	// MemberID is only honoured for administrators booking on behalf of a member.
	MemberID *uuid.UUID `json:"member_id,omitempty"`
	ToolIDs  []uuid.UUID `json:"tool_ids"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
}

type checkoutReservationRequest struct {
	Due *time.Time `json:"due,omitempty"`
}

type checkoutEntry struct {
	ReservationID *uuid.UUID  `json:"reservation_id,omitempty"`
	MemberID      *uuid.UUID  `json:"member_id,omitempty"`
	ToolIDs       []uuid.UUID `json:"tool_ids,omitempty"`
	Due           *time.Time  `json:"due,omitempty"`
}

type checkoutBatchRequest struct {
	Entries []checkoutEntry `json:"entries"`
}

type returnLoanRequest struct {
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Notes      string     `json:"notes"`
}

type reservationPage struct {
	Reservations []domain.Reservation `json:"reservations"`
	Total        int32                `json:"total"`
}

type loanPage struct {
	Loans []domain.Loan `json:"loans"`
	Total int32         `json:"total"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !decode(w, r, &req) {
		return
	}
	avail, err := h.availability.CheckWindow(r.Context(), req.ToolIDs, domain.Window{Start: req.Start, End: req.End}, service.Exclusions{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Availability: avail})
}

func (h *Handler) ListAvailableTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTime(q.Get("start"))
	if err != nil {
		badRequest(w, "start: "+err.Error())
		return
	}
	end, err := parseTime(q.Get("end"))
	if err != nil {
		badRequest(w, "end: "+err.Error())
		return
	}
	tools, err := h.availability.ListAvailableTools(r.Context(), domain.Window{Start: start, End: end})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": nonNil(tools)})
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if !decode(w, r, &req) {
		return
	}
	claims := ClaimsFromContext(r.Context())
	memberID := claims.MemberID
	if req.MemberID != nil && claims.IsAdmin() {
		memberID = *req.MemberID
	}

	res, err := h.reservations.CreateBatch(r.Context(), memberID, req.ToolIDs, req.Start, req.End)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.reservations.Get(r.Context(), id, actingMember(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cancelled, err := h.reservations.Cancel(r.Context(), id, actingMember(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (h *Handler) CheckoutReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req checkoutReservationRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	loan, err := h.loans.CheckoutFromReservation(r.Context(), id, req.Due, actingMember(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (h *Handler) MyReservations(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	list, err := h.reservations.ListActiveForMember(r.Context(), claims.MemberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": nonNil(list)})
}

func (h *Handler) MyReservationHistory(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePage(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	claims := ClaimsFromContext(r.Context())
	list, total, err := h.reservations.ListHistoryForMember(r.Context(), claims.MemberID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationPage{Reservations: nonNil(list), Total: total})
}

func (h *Handler) CheckoutLoans(w http.ResponseWriter, r *http.Request) {
	var req checkoutBatchRequest
	if !decode(w, r, &req) {
		return
	}
	entries := make([]service.CheckoutEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = service.CheckoutEntry{
			ReservationID: e.ReservationID,
			ToolIDs:       e.ToolIDs,
			Due:           e.Due,
		}
		if e.MemberID != nil {
			entries[i].MemberID = *e.MemberID
		}
	}

	loans, err := h.loans.CheckoutBatch(r.Context(), entries, actingMember(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"loans": loans})
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loan, err := h.loans.Get(r.Context(), id, actingMember(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req returnLoanRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	returnedAt := h.clock.Now()
	if req.ReturnedAt != nil {
		returnedAt = *req.ReturnedAt
	}

	loan, err := h.loans.Return(r.Context(), id, returnedAt, req.Notes, actingMember(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) SearchReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f repository.ReservationFilter
	var err error
	if f.Page, f.PageSize, err = parsePage(r); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.MemberID, err = optionalUUID(q.Get("member_id")); err != nil {
		badRequest(w, "member_id: "+err.Error())
		return
	}
	if f.From, err = optionalTime(q.Get("from")); err != nil {
		badRequest(w, "from: "+err.Error())
		return
	}
	if f.To, err = optionalTime(q.Get("to")); err != nil {
		badRequest(w, "to: "+err.Error())
		return
	}
	if v := q.Get("status"); v != "" {
		s, err := domain.ParseReservationStatus(v)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.Status = &s
	}

	list, total, err := h.reservations.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationPage{Reservations: nonNil(list), Total: total})
}

func (h *Handler) SearchLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f repository.LoanFilter
	var err error
	if f.Page, f.PageSize, err = parsePage(r); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.MemberID, err = optionalUUID(q.Get("member_id")); err != nil {
		badRequest(w, "member_id: "+err.Error())
		return
	}
	if f.ToolID, err = optionalUUID(q.Get("tool_id")); err != nil {
		badRequest(w, "tool_id: "+err.Error())
		return
	}
	if v := q.Get("status"); v != "" {
		s, err := domain.ParseLoanStatus(v)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.Status = &s
	}
	if v := q.Get("open_only"); v != "" {
		if f.OpenOnly, err = strconv.ParseBool(v); err != nil {
			badRequest(w, "open_only: "+err.Error())
			return
		}
	}

	list, total, err := h.loans.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanPage{Loans: nonNil(list), Total: total})
}

func (h *Handler) ListOverdueLoans(w http.ResponseWriter, r *http.Request) {
	asOf := h.clock.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			badRequest(w, "as_of: "+err.Error())
			return
		}
		asOf = t
	}
	list, err := h.loans.ListOverdue(r.Context(), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": nonNil(list)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	return true
}

// decodeOptional accepts an empty body and leaves v untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("is required")
	}
	return time.Parse(time.RFC3339, v)
}

func optionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalUUID(v string) (*uuid.UUID, error) {
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parsePage(r *http.Request) (int32, int32, error) {
	q := r.URL.Query()
	var page, pageSize int64
	var err error
	if v := q.Get("page"); v != "" {
		if page, err = strconv.ParseInt(v, 10, 32); err != nil {
			return 0, 0, fmt.Errorf("invalid page: %q", v)
		}
	}
	if v := q.Get("page_size"); v != "" {
		if pageSize, err = strconv.ParseInt(v, 10, 32); err != nil {
			return 0, 0, fmt.Errorf("invalid page_size: %q", v)
		}
	}
	return int32(page), int32(pageSize), nil
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
