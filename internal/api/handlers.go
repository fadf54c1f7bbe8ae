package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability-scheduling/internal/scheduling"
)

const maxBodyBytes = 1 << 20

func declareAvailabilityHandler(svc *scheduling.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		doctorID, ok := uuidParam(w, r, "doctorId")
		if !ok {
			return
		}

		var req DeclareAvailabilityRequest
		if !decodeAndValidate(w, r, validate, &req) {
			return
		}

		window, slots, err := svc.DeclareAvailability(r.Context(), id, doctorID, scheduling.WindowInput{
			Date:      req.Date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Session:   req.Session,
			Weekdays:  req.Weekdays,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, newWindowResponse(*window, slots))
	}
}

func listWindowsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		doctorID, ok := uuidParam(w, r, "doctorId")
		if !ok {
			return
		}

		windows, err := svc.ListWindows(r.Context(), id, doctorID, r.URL.Query().Get("date"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]WindowResponse, len(windows))
		for i, win := range windows {
			resp[i] = newWindowResponse(win, nil)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getWindowHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		windowID, ok := uuidParam(w, r, "windowId")
		if !ok {
			return
		}

		window, slots, err := svc.GetWindow(r.Context(), id, windowID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newWindowResponse(*window, slots))
	}
}

func deleteWindowHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		windowID, ok := uuidParam(w, r, "windowId")
		if !ok {
			return
		}

		if err := svc.DeleteWindow(r.Context(), id, windowID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		doctorID, ok := uuidParam(w, r, "doctorId")
		if !ok {
			return
		}
		page, limit, ok := pageParams(w, r)
		if !ok {
			return
		}

		result, err := svc.ListAvailable(r.Context(), id, doctorID, r.URL.Query().Get("date"), page, limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		offset, size, _ := scheduling.ValidatePage(page, limit)
		writeJSON(w, http.StatusOK, ListResponse[SlotResponse]{
			Data: newSlotResponses(result.Items),
			Meta: newPageMeta(result.Total, offset, size),
		})
	}
}

func bookAppointmentHandler(svc *scheduling.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		var req BookAppointmentRequest
		if !decodeAndValidate(w, r, validate, &req) {
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotId must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), id, slotID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, newAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		page, limit, ok := pageParams(w, r)
		if !ok {
			return
		}

		result, err := svc.ListAppointments(r.Context(), id, r.URL.Query().Get("status"), page, limit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		data := make([]AppointmentResponse, len(result.Items))
		for i, a := range result.Items {
			data[i] = newAppointmentResponse(a)
		}
		offset, size, _ := scheduling.ValidatePage(page, limit)
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{
			Data: data,
			Meta: newPageMeta(result.Total, offset, size),
		})
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		apptID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id, apptID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(*appt))
	}
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		apptID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, apptID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(*appt))
	}
}

func completeAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		apptID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id, apptID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(*appt))
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+toSnake(name), name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads page and limit; absent values come back as 0 so the
// service applies its defaults.
func pageParams(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &page}, {"limit", &limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_"+p.name, p.name+" must be a positive integer")
			return 0, 0, false
		}
		*p.dst = n
	}
	return page, limit, true
}

// newValidator reports JSON field names in validation errors.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeErrorField(w, http.StatusBadRequest, "validation_failed", fe.Field(),
				"failed on the '"+fe.Tag()+"' rule")
			return false
		}
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

var errorCodes = []struct {
	err  error
	code string
}{
	{scheduling.ErrDoctorNotFound, "doctor_not_found"},
	{scheduling.ErrPatientNotFound, "patient_not_found"},
	{scheduling.ErrWindowNotFound, "window_not_found"},
	{scheduling.ErrSlotNotFound, "slot_not_found"},
	{scheduling.ErrAppointmentNotFound, "appointment_not_found"},
	{scheduling.ErrDuplicateWindow, "duplicate_window"},
	{scheduling.ErrDuplicateSlot, "duplicate_slot"},
	{scheduling.ErrSlotUnavailable, "slot_unavailable"},
	{scheduling.ErrWindowInUse, "window_in_use"},
	{scheduling.ErrInvalidTransition, "invalid_status_transition"},
	{scheduling.ErrNotParticipant, "not_participant"},
	{scheduling.ErrRoleNotAllowed, "role_not_allowed"},
	{scheduling.ErrNotOwner, "not_owner"},
}

// writeServiceError maps the scheduling error kinds onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *scheduling.ValidationError
	if errors.As(err, &verr) {
		writeErrorField(w, http.StatusBadRequest, string(verr.Reason), verr.Field, verr.Error())
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduling.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, scheduling.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduling.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, scheduling.ErrForbidden):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal_error", "internal server error")
		return
	}

	code := strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeErrorField(w http.ResponseWriter, status int, code, field, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field, Details: details})
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
