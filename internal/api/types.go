package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/scheduling"
)

type DeclareAvailabilityRequest struct {
	Date      string   `json:"date" validate:"required"`
	StartTime string   `json:"startTime" validate:"required"`
	EndTime   string   `json:"endTime" validate:"required"`
	Session   string   `json:"session" validate:"required"`
	Weekdays  []string `json:"weekdays,omitempty" validate:"omitempty,max=7,dive,required"`
}

type BookAppointmentRequest struct {
	SlotID string `json:"slotId" validate:"required,uuid"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctorId"`
	WindowID  uuid.UUID `json:"windowId"`
	Date      string    `json:"date"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	State     string    `json:"state"`
}

type WindowResponse struct {
	ID        uuid.UUID      `json:"id"`
	DoctorID  uuid.UUID      `json:"doctorId"`
	Date      string         `json:"date"`
	StartTime string         `json:"startTime"`
	EndTime   string         `json:"endTime"`
	Weekdays  []string       `json:"weekdays"`
	Session   string         `json:"session"`
	CreatedAt time.Time      `json:"createdAt"`
	Slots     []SlotResponse `json:"slots,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctorId"`
	PatientID uuid.UUID `json:"patientId"`
	SlotID    uuid.UUID `json:"slotId"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

type ListResponse[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

func newSlotResponse(s scheduling.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		WindowID:  s.WindowID,
		Date:      s.Date.String(),
		StartTime: s.StartTime.String(),
		EndTime:   s.EndTime.String(),
		State:     string(s.State),
	}
}

func newSlotResponses(slots []scheduling.TimeSlot) []SlotResponse {
	out := make([]SlotResponse, len(slots))
	for i, s := range slots {
		out[i] = newSlotResponse(s)
	}
	return out
}

func newWindowResponse(w scheduling.Window, slots []scheduling.TimeSlot) WindowResponse {
	weekdays := make([]string, len(w.Weekdays))
	for i, d := range w.Weekdays {
		weekdays[i] = d.String()
	}
	resp := WindowResponse{
		ID:        w.ID,
		DoctorID:  w.DoctorID,
		Date:      w.Date.String(),
		StartTime: w.StartTime.String(),
		EndTime:   w.EndTime.String(),
		Weekdays:  weekdays,
		Session:   string(w.Session),
		CreatedAt: w.CreatedAt,
	}
	if len(slots) > 0 {
		resp.Slots = newSlotResponses(slots)
	}
	return resp
}

func newAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		SlotID:    a.SlotID,
		Date:      a.Date.String(),
		Time:      a.Time.String(),
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func newPageMeta(total, offset, limit int) PageMeta {
	meta := PageMeta{Total: total, Limit: limit, Page: 1}
	if limit > 0 {
		meta.Page = offset/limit + 1
		meta.TotalPages = (total + limit - 1) / limit
	}
	return meta
}
