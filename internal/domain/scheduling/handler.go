package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/scheduler/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctors := api.Group("/doctors/:doctor_id")
	doctors.GET("/slots", h.GetSlots)
	doctors.GET("/weekly-schedule", h.GetWeeklySchedule)
	doctors.PUT("/weekly-schedule", h.ReplaceWeeklySchedule)
	doctors.GET("/overrides/:date", h.GetOverrides)
	doctors.PUT("/overrides/:date", h.SetOverrides)
	doctors.GET("/appointments", h.ListDoctorAppointments)

	api.POST("/appointments", h.BookAppointment)
	api.GET("/appointments/:id", h.GetAppointment)
	api.DELETE("/appointments/:id", h.DeleteAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
	api.POST("/appointments/:id/complete", h.CompleteAppointment)
	api.POST("/appointments/:id/reschedule", h.RescheduleAppointment)

	api.GET("/patients/:patient_id/appointments", h.ListPatientAppointments)
}

// errorBody is the JSON error envelope. Echo's default error handler
// serialises non-string HTTPError messages as they are.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrPastDate), errors.Is(err, ErrSlotUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrNotCancellable), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAppointmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func httpError(err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	return echo.NewHTTPError(status, errorBody{Error: ErrorCode(err), Message: msg}).SetInternal(err)
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "validation_error", Message: msg})
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid " + field)
	}
	return id, nil
}

func parseDate(raw string) (Date, error) {
	if raw == "" {
		return Date{}, badRequest("date is required")
	}
	d, err := ParseDate(raw)
	if err != nil {
		return Date{}, badRequest(err.Error())
	}
	return d, nil
}

// -- Slots --

type slotsResponse struct {
	DoctorID uuid.UUID  `json:"doctor_id"`
	Date     Date       `json:"date"`
	Slots    []SlotView `json:"slots"`
}

// GetSlots lists the doctor's slots for ?date=. With ?all=true blocked slots
// are included as well.
func (h *Handler) GetSlots(c echo.Context) error {
	doctorID, err := parseID(c.Param("doctor_id"), "doctor_id")
	if err != nil {
		return err
	}
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return err
	}
	all, _ := strconv.ParseBool(c.QueryParam("all"))

	var slots []SlotView
	if all {
		slots, err = h.svc.ResolveSlots(c.Request().Context(), doctorID, date)
	} else {
		slots, err = h.svc.GetAvailableSlots(c.Request().Context(), doctorID, date)
	}
	if err != nil {
		return httpError(err)
	}
	if slots == nil {
		slots = []SlotView{}
	}
	return c.JSON(http.StatusOK, slotsResponse{DoctorID: doctorID, Date: date, Slots: slots})
}

// -- Weekly schedule --

type weeklyScheduleRequest struct {
	Days  []string `json:"days"`
	Times []string `json:"times"`
}

type weeklyScheduleResponse struct {
	DoctorID uuid.UUID     `json:"doctor_id"`
	Schedule []DaySchedule `json:"schedule"`
}

func (h *Handler) GetWeeklySchedule(c echo.Context) error {
	doctorID, err := parseID(c.Param("doctor_id"), "doctor_id")
	if err != nil {
		return err
	}
	schedule, err := h.svc.GetWeeklySchedule(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, weeklyScheduleResponse{DoctorID: doctorID, Schedule: schedule})
}

func (h *Handler) ReplaceWeeklySchedule(c echo.Context) error {
	doctorID, err := parseID(c.Param("doctor_id"), "doctor_id")
	if err != nil {
		return err
	}
	var req weeklyScheduleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	days := make([]Weekday, 0, len(req.Days))
	for _, raw := range req.Days {
		d, err := ParseWeekday(raw)
		if err != nil {
			return httpError(err)
		}
		days = append(days, d)
	}
	times := make([]TimeLabel, len(req.Times))
	for i, raw := range req.Times {
		times[i] = TimeLabel(raw)
	}

	ctx := c.Request().Context()
	if err := h.svc.ReplaceWeeklySchedule(ctx, doctorID, days, times); err != nil {
		return httpError(err)
	}
	schedule, err := h.svc.GetWeeklySchedule(ctx, doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, weeklyScheduleResponse{DoctorID: doctorID, Schedule: schedule})
}

// -- Overrides --

type overridesRequest struct {
	Times []string `json:"times"`
}

type overridesResponse struct {
	DoctorID  uuid.UUID               `json:"doctor_id"`
	Date      Date                    `json:"date"`
	Overrides []*AvailabilityOverride `json:"overrides"`
}

func (h *Handler) GetOverrides(c echo.Context) error {
	doctorID, err := parseID(c.Param("doctor_id"), "doctor_id")
	if err != nil {
		return err
	}
	date, err := parseDate(c.Param("date"))
	if err != nil {
		return err
	}
	rows, err := h.svc.GetDailyOverrides(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, overridesResponse{DoctorID: doctorID, Date: date, Overrides: rows})
}

func (h *Handler) SetOverrides(c echo.Context) error {
	doctorID, err := parseID(c.Param("doctor_id"), "doctor_id")
	if err != nil {
		return err
	}
	date, err := parseDate(c.Param("date"))
	if err != nil {
		return err
	}
	var req overridesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	times := make([]TimeLabel, len(req.Times))
	for i, raw := range req.Times {
		times[i] = TimeLabel(raw)
	}

	ctx := c.Request().Context()
	if err := h.svc.SetDailyOverrides(ctx, doctorID, date, times); err != nil {
		return httpError(err)
	}
	rows, err := h.svc.GetDailyOverrides(ctx, doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, overridesResponse{DoctorID: doctorID, Date: date, Overrides: rows})
}

// -- Appointments --

type bookRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Problem   string `json:"problem"`
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	doctorID, err := parseID(req.DoctorID, "doctor_id")
	if err != nil {
		return err
	}
	patientID, err := parseID(req.PatientID, "patient_id")
	if err != nil {
		return err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return err
	}

	appt, err := h.svc.BookAppointment(c.Request().Context(), BookingRequest{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      date,
		Time:      TimeLabel(req.Time),
		Problem:   req.Problem,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

type cancelRequest struct {
	PatientID string `json:"patient_id"`
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	patientID, err := parseID(req.PatientID, "patient_id")
	if err != nil {
		return err
	}
	appt, err := h.svc.CancelAppointment(c.Request().Context(), id, patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

// DeleteAppointment takes the owning patient from the patient_id query
// parameter.
func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	patientID, err := parseID(c.QueryParam("patient_id"), "patient_id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id, patientID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type completeRequest struct {
	DoctorID     string `json:"doctor_id"`
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription"`
	Notes        string `json:"notes"`
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	doctorID, err := parseID(req.DoctorID, "doctor_id")
	if err != nil {
		return err
	}
	appt, err := h.svc.CompleteAppointment(c.Request().Context(), CompletionRequest{
		AppointmentID: id,
		DoctorID:      doctorID,
		Diagnosis:     req.Diagnosis,
		Prescription:  req.Prescription,
		Notes:         req.Notes,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

type rescheduleRequest struct {
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	patientID, err := parseID(req.PatientID, "patient_id")
	if err != nil {
		return err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return err
	}
	appt, err := h.svc.RescheduleAppointment(c.Request().Context(), id, patientID, date, TimeLabel(req.Time))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListPatientAppointments(c echo.Context) error {
	patientID, err := parseID(c.Param("patient_id"), "patient_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientAppointments(c.Request().Context(), patientID,
		PatientScope(c.QueryParam("scope")), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListDoctorAppointments(c echo.Context) error {
	doctorID, err := parseID(c.Param("doctor_id"), "doctor_id")
	if err != nil {
		return err
	}
	filter := DoctorAppointmentFilter{Status: AppointmentStatus(c.QueryParam("status"))}
	if raw := c.QueryParam("patient_id"); raw != "" {
		if filter.PatientID, err = parseID(raw, "patient_id"); err != nil {
			return err
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctorAppointments(c.Request().Context(), doctorID, filter, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
