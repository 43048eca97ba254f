package appointment

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/osdentaire/agenda-api/internal/middleware"
	"github.com/osdentaire/agenda-api/internal/model"
	"github.com/osdentaire/agenda-api/pkg/errors"
	"github.com/osdentaire/agenda-api/pkg/httputil"
)

// SchedulingService is the slice of the scheduling engine the HTTP surface
// needs.
type SchedulingService interface {
	List(ctx context.Context, query *model.ListAppointmentsQuery) (*model.AppointmentListing, error)
	Create(ctx context.Context, input *model.CreateAppointmentRequest, actor model.Actor) (*model.AppointmentDetail, error)
	Cancel(ctx context.Context, id uuid.UUID, input *model.CancelAppointmentRequest, actor model.Actor) (*model.AppointmentDetail, error)
}

type Handler struct {
	service  SchedulingService
	validate *validator.Validate
}

func NewHandler(service SchedulingService) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("", h.ListAppointments)
		appointments.POST("", middleware.RequireActor(), h.CreateAppointment)
		appointments.POST("/:id/cancel", middleware.RequireActor(), h.CancelAppointment)
	}
}

func (h *Handler) ListAppointments(c *gin.Context) {
	query := &model.ListAppointmentsQuery{
		Start:        c.Query("start"),
		End:          c.Query("end"),
		Status:       c.Query("status"),
		IncludeNotes: c.Query("include_notes") == "true" || c.Query("include_notes") == "1",
	}

	providerIDs, err := parseIDSet(c.QueryArray("provider_id"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid provider id", err))
		return
	}
	query.ProviderIDs = providerIDs

	roomIDs, err := parseIDSet(c.QueryArray("room_id"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid room id", err))
		return
	}
	query.RoomIDs = roomIDs

	listing, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, listing)
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
		return
	}

	detail, err := h.service.Create(c.Request.Context(), &req, middleware.ActorFromContext(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, detail)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid appointment id", err))
		return
	}

	var req model.CancelAppointmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
			return
		}
		if err := h.validate.Struct(&req); err != nil {
			httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
			return
		}
	}

	detail, err := h.service.Cancel(c.Request.Context(), id, &req, middleware.ActorFromContext(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, detail)
}

// parseIDSet accepts both repeated parameters and comma-separated values.
func parseIDSet(raw []string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
