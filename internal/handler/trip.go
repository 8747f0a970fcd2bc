package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/truckmitra/freight-broker/internal/intutrack"
	"github.com/truckmitra/freight-broker/internal/repository"
	"github.com/truckmitra/freight-broker/internal/service"
)

// TripHandler exposes the trip tracking endpoints. Request bodies are
// accepted as open JSON objects and passed through to the service, which
// shapes them for the provider; extra fields the client sends travel along
// untouched.
type TripHandler struct {
	Trips *service.TripService
}

func NewTripHandler(t *service.TripService) *TripHandler { return &TripHandler{Trips: t} }

// Start handles POST /v1/trips/start: register and immediately begin
// tracking.
func (h *TripHandler) Start(c echo.Context) error {
	payload, err := bindTripPayload(c)
	if err != nil {
		return err
	}
	result, err := h.Trips.Start(c.Request().Context(), payload)
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"trip":     result.Trip,
		"provider": result.Response,
	})
}

// Submit handles POST /v1/trips/submit: register without starting tracking.
func (h *TripHandler) Submit(c echo.Context) error {
	payload, err := bindTripPayload(c)
	if err != nil {
		return err
	}
	result, err := h.Trips.Submit(c.Request().Context(), payload)
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"trip":     result.Trip,
		"provider": result.Response,
	})
}

// Update handles PUT /v1/trips: forward a tracking_state change.
func (h *TripHandler) Update(c echo.Context) error {
	payload, err := bindTripPayload(c)
	if err != nil {
		return err
	}
	response, err := h.Trips.UpdateTracking(c.Request().Context(), payload)
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

// End handles POST /v1/trips/:id/end.
func (h *TripHandler) End(c echo.Context) error {
	trip, err := h.Trips.End(c.Request().Context(), c.Param("id"))
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusOK, trip)
}

// PublicLink handles POST /v1/trips/:id/public-link.
func (h *TripHandler) PublicLink(c echo.Context) error {
	link, err := h.Trips.PublicLink(c.Request().Context(), c.Param("id"))
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"public_link": link})
}

// Consents handles GET /v1/trips/consents?tel=...
func (h *TripHandler) Consents(c echo.Context) error {
	tel := c.QueryParam("tel")
	if tel == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tel query parameter is required"})
	}
	response, err := h.Trips.Consents(c.Request().Context(), tel)
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

// Locations handles GET /v1/trips/:id/locations?limit=N.
func (h *TripHandler) Locations(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be a positive integer"})
		}
		limit = n
	}
	locations, err := h.Trips.Locations(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"locations": locations})
}

// List handles GET /v1/trips.
func (h *TripHandler) List(c echo.Context) error {
	trips, err := h.Trips.List(c.Request().Context())
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": trips})
}

// Get handles GET /v1/trips/:id. Accepts the local row id or the provider
// trip id.
func (h *TripHandler) Get(c echo.Context) error {
	trip, err := h.Trips.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return tripError(c, err)
	}
	return c.JSON(http.StatusOK, trip)
}

func bindTripPayload(c echo.Context) (map[string]any, error) {
	payload := map[string]any{}
	if err := c.Bind(&payload); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return payload, nil
}

// tripError maps service failures onto HTTP statuses without leaking the
// provider payload to the caller.
func tripError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrTripNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "trip not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "trip already ended"})
	case errors.Is(err, intutrack.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "tracking provider timed out"})
	}
	var apiErr *intutrack.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "tracking provider rejected the request"})
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}
