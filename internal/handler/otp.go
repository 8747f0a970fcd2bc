package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/truckmitra/freight-broker/internal/service"
)

// OTPHandler exposes SMS one-time-code endpoints used during carrier phone
// verification.
type OTPHandler struct {
	OTP *service.OTPService
}

func NewOTPHandler(o *service.OTPService) *OTPHandler { return &OTPHandler{OTP: o} }

type otpRequestReq struct {
	Phone string `json:"phone"`
}

type otpVerifyReq struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// Request handles POST /v1/otp/request: generate, store and send a code.
func (h *OTPHandler) Request(c echo.Context) error {
	var req otpRequestReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Phone) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is required"})
	}
	if err := h.OTP.Request(c.Request().Context(), req.Phone); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not send code"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "sent"})
}

// Verify handles POST /v1/otp/verify: compare a submitted code.
func (h *OTPHandler) Verify(c echo.Context) error {
	var req otpVerifyReq
	if err := c.Bind(&req); err != nil || req.Phone == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone and code are required"})
	}
	err := h.OTP.Verify(c.Request().Context(), req.Phone, req.Code)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"status": "verified"})
	case errors.Is(err, service.ErrOTPExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "code expired, request a new one"})
	case errors.Is(err, service.ErrOTPMismatch):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "code does not match"})
	case errors.Is(err, service.ErrOTPMaxAttempts):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "attempt limit reached, request a new code"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not verify code"})
	}
}
