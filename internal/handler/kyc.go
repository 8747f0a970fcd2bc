package handler

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/truckmitra/freight-broker/internal/service"
	"github.com/truckmitra/freight-broker/internal/surepass"
)

// KYCHandler exposes the identity verification endpoints. Every endpoint
// runs a full verification lifecycle through the service; the provider
// response is returned to the caller as-is (success flag, status code, data)
// while transport failures surface as a generic 502.
type KYCHandler struct {
	KYC *service.KYCService
}

func NewKYCHandler(k *service.KYCService) *KYCHandler { return &KYCHandler{KYC: k} }

var (
	panRe   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	gstinRe = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][A-Z0-9]Z[A-Z0-9]$`)
)

type panVerifyReq struct {
	PANNumber  string `json:"pan_number"`
	RequestRef string `json:"request_ref"`
}

type gstinVerifyReq struct {
	GSTINNumber string `json:"gstin_number"`
	RequestRef  string `json:"request_ref"`
}

type emailVerifyReq struct {
	Email      string `json:"email"`
	RequestRef string `json:"request_ref"`
}

// VerifyPAN handles POST /v1/kyc/pan (encrypted provider channel).
func (h *KYCHandler) VerifyPAN(c echo.Context) error {
	req, err := bindPAN(c)
	if err != nil {
		return err
	}
	resp, err := h.KYC.VerifyPAN(c.Request().Context(), req.PANNumber, verifyInput(c, req.RequestRef))
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(respStatus(resp), resp)
}

// VerifyPANComprehensive handles POST /v1/kyc/pan-comprehensive.
func (h *KYCHandler) VerifyPANComprehensive(c echo.Context) error {
	req, err := bindPAN(c)
	if err != nil {
		return err
	}
	resp, err := h.KYC.VerifyPANComprehensive(c.Request().Context(), req.PANNumber, verifyInput(c, req.RequestRef))
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(respStatus(resp), resp)
}

// VerifyGSTIN handles POST /v1/kyc/gstin.
func (h *KYCHandler) VerifyGSTIN(c echo.Context) error {
	var req gstinVerifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.GSTINNumber = strings.ToUpper(strings.TrimSpace(req.GSTINNumber))
	if !gstinRe.MatchString(req.GSTINNumber) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "gstin_number must be a valid 15-character GSTIN"})
	}
	resp, err := h.KYC.VerifyGSTIN(c.Request().Context(), req.GSTINNumber, verifyInput(c, req.RequestRef))
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(respStatus(resp), resp)
}

// VerifyEmail handles POST /v1/kyc/email-check.
func (h *KYCHandler) VerifyEmail(c echo.Context) error {
	var req emailVerifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}
	resp, err := h.KYC.VerifyEmail(c.Request().Context(), req.Email, verifyInput(c, req.RequestRef))
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(respStatus(resp), resp)
}

func bindPAN(c echo.Context) (panVerifyReq, error) {
	var req panVerifyReq
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.PANNumber = strings.ToUpper(strings.TrimSpace(req.PANNumber))
	if !panRe.MatchString(req.PANNumber) {
		return req, echo.NewHTTPError(http.StatusBadRequest, "pan_number must be a valid 10-character PAN")
	}
	return req, nil
}

func verifyInput(c echo.Context, ref string) service.VerifyInput {
	// The JWT middleware stores the numeric sub claim as float64.
	var uid string
	switch v := c.Get("user_id").(type) {
	case nil:
	case float64:
		uid = strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		uid = v
	default:
		uid = fmt.Sprint(v)
	}
	return service.VerifyInput{UserID: uid, RequestRef: ref}
}

// respStatus maps the provider outcome onto an HTTP status. The provider's
// own status code is honored when it is a valid HTTP code; otherwise a
// success maps to 200 and a logical failure to 422.
func respStatus(resp surepass.Response) int {
	if resp.StatusCode >= 200 && resp.StatusCode < 600 {
		return resp.StatusCode
	}
	if resp.Success {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

// providerError hides transport-level detail from the client. Timeouts get
// a 504, everything else a generic 502; the lifecycle record already holds
// the specifics.
func providerError(c echo.Context, err error) error {
	if errors.Is(err, surepass.ErrTimeout) {
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "verification provider timed out"})
	}
	return c.JSON(http.StatusBadGateway, echo.Map{"error": "verification provider unavailable"})
}
