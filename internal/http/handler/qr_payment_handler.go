package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/middleware"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/response"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/service"
)

const qrImageSize = 256

type QRPaymentHandler struct {
	issuer    *service.TokenIssuer
	validator *service.ScanValidator
	confirmer *service.PaymentConfirmer

	// now feeds the expires_in_seconds countdown; overridable in tests so
	// token views stay on the same clock the services inject.
	now func() time.Time
}

func NewQRPaymentHandler(issuer *service.TokenIssuer, validator *service.ScanValidator, confirmer *service.PaymentConfirmer) *QRPaymentHandler {
	return &QRPaymentHandler{issuer: issuer, validator: validator, confirmer: confirmer, now: time.Now}
}

type scanRequest struct {
	Credential string `json:"credential"`
	ShortCode  string `json:"shortCode"`
	DeviceID   string `json:"deviceId"`
}

type confirmRequest struct {
	OrderID        uint            `json:"orderId"`
	TokenID        string          `json:"tokenId"`
	PaymentMethod  string          `json:"paymentMethod"`
	TransactionID  string          `json:"transactionId"`
	AmountReceived decimal.Decimal `json:"amountReceived"`
	Notes          string          `json:"notes"`
	DeviceID       string          `json:"deviceId"`
}

type tokenView struct {
	TokenID          string    `json:"token_id"`
	ShortCode        string    `json:"short_code"`
	QRPayload        string    `json:"qr_payload"`
	OrderID          uint      `json:"order_id"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
}

func tokenViewAt(t *service.IssuedToken, now time.Time) tokenView {
	remaining := t.ExpiresAt.Sub(now).Round(time.Second).Milliseconds() / 1000
	if remaining < 0 {
		remaining = 0
	}
	return tokenView{
		TokenID:          t.TokenID,
		ShortCode:        t.ShortCode,
		QRPayload:        t.QRPayload(),
		OrderID:          t.OrderID,
		IssuedAt:         t.IssuedAt,
		ExpiresAt:        t.ExpiresAt,
		ExpiresInSeconds: remaining,
	}
}

func (h *QRPaymentHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Credential == "" || req.DeviceID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "credential and deviceId are required", nil)
		return
	}
	h.scan(w, r, service.Credential{TokenID: req.Credential}, req.DeviceID)
}

func (h *QRPaymentHandler) ScanShortCode(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	code := req.ShortCode
	if code == "" {
		code = req.Credential
	}
	if code == "" || req.DeviceID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "shortCode and deviceId are required", nil)
		return
	}
	h.scan(w, r, service.Credential{ShortCode: code}, req.DeviceID)
}

func (h *QRPaymentHandler) scan(w http.ResponseWriter, r *http.Request, cred service.Credential, deviceID string) {
	userID := authUserID(r)
	res, err := h.validator.Scan(r.Context(), cred, deviceID, userID)
	if err != nil {
		writeFlowError(w, r, err, "RATE_LIMITED")
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *QRPaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.OrderID == 0 || req.TokenID == "" || req.PaymentMethod == "" || req.DeviceID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "orderId, tokenId, paymentMethod and deviceId are required", nil)
		return
	}

	res, err := h.confirmer.Confirm(r.Context(), service.ConfirmRequest{
		OrderID:        req.OrderID,
		TokenID:        req.TokenID,
		DeviceID:       req.DeviceID,
		UserID:         authUserID(r),
		PaymentMethod:  req.PaymentMethod,
		TransactionID:  req.TransactionID,
		AmountReceived: req.AmountReceived,
		Notes:          req.Notes,
	})
	if err != nil {
		writeFlowError(w, r, err, "RATE_LIMIT_EXCEEDED")
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *QRPaymentHandler) CurrentToken(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	token, err := h.issuer.CurrentToken(r.Context(), orderID)
	if err != nil {
		writeFlowError(w, r, err, "RATE_LIMITED")
		return
	}
	response.JSON(w, r, http.StatusOK, tokenViewAt(token, h.now()))
}

func (h *QRPaymentHandler) RegenerateToken(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	token, err := h.issuer.Regenerate(r.Context(), orderID)
	if err != nil {
		writeFlowError(w, r, err, "RATE_LIMITED")
		return
	}
	response.JSON(w, r, http.StatusOK, tokenViewAt(token, h.now()))
}

func (h *QRPaymentHandler) TokenQRImage(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	token, err := h.issuer.CurrentToken(r.Context(), orderID)
	if err != nil {
		writeFlowError(w, r, err, "RATE_LIMITED")
		return
	}
	png, err := qrcode.Encode(token.QRPayload(), qrcode.Medium, qrImageSize)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to render QR image", nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "orderId")
	id64, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id64 == 0 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return 0, false
	}
	return uint(id64), true
}

func authUserID(r *http.Request) *uint {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return nil
	}
	id, err := claims.UserID()
	if err != nil {
		return nil
	}
	return &id
}

// writeFlowError maps a payment-flow failure onto the HTTP surface. The 429
// code differs per endpoint family, so callers pass the one they advertise.
func writeFlowError(w http.ResponseWriter, r *http.Request, err error, rateLimitedCode string) {
	fe, ok := service.AsFlowError(err)
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}
	switch fe.Code {
	case service.CodeRateLimited:
		w.Header().Set("Retry-After", retryAfterSeconds(fe.RetryAfter))
		response.Error(w, r, http.StatusTooManyRequests, rateLimitedCode, fe.Message, nil)
	case service.CodeInvalid, service.CodeTokenNotFound:
		response.Error(w, r, http.StatusNotFound, string(fe.Code), fe.Message, nil)
	case service.CodeExpired, service.CodeRegenerationNotAllowed:
		response.Error(w, r, http.StatusBadRequest, string(fe.Code), fe.Message, nil)
	case service.CodeDuplicate:
		response.Error(w, r, http.StatusConflict, string(fe.Code), fe.Message, nil)
	case service.CodeUnauthorized:
		response.Error(w, r, http.StatusUnauthorized, string(fe.Code), fe.Message, nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, string(fe.Code), fe.Message, nil)
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
