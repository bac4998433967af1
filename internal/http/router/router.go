package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/handler"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/middleware"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/response"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/security"
)

func New(
	jwtMgr *security.JWTManager,
	apiLimiter *middleware.RateLimiter,
	qrHandler *handler.QRPaymentHandler,
	orderHandler *handler.OrderHandler,
	auditHandler *handler.ScanAuditHandler,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(apiLimiter.Middleware())
		api.Use(middleware.Auth(jwtMgr))

		api.Get("/orders/{orderId}", orderHandler.Get)

		// Anything that can mint, burn, or inspect payment tokens is
		// operator-only.
		api.Group(func(op chi.Router) {
			op.Use(middleware.RequireRole(security.RoleOperator))

			op.Post("/qr/scan", qrHandler.Scan)
			op.Post("/qr/scan-short-code", qrHandler.ScanShortCode)
			op.Post("/qr/confirm", qrHandler.Confirm)

			op.Post("/orders", orderHandler.Create)
			op.Get("/orders/{orderId}/token", qrHandler.CurrentToken)
			op.Post("/orders/{orderId}/regenerate-token", qrHandler.RegenerateToken)
			op.Get("/orders/{orderId}/token/qr", qrHandler.TokenQRImage)

			op.Get("/orders/{orderId}/scans", auditHandler.ListByOrder)
			op.Get("/audit/devices/{deviceId}", auditHandler.ListByDevice)
		})
	})

	return r
}
