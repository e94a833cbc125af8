package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/streakboard/core/internal/ports"
)

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Logger middleware
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			reqLogger := s.logger.WithRequestID(values.RequestID)
			latency := float64(values.Latency.Nanoseconds()) / 1000000

			if values.Error != nil {
				reqLogger.Errorw("HTTP request failed",
					"method", values.Method,
					"uri", values.URI,
					"status", values.Status,
					"latency_ms", latency,
					"remote_ip", values.RemoteIP,
					"error", values.Error.Error(),
				)
				return nil
			}

			reqLogger.LogHTTPRequest(values.Method, values.URI, values.UserAgent, values.RemoteIP, values.Status, latency)
			return nil
		},
	}))

	// CORS middleware
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(s.config.Security.CORSAllowedOrigins, ","),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete},
	}))

	// Rate limiting middleware
	s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.config.Security.RateLimitRequests),
				Burst:     s.config.Security.RateLimitRequests,
				ExpiresIn: s.config.Security.RateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusForbidden, ports.ErrorResponse{Message: "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, ports.ErrorResponse{Message: "rate limit exceeded"})
		},
	}))

	// Security headers
	secure := middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}
	if s.config.App.IsProduction() {
		secure.HSTSMaxAge = 31536000
	}
	s.echo.Use(middleware.SecureWithConfig(secure))

	// Request deadline, honoured by lock acquisition and queries
	if s.config.Server.RequestTimeout > 0 {
		s.echo.Use(middleware.ContextTimeout(s.config.Server.RequestTimeout))
	}
}
