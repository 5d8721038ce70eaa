package middleware

import (
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"docsearch/internal/config"
	"docsearch/internal/logger"
)

// Logger writes one JSON line per request with request_id, method, path, status and
// latency in milliseconds.
func Logger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		latency := float64(time.Since(start).Microseconds()) / 1000

		log.LogAttrs(c.UserContext(), slog.LevelInfo, "http_request",
			slog.String("request_id", rid),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Float64("latency", latency),
		)
		return err
	}
}

// LoggerWithWriter is Logger over a fresh JSON logger writing to w, with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	if loc == nil {
		loc = time.UTC
	}
	return Logger(logger.New(config.LogConfig{Level: "info", Timezone: loc.String()}, w))
}
