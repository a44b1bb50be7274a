package observability

import (
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Instrument records every request in the HTTP metrics and logs it. Requests
// to scrapePaths that succeed are logged at trace so a Prometheus scraper does
// not flood the debug log.
func Instrument(node string, logger zerolog.Logger, scrapePaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		RecordHTTPRequest(node, c.Request.Method, path, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case slices.Contains(scrapePaths, path):
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		event.
			Str("node", node).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("duration", elapsed).
			Msg("metrics server request")
	}
}
