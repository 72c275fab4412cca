package aggregation

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	httperr "github.com/aevon-lab/analytics/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// referenceLayouts are accepted for the summary reference time; naive values are UTC.
var referenceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// RegisterRoutes registers the read endpoints under the API version prefix.
func (s *Service) RegisterRoutes(r gin.IRouter, apiVersion string) {
	g := r.Group("/" + apiVersion + "/analytics")
	g.GET("/metrics/summary", s.HandleSummary)
	g.GET("/events/recent", s.HandleRecentEvents)
}

// HandleSummary handles GET .../metrics/summary?windowMinutes=&reference=
func (s *Service) HandleSummary(c *gin.Context) {
	var query struct {
		WindowMinutes *int   `form:"windowMinutes"`
		Reference     string `form:"reference"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeInvalidQuery(c, err)
		return
	}

	windowMinutes := s.cfg.DefaultWindowMinutes
	if query.WindowMinutes != nil {
		windowMinutes = *query.WindowMinutes
	}

	var reference *time.Time
	if query.Reference != "" {
		ref, err := parseReference(query.Reference)
		if err != nil {
			writeInvalidQuery(c, err)
			return
		}
		reference = &ref
	}

	summary, err := s.Summary(c.Request.Context(), windowMinutes, reference)
	if err != nil {
		s.writeQueryError(c, err, "Failed to compute summary")
		return
	}

	c.JSON(http.StatusOK, summary)
}

// HandleRecentEvents handles GET .../events/recent?limit=
func (s *Service) HandleRecentEvents(c *gin.Context) {
	var query struct {
		Limit *int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeInvalidQuery(c, err)
		return
	}

	limit := s.cfg.DefaultRecentLimit
	if query.Limit != nil {
		limit = *query.Limit
	}

	recent, err := s.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		s.writeQueryError(c, err, "Failed to fetch recent events")
		return
	}

	c.JSON(http.StatusOK, recent)
}

func (s *Service) writeQueryError(c *gin.Context, err error, message string) {
	if errors.Is(err, ErrInvalidQuery) {
		writeInvalidQuery(c, err)
		return
	}

	slog.Error("[Aggregation] Query failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   message,
		Details:   err.Error(),
	})
}

func writeInvalidQuery(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: httperr.HttpInvalidQueryError,
		Message:   "Invalid query parameters",
		Details:   err.Error(),
	})
}

func parseReference(value string) (time.Time, error) {
	// An unescaped "+" offset arrives as a space after query decoding.
	if len(value) > 19 && value[19] == ' ' {
		value = value[:19] + "+" + value[20:]
	}

	var lastErr error
	for _, layout := range referenceLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
