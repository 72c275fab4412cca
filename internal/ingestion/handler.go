package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	httperr "github.com/aevon-lab/analytics/internal/core/errors"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgPersistFailed  = "Failed to persist event"
)

// ingestionError carries the structured HTTP error shape from a helper back to the handler.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// RecordHandler handles POST requests that record one event.
func (s *Service) RecordHandler(c *gin.Context) {
	cmd, ierr := s.parseCommand(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	evt, err := s.Record(c.Request.Context(), *cmd)
	if err != nil {
		if errors.Is(err, v1.ErrValidation) {
			slog.Warn("[Ingestion] Command validation failed", "error", err, "event_type", cmd.EventType)
			writeError(c, &ingestionError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpValidationError,
				message:    err.Error(),
			})
			return
		}

		slog.Error("[Ingestion] Failed to persist event",
			"error", err,
			"event_type", cmd.EventType,
			"source", cmd.Source)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
		})
		return
	}

	c.JSON(http.StatusCreated, evt.Recorded())
}

// RelayHandler publishes the raw body onto the stream relay. The consumer
// classifies and records it asynchronously.
func (s *Service) RelayHandler(c *gin.Context) {
	body, ierr := s.readBody(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}
	if !json.Valid(body) {
		slog.Warn("[Ingestion] Invalid JSON message received for relay", "payload_size", len(body))
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}

	if err := s.relay.Publish(c.Request.Context(), body); err != nil {
		slog.Error("[Ingestion] Failed to publish message to stream", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusServiceUnavailable,
			errorType:  httperr.HttpServiceUnavailable,
			message:    "Failed to publish message",
		})
		return
	}

	c.Status(http.StatusAccepted)
}

// parseCommand reads the size-limited body and decodes it into a command.
// Numbers in the payload are kept as json.Number so large integers survive.
func (s *Service) parseCommand(c *gin.Context) (*v1.RecordEventCommand, *ingestionError) {
	bodyBytes, ierr := s.readBody(c)
	if ierr != nil {
		return nil, ierr
	}

	dec := json.NewDecoder(bytes.NewReader(bodyBytes))
	dec.UseNumber()

	var cmd v1.RecordEventCommand
	if err := dec.Decode(&cmd); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	return &cmd, nil
}

// readBody reads the request body, rejecting it when it exceeds the size limit.
func (s *Service) readBody(c *gin.Context) ([]byte, *ingestionError) {
	limitedBody := io.LimitReader(c.Request.Body, s.maxBodySizeBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return nil, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > s.maxBodySizeBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", s.maxBodySizeBytes)
		return nil, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": s.maxBodySizeBytes / (1024 * 1024),
			},
		}
	}

	return bodyBytes, nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
