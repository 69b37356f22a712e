package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *handler) changeSession(c echo.Context, op func(ctx context.Context) error, message string) error {
	if err := op(c.Request().Context()); err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{
		Message: message,
		Status:  h.Session.Status(),
	})
}

func (h *handler) startSession(c echo.Context) error {
	return h.changeSession(c, h.Session.Start, "Transcription started")
}

func (h *handler) pauseSession(c echo.Context) error {
	return h.changeSession(c, h.Session.Pause, "Transcription paused")
}

func (h *handler) resumeSession(c echo.Context) error {
	return h.changeSession(c, h.Session.Resume, "Transcription resumed")
}

func (h *handler) stopSession(c echo.Context) error {
	return h.changeSession(c, h.Session.Stop, "Transcription stopped")
}

func (h *handler) sessionStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Session.Status())
}

// getTranscript returns JSON, or the raw document with ?format=text
func (h *handler) getTranscript(c echo.Context) error {
	content, err := h.Session.Transcript(c.Request().Context())
	if err != nil {
		return h.sessionError(c, err)
	}
	if c.QueryParam("format") == "text" {
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(content))
	}
	return c.JSON(http.StatusOK, TranscriptResponse{
		Path:    h.Session.TranscriptPath(),
		Content: content,
	})
}

func (h *handler) clearTranscript(c echo.Context) error {
	if err := h.Session.ClearTranscript(c.Request().Context()); err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Transcript cleared"})
}

func (h *handler) transcriptPath(c echo.Context) error {
	return c.JSON(http.StatusOK, TranscriptPathResponse{Path: h.Session.TranscriptPath()})
}

func (h *handler) deleteTranscript(c echo.Context) error {
	if err := h.Session.DeleteTranscript(c.Request().Context()); err != nil {
		return h.sessionError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Transcript deleted"})
}
