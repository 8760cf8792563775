package main

import (
	"fmt"
	"net/http"

	"github.com/tipjar-social/contentcheck/moderation"
	"github.com/tipjar-social/contentcheck/moderation/queue"

	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type ModerateResponse struct {
	Verdict moderation.Verdict `json:"verdict"`
	// human-readable explanation of the verdict; NotStarted is "try again later", not a rejection
	Message    string   `json:"message"`
	Artifacts  []string `json:"artifacts"`
	Labels     []string `json:"labels"`
	// false when the verdict was reached without a verifier score; confidence is then 0
	Verified   bool     `json:"verified"`
	Confidence float64  `json:"confidence"`
}

func (srv *Server) HandleModerate(c echo.Context) error {
	ctx := c.Request().Context()

	var sub moderation.Submission
	if err := c.Bind(&sub); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("failed to parse submission: %s", err),
		})
	}
	if err := queue.ValidateSubmission(&sub); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "InvalidRequest",
			Message: err.Error(),
		})
	}

	report := srv.checker.Check(ctx, &sub)
	return c.JSON(http.StatusOK, ModerateResponse{
		Verdict:    report.Verdict,
		Message:    report.Verdict.Message(),
		Artifacts:  report.Artifacts,
		Labels:     report.Labels,
		Verified:   report.Verified,
		Confidence: report.Confidence,
	})
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("contentcheck-http-internal-error", "err", err)
	}
	if err := c.JSON(code, GenericStatus{Status: "error", Daemon: "contentcheck", Message: errorMessage}); err != nil {
		srv.logger.Error("failed to write error response", "err", err)
	}
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "contentcheck"})
}
