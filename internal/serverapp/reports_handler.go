package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"reportgen/internal/config"
	"reportgen/internal/export"
	"reportgen/internal/logging"
	"reportgen/internal/middleware"
	"reportgen/internal/report"
)

// reportMessageHeader carries permission notes for suppressed columns, which
// CSV output has no room for.
const reportMessageHeader = "X-Report-Message"

type reportSummary struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Root        string `json:"root"`
	Preview     bool   `json:"preview,omitempty"`
}

func listReportsHandler(runner *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs := runner.Definitions()
		out := make([]reportSummary, 0, len(defs))
		for _, d := range defs {
			out = append(out, reportSummary{
				Name:        d.Name,
				Title:       d.DisplayTitle(),
				Description: d.Description,
				Root:        d.Root,
				Preview:     d.Preview,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"reports": out}); err != nil {
			logging.FromContext(r.Context()).Warn("failed to write report list", slog.String("error", err.Error()))
		}
	}
}

func runReportHandler(runner *Runner, defaults config.ReportsConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		name := r.PathValue("name")

		def, ok := runner.Definition(name)
		if !ok {
			middleware.WriteError(w, http.StatusNotFound, fmt.Sprintf("report %q not found", name), "NOT_FOUND")
			return
		}

		query := r.URL.Query()
		formatName := query.Get("format")
		if formatName == "" {
			formatName = defaults.Format
		}
		format, err := export.ParseFormat(formatName)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		preview := defaults.Preview
		if raw := query.Get("preview"); raw != "" {
			preview, err = strconv.ParseBool(raw)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid preview value %q", raw), "BAD_REQUEST")
				return
			}
		}

		res, err := runner.Run(r.Context(), RunRequest{
			Definition: def,
			User:       middleware.UserFromContext(r.Context()),
			Format:     format,
			Preview:    preview,
		})
		if err != nil {
			status, code, message := runErrorResponse(err)
			middleware.WriteError(w, status, message, code)
			return
		}
		if Denied(res) {
			middleware.WriteError(w, http.StatusForbidden, report.PermissionDeniedMessage, "FORBIDDEN")
			return
		}

		filename := export.Filename(def.DisplayTitle(), format)
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
		if res.Message != "" {
			w.Header().Set(reportMessageHeader, res.Message)
		}
		w.WriteHeader(http.StatusOK)
		if err := export.Write(w, format, def.DisplayTitle(), export.Header(res.Columns), res); err != nil {
			reqLogger.Warn("failed to write report", slog.String("report", def.Name), slog.String("error", err.Error()))
		}
	}
}

// runErrorResponse maps a run error to a status, an error code and a message
// safe to show to clients.
func runErrorResponse(err error) (int, string, string) {
	var cfgErr *report.ConfigError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, report.ErrInvalidDefinition):
		return http.StatusUnprocessableEntity, "INVALID_REPORT", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "report timed out"
	case errors.Is(err, ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE", err.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL", "report failed"
	}
}
