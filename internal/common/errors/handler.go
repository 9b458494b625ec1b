// internal/common/errors/handler.go
package errors

import (
	"unicode/utf8"
)

// ErrorHandler reports failed jobs with a consistent set of log fields.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// JobRef identifies the job being reported. Message is truncated before it is
// logged.
type JobRef struct {
	UserID  string
	Message string
	Stage   string
}

const loggedMessageRunes = 80

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError logs err against job and returns its normalized form.
// Infrastructure errors log at error level, everything else at warn.
func (h *ErrorHandler) HandleJobError(job JobRef, err error) *StandardError {
	stdErr := AsStandardError(err)
	if stdErr == nil {
		return nil
	}

	fields := map[string]interface{}{
		"userId":        job.UserID,
		"message":       truncateRunes(job.Message, loggedMessageRunes),
		"stage":         job.Stage,
		"errorCode":     string(stdErr.Code),
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}

	if IsInfrastructure(stdErr) {
		h.logger.Error("Job failed", fields)
	} else {
		h.logger.Warn("Job failed", fields)
	}
	return stdErr
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}
