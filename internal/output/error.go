package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// ErrorOutput is the JSON envelope of a failed command.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail mirrors the fields of a CoreError.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// NewErrorDetail extracts the structured fields of err. Errors outside the
// taxonomy become GENERAL_ERROR.
func NewErrorDetail(err error) ErrorDetail {
	var ce *coreerr.CoreError
	if errors.As(err, &ce) {
		msg := ce.Message
		var inner *coreerr.CoreError
		if ce.Cause != nil && !errors.As(ce.Cause, &inner) {
			msg += ": " + ce.Cause.Error()
		}
		return ErrorDetail{
			Code:       ce.Code,
			Message:    msg,
			Details:    ce.Details,
			Suggestion: ce.Suggestion,
			ExitCode:   ce.ExitCode,
		}
	}
	return ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: coreerr.ExitGeneral,
	}
}

// FormatError writes err to w.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	detail := NewErrorDetail(err)
	if format == FormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(ErrorOutput{Error: detail})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", detail.Message)
	if len(detail.Details) > 0 {
		keys := make([]string, 0, len(detail.Details))
		for k := range detail.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, detail.Details[k])
		}
	}
	if detail.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", detail.Suggestion)
	}

	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}
