package output

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// ErrorOutput is the JSON document of a failed command.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// Describe flattens err into an ErrorDetail.
func Describe(err error) ErrorDetail {
	var ke *kinerr.KinError
	if !errors.As(err, &ke) {
		return ErrorDetail{Code: "GENERAL_ERROR", Message: err.Error(), ExitCode: kinerr.ExitGeneral}
	}
	d := ErrorDetail{
		Code:       ke.Code,
		Message:    ke.Message,
		Details:    ke.Details,
		Suggestion: ke.Suggestion,
		ExitCode:   ke.ExitCode,
	}
	if ke.Cause != nil {
		d.Cause = ke.Cause.Error()
	}
	return d
}

// FormatError writes err. Text output lists details in key order.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	d := Describe(err)
	if format == FormatJSON {
		return writeJSON(w, ErrorOutput{Error: d})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if len(d.Details) > 0 {
		sb.WriteString("\nDetails:\n")
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}
	if d.Cause != "" {
		fmt.Fprintf(&sb, "\nCause: %s\n", d.Cause)
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}
	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
