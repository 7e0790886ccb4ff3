package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/flemzord/codeproxy/internal/codegen"
)

// Client-facing error texts.
const (
	msgOnlyPost      = "Only POST requests allowed"
	msgNoPrompt      = "No prompt provided"
	msgInvalidBody   = "Invalid request body"
	msgBodyTooLarge  = "Request body too large"
	msgInternalError = "Internal Server Error"
)

// responder renders generation results in one endpoint format.
type responder interface {
	success(w http.ResponseWriter, out codegen.Outcome)
	// clientError renders a 4xx rejection.
	clientError(w http.ResponseWriter, status int, msg string)
	// serverError renders a failed orchestration.
	serverError(w http.ResponseWriter, out codegen.Outcome)
}

func newResponder(format string) responder {
	if format == FormatJSON {
		return jsonResponder{}
	}
	return textResponder{}
}

// textResponder answers with plain text. Errors are Lua line comments so a
// client that compiles the body as code gets a harmless no-op.
type textResponder struct{}

func (textResponder) success(w http.ResponseWriter, out codegen.Outcome) {
	writeText(w, http.StatusOK, out.Code)
}

func (textResponder) clientError(w http.ResponseWriter, status int, msg string) {
	writeText(w, status, "-- [AI ERROR] "+luaComment(msg))
}

func (textResponder) serverError(w http.ResponseWriter, out codegen.Outcome) {
	writeText(w, http.StatusInternalServerError, "-- [AI SERVER ERROR] "+luaComment(out.Err().Error()))
}

// luaComment flattens msg to one line so it stays inside a "--" comment.
func luaComment(msg string) string {
	return strings.Join(strings.Fields(msg), " ")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// jsonResponder answers with JSON objects.
type jsonResponder struct{}

// successBody is the JSON success payload.
type successBody struct {
	Success   bool   `json:"success"`
	Model     string `json:"model"`
	CleanCode string `json:"clean_code"`
}

func (jsonResponder) success(w http.ResponseWriter, out codegen.Outcome) {
	writeJSON(w, http.StatusOK, successBody{Success: true, Model: out.Model, CleanCode: out.Code})
}

// errorBody is the JSON failure payload. Model names the candidate that
// failed fatally and is omitted otherwise.
type errorBody struct {
	Error string `json:"error"`
	Model string `json:"model,omitempty"`
}

func (jsonResponder) clientError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func (jsonResponder) serverError(w http.ResponseWriter, out codegen.Outcome) {
	body := errorBody{Error: out.Err().Error()}
	if body.Error == "" {
		body.Error = msgInternalError
	}
	if out.Kind == codegen.OutcomeFatal {
		body.Model = out.Model
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
