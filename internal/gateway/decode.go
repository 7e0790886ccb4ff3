package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/flemzord/codeproxy/internal/security"
)

// Request decoding failures. Each maps to a 4xx response.
var (
	errNoPrompt    = errors.New("no prompt provided")
	errInvalidBody = errors.New("invalid request body")
)

// generateInput is the decoded body of a generation request.
type generateInput struct {
	Prompt string
	Models []string
}

// jsonInput is the JSON body shape. Fields are raw so a prompt or models
// value of the wrong type reads as absent instead of failing the request.
type jsonInput struct {
	Prompt json.RawMessage `json:"prompt"`
	Models json.RawMessage `json:"models"`
}

// decodeInput reads and decodes a generation request body. It accepts
// JSON objects, JSON-encoded strings holding an object, and URL-encoded
// forms. Bodies without a content type are tried as JSON, then as a form.
// The body is capped at limit bytes.
func decodeInput(r *http.Request, limit int) (generateInput, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		return generateInput{}, errInvalidBody
	}
	if err := security.ValidateBodySize(data, limit); err != nil {
		return generateInput{}, err
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var in generateInput
	switch mediaType {
	case "application/x-www-form-urlencoded":
		in, err = decodeForm(data)
	case "application/json":
		in, err = decodeJSON(data, true)
	default:
		in, err = decodeJSON(data, false)
		if err == nil && in.Prompt == "" && mediaType == "" {
			in, err = decodeForm(data)
		}
	}
	if err != nil {
		return generateInput{}, err
	}

	in.Prompt = strings.TrimSpace(in.Prompt)
	if in.Prompt == "" {
		return generateInput{}, errNoPrompt
	}
	in.Models = cleanModels(in.Models)
	return in, nil
}

func decodeForm(data []byte) (generateInput, error) {
	vals, err := url.ParseQuery(string(data))
	if err != nil {
		return generateInput{}, errInvalidBody
	}
	return fromValues(vals), nil
}

// fromValues reads prompt and models from form values. Models may repeat
// or be comma separated.
func fromValues(vals map[string][]string) generateInput {
	var in generateInput
	if p := vals["prompt"]; len(p) > 0 {
		in.Prompt = p[0]
	}
	for _, v := range vals["models"] {
		in.Models = append(in.Models, strings.Split(v, ",")...)
	}
	return in
}

// decodeJSON decodes a JSON object body, unwrapping one level of JSON
// string encoding. When strict is false a body that is not JSON at all
// yields an empty input rather than an error.
func decodeJSON(data []byte, strict bool) (generateInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return generateInput{}, nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return generateInput{}, errInvalidBody
		}
		data = []byte(strings.TrimSpace(s))
		strict = false
	}

	if !json.Valid(data) {
		if strict {
			return generateInput{}, errInvalidBody
		}
		return generateInput{}, nil
	}
	if err := security.ValidateJSONDepth(data, security.DefaultMaxJSONDepth); err != nil {
		return generateInput{}, errInvalidBody
	}

	var raw jsonInput
	if err := json.Unmarshal(data, &raw); err != nil {
		// Valid JSON that is not an object, e.g. an array.
		return generateInput{}, nil
	}

	var in generateInput
	_ = json.Unmarshal(raw.Prompt, &in.Prompt)
	_ = json.Unmarshal(raw.Models, &in.Models)
	return in, nil
}

// cleanModels trims entries and drops blanks.
func cleanModels(models []string) []string {
	out := models[:0]
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
