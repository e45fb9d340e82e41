package dispatch

import (
	"bytes"
	"errors"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Scalar is a payload value used as text, typically inside a URL path. It
// accepts JSON strings, numbers and booleans and keeps the textual form.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*s = ""
	case trimmed[0] == '"':
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case bytes.Equal(trimmed, []byte("true")):
		*s = "True"
	case bytes.Equal(trimmed, []byte("false")):
		*s = "False"
	default:
		*s = Scalar(trimmed)
	}
	return nil
}

func (s Scalar) String() string { return string(s) }

// Requestor identifies who asked for an analysis. Every analytics topic carries it.
type Requestor struct {
	RequestorID   Scalar `json:"requestor_id" validate:"required"`
	RequestorType Scalar `json:"requestor_type" validate:"required"`
	RequestID     Scalar `json:"request_id" validate:"required"`
}

func (r Requestor) segments() []string {
	return []string{r.RequestorID.String(), r.RequestorType.String(), r.RequestID.String()}
}

// decodePayload maps an event value onto dst and validates it. Any problem is
// reported as a *MissingFieldError naming the offending fields.
func decodePayload(topic string, value map[string]any, dst any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &MissingFieldError{Topic: topic, Fields: []string{"value"}, Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		field := "value"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field = typeErr.Field
		}
		return &MissingFieldError{Topic: topic, Fields: []string{field}, Err: err}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &MissingFieldError{Topic: topic, Fields: []string{"value"}, Err: err}
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return &MissingFieldError{Topic: topic, Fields: fields}
	}
	return nil
}

// endpoint joins base with path-escaped segments.
func endpoint(base string, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}

// stringify renders a decoded JSON value the way the analytics services expect
// identifiers to be echoed back.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// passthrough accepts a backend body that is already a publication frame.
func passthrough(collaborator string, body []byte) (*Outbound, error) {
	frame, err := types.DecodeFrame(body)
	if err != nil || frame.RequestPost == nil || frame.RequestPost.Value == nil {
		return nil, &BackendError{
			Collaborator: collaborator,
			Status:       200,
			Body:         string(body),
			Reason:       "malformed envelope",
		}
	}
	return &Outbound{Envelope: *frame.RequestPost, Frame: body}, nil
}
