package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tiendaonline/tienda-api/internal/apperr"
)

// BodyMode selects how a request body is materialized.
type BodyMode int

const (
	// BodyRaw keeps the bytes untouched for signature verification.
	BodyRaw BodyMode = iota
	// BodyStructured decodes JSON and urlencoded forms.
	BodyStructured
)

// BodyRule binds a path prefix to a BodyMode.
type BodyRule struct {
	Prefix string
	Mode   BodyMode
}

type bodyKey struct{}
type rawBodyKey struct{}

var emptyObject = []byte("{}")

// Payload is the structured request body as a JSON document.
type Payload struct {
	raw []byte
}

// Bytes returns the JSON encoding of the body.
func (p Payload) Bytes() []byte {
	if len(p.raw) == 0 {
		return emptyObject
	}
	return p.raw
}

// Get queries the body with a gjson path.
func (p Payload) Get(path string) gjson.Result {
	return gjson.GetBytes(p.Bytes(), path)
}

// IsObject reports whether the body is a JSON object.
func (p Payload) IsObject() bool {
	return gjson.ParseBytes(p.Bytes()).IsObject()
}

// Decode unmarshals the body into v.
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p.Bytes(), v)
}

// BodyFrom returns the structured body; "{}" when none was parsed.
func BodyFrom(r *http.Request) Payload {
	if p, ok := r.Context().Value(bodyKey{}).(Payload); ok {
		return p
	}
	return Payload{}
}

// RawBodyFrom returns the untouched body of a raw-mode request. It is nil
// when the request was not captured and empty when the body was.
func RawBodyFrom(r *http.Request) []byte {
	b, _ := r.Context().Value(rawBodyKey{}).([]byte)
	return b
}

// BodyInterpreter chooses a body mode per path. Rules are evaluated in order
// and the first prefix match wins.
type BodyInterpreter struct {
	rules []BodyRule
	limit int64
}

// NewBodyInterpreter puts a raw rule for every rawPrefix ahead of the
// structured catch-all. The raw rules must come first: once the structured
// parser has consumed a body the original bytes are gone.
func NewBodyInterpreter(limit int64, rawPrefixes ...string) *BodyInterpreter {
	rules := make([]BodyRule, 0, len(rawPrefixes)+1)
	for _, p := range rawPrefixes {
		rules = append(rules, BodyRule{Prefix: p, Mode: BodyRaw})
	}
	rules = append(rules, BodyRule{Prefix: "/", Mode: BodyStructured})
	return &BodyInterpreter{rules: rules, limit: limit}
}

// Rules returns the evaluation order.
func (bi *BodyInterpreter) Rules() []BodyRule {
	return append([]BodyRule(nil), bi.rules...)
}

// ModeFor returns the mode of the first rule matching path.
func (bi *BodyInterpreter) ModeFor(path string) BodyMode {
	for _, rule := range bi.rules {
		if hasPathPrefix(path, rule.Prefix) {
			return rule.Mode
		}
	}
	return BodyStructured
}

// Interpret reads the body according to the request's rule and returns the
// request carrying it in its context. The body stream is replaced with the
// bytes read so handlers may still read r.Body.
func (bi *BodyInterpreter) Interpret(r *http.Request) (*http.Request, error) {
	mediaType := mediaTypeOf(r)

	if bi.ModeFor(r.URL.Path) == BodyRaw {
		if mediaType != "application/json" {
			return r, nil
		}
		data, err := bi.read(r)
		if err != nil {
			return r, err
		}
		if data == nil {
			// captured but empty, distinct from not captured
			data = []byte{}
		}
		r = withBody(r, data)
		return r.WithContext(context.WithValue(r.Context(), rawBodyKey{}, data)), nil
	}

	var payload []byte
	switch {
	case isJSONMediaType(mediaType):
		data, err := bi.read(r)
		if err != nil {
			return r, err
		}
		r = withBody(r, data)
		payload, err = parseJSONBody(data)
		if err != nil {
			return r, apperr.BodyParse(err)
		}
	case mediaType == "application/x-www-form-urlencoded":
		data, err := bi.read(r)
		if err != nil {
			return r, err
		}
		r = withBody(r, data)
		form, err := parseNestedForm(string(data))
		if errors.Is(err, errTooManyParams) {
			return r, apperr.Wrap(apperr.KindPayloadTooLarge, err, "too many parameters")
		}
		if err != nil {
			return r, apperr.BodyParse(err)
		}
		if payload, err = json.Marshal(form); err != nil {
			return r, apperr.BodyParse(err)
		}
	default:
		payload = emptyObject
	}
	return r.WithContext(context.WithValue(r.Context(), bodyKey{}, Payload{raw: payload})), nil
}

func (bi *BodyInterpreter) read(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if bi.limit > 0 && r.ContentLength > bi.limit {
		return nil, apperr.PayloadTooLarge(bi.limit)
	}
	body := r.Body
	if bi.limit > 0 {
		body = http.MaxBytesReader(nil, r.Body, bi.limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.PayloadTooLarge(bi.limit)
		}
		return nil, apperr.BodyParse(fmt.Errorf("read body: %w", err))
	}
	return data, nil
}

// bodyMiddleware runs the interpreter and sends failures to the fault boundary.
func (h *Handler) bodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, err := h.body.Interpret(r)
		if err != nil {
			bodyFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
			h.fault.Respond(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// parseJSONBody accepts only objects and arrays, like a strict JSON body
// parser. An empty body is an empty object.
func parseJSONBody(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return emptyObject, nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, errors.New("JSON body must be an object or array")
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, errors.New("malformed JSON")
	}
	return trimmed, nil
}

func withBody(r *http.Request, data []byte) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Body = io.NopCloser(bytes.NewReader(data))
	r2.ContentLength = int64(len(data))
	return r2
}

func mediaTypeOf(r *http.Request) string {
	ct := r.Header.Get(headerContentType)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil && !errors.Is(err, mime.ErrInvalidMediaParameter) {
		return ""
	}
	return mt
}

func isJSONMediaType(mt string) bool {
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

// hasPathPrefix matches whole path segments: "/api/webhook" matches itself
// and "/api/webhook/stripe" but not "/api/webhooks".
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" || prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
