package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

type Middleware func(Handler) Handler

func WrapMiddleware(mw []Middleware, handler Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h := mw[i]
		if h != nil {
			handler = h(handler)
		}
	}

	return handler
}

func Respond(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cannot marshal response data: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(jsonData); err != nil {
		return fmt.Errorf("cannot write response data to response writer: %w", err)
	}

	return nil
}

// Decode reads a JSON body of at most 1MB into val, rejecting unknown fields.
func Decode(w http.ResponseWriter, r *http.Request, val any) error {
	maxBytes := 1048576
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return err
	}

	return nil
}

// DecodeOptional is Decode for endpoints whose body may be omitted.
func DecodeOptional(w http.ResponseWriter, r *http.Request, val any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return Decode(w, r, val)
}

func Param(r *http.Request, key string) string {
	m := mux.Vars(r)
	return m[key]
}

// IntParam parses a numeric path parameter.
func IntParam(r *http.Request, key string) (int, error) {
	v, err := strconv.Atoi(Param(r, key))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}

var ErrStreamingUnsupported = errors.New("response writer cannot stream")

// Event writes one server-sent event and flushes it to the client.
func Event(w http.ResponseWriter, name string, data any) error {
	f, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cannot marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b); err != nil {
		return fmt.Errorf("cannot write event: %w", err)
	}
	f.Flush()

	return nil
}
