package simulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler is a http.Handler that returns an error.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware defines a signature to chain Handler together.
type Middleware func(handler Handler) Handler

type ctxKey int

const (
	valuesKey ctxKey = iota + 1
)

// requestValues are shared across one request for logging.
type requestValues struct {
	RequestID  string
	Now        time.Time
	StatusCode int
}

func getValues(ctx context.Context) *requestValues {
	v, ok := ctx.Value(valuesKey).(*requestValues)
	if !ok {
		return &requestValues{RequestID: uuid.Nil.String(), Now: time.Now()}
	}

	return v
}

// app routes requests through a shared middleware stack.
type app struct {
	mux    *http.ServeMux
	mw     []Middleware
	tracer trace.Tracer
	logger *slog.Logger
}

func (a *app) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *app) handle(pattern string, handler Handler) {
	handler = wrap(a.mw, handler)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx, span := a.tracer.Start(r.Context(), "simulator.handler")
		defer span.End()
		span.SetAttributes(attribute.String("path", r.URL.Path))

		v := requestValues{
			RequestID: uuid.NewString(),
			Now:       time.Now().UTC(),
		}
		w.Header().Set("x-ms-request-id", v.RequestID)

		ctx = context.WithValue(ctx, valuesKey, &v)
		if err := handler(ctx, w, r.WithContext(ctx)); err != nil {
			a.logger.Error("simulator", "handle", err)
		}
	}

	a.mux.HandleFunc(pattern, h)
}

// wrap middleware around the handler and execute in order given.
func wrap(mw []Middleware, handler Handler) Handler {
	for _, mwFn := range slices.Backward(mw) {
		if mwFn != nil {
			handler = mwFn(handler)
		}
	}

	return handler
}

// respondJSON writes data with statusCode and records the code for logging.
func respondJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) error {
	getValues(ctx).StatusCode = statusCode

	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_, err = w.Write(b)
	return err
}
