package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"runtime/debug"
	"time"
)

func logRequests(log *slog.Logger) Middleware {
	return func(handler Handler) Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := getValues(ctx)

			err := handler(ctx, w, r)

			log.Info("request completed",
				"requestID", v.RequestID,
				"method", r.Method,
				"path", r.URL.Path,
				"statusCode", v.StatusCode,
				"since", time.Since(v.Now).String())

			return err
		}
	}
}

// answerErrors writes errors leaving the chain as management API envelopes.
// Errors of unknown type are reported as internal and their text withheld.
func answerErrors(log *slog.Logger) Middleware {
	return func(handler Handler) Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			apiErr, ok := errors.AsType[*Error](err)
			if !ok {
				apiErr = newInternal(err)
			}

			if apiErr.Status >= http.StatusInternalServerError {
				log.Error(err.Error(), "requestID", getValues(ctx).RequestID, "source_err_file", path.Base(apiErr.FileName))
			}

			if apiErr.Internal {
				apiErr.Message = http.StatusText(apiErr.Status)
			}

			return respondJSON(ctx, w, apiErr.Status, envelope{Error: apiErr})
		}
	}
}

// recoverPanics turns a panic into an error for answerErrors.
func recoverPanics() Middleware {
	return func(handler Handler) Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, string(debug.Stack()))
				}
			}()

			return handler(ctx, w, r)
		}
	}
}
