package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/freeeve/stackrabbit/api/internal/engine"
	"github.com/freeeve/stackrabbit/api/internal/params"
	"github.com/freeeve/stackrabbit/api/internal/pool"
)

// unknownErrorMessage is the only detail a client sees for a non-parameter failure.
const unknownErrorMessage = "An unknown error occurred"

// evaluate validates and encodes the query, runs the engine call on the pool
// and blocks until it completes. The engine call is not cancelled if the
// client goes away.
func (h *Handler) evaluate(kind engine.Kind, requireSecondBoard bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := params.ParseQuery(r.URL.RawQuery, requireSecondBoard)
		if err != nil {
			h.fail(w, r, kind, err, "")
			return
		}
		input := p.Encode()

		handle, err := pool.Submit(h.pool, func() (string, error) {
			return h.engine.Evaluate(kind, input)
		})
		if err != nil {
			h.fail(w, r, kind, err, "")
			return
		}

		out, err := handle.Wait()
		if err != nil {
			h.fail(w, r, kind, err, handle.ID())
			return
		}
		writeText(w, http.StatusOK, out)
	}
}

// statusFor maps an error to the response code and client-visible message.
func statusFor(err error) (int, string) {
	if _, ok := params.FieldOf(err); ok {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, unknownErrorMessage
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, kind engine.Kind, err error, taskID string) {
	code, msg := statusFor(err)

	level := zerolog.WarnLevel
	if code == http.StatusInternalServerError {
		level = zerolog.ErrorLevel
	}
	ev := h.log.WithLevel(level).Err(err).
		Str("rid", GetRequestID(r.Context())).
		Str("kind", kind.String()).
		Int("status", code)
	if field, ok := params.FieldOf(err); ok {
		ev = ev.Str("field", field)
	}
	if taskID != "" {
		ev = ev.Str("task", taskID)
	}
	ev.Msg("engine request failed")

	writeText(w, code, msg)
}
