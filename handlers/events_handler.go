package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/uxtrace/uxtrace/app"
	"github.com/uxtrace/uxtrace/models"
	"github.com/uxtrace/uxtrace/utils"
	"go.uber.org/zap"
)

// IngestEventsHandler accepts one batch delivery from the recorder.
// The endpoint is idempotent from the client's point of view: the
// recorder retries whole batches, and retries must never surface as
// errors or corrupt the stored log.
func IngestEventsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.Config.Ingest.MaxBodyBytes)

		var req models.BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				_ = utils.WritePayloadTooLarge(w, "request body exceeds configured limit", map[string]interface{}{
					"limit": tooLarge.Limit,
				})
				return
			}
			deps.Logger.Debug("malformed batch body", zap.Error(err))
			respondError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
			return
		}

		if err := utils.ValidateStruct(&req); err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		resp, err := deps.Ingest.AppendBatch(r.Context(), &req, clientAddr(r))
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, resp)
	}
}

// clientAddr returns the remote host without the ephemeral port
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
