package service

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/engine"
)

// makeRouter builds the local HTTP control surface.
//
// POST /control          control message dispatch
// GET  /status           engine status snapshot
// GET  /resolve?url=...  resolve a resource through the caching strategies
func (svc *CachePoolService) makeRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Post("/control", svc.handleControl)
	router.Get("/status", svc.handleStatus)
	router.Get("/resolve", svc.handleResolve)

	return router
}

func (svc *CachePoolService) handleControl(writer http.ResponseWriter, request *http.Request) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "CachePoolService",
		"function": "handleControl",
	})

	body, err := io.ReadAll(request.Body)
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, engine.ControlResponse{
			Type:    engine.ControlResponseError,
			Message: commons.ErrorToCode(commons.NewParseError("control request body", err)),
		})
		return
	}

	message := engine.ControlMessage{}
	err = json.Unmarshal(body, &message)
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, engine.ControlResponse{
			Type:    engine.ControlResponseError,
			Message: commons.ErrorToCode(commons.NewParseError("control message", err)),
		})
		return
	}

	response := svc.Engine.Control(message)
	if response.Type == engine.ControlResponseError {
		logger.Debugf("Control message %s, id %q failed - %s", message.Type, message.ID, response.Message)
	}

	writeJSON(writer, http.StatusOK, response)
}

func (svc *CachePoolService) handleStatus(writer http.ResponseWriter, request *http.Request) {
	status, err := svc.Engine.GetStatus()
	if err != nil {
		writeJSON(writer, http.StatusInternalServerError, map[string]string{
			"error": commons.ErrorToCode(err),
		})
		return
	}

	writeJSON(writer, http.StatusOK, status)
}

func (svc *CachePoolService) handleResolve(writer http.ResponseWriter, request *http.Request) {
	url := request.URL.Query().Get("url")
	if len(url) == 0 {
		writeJSON(writer, http.StatusBadRequest, map[string]string{
			"error": "url must be given",
		})
		return
	}

	kind := engine.ResourceKind(request.URL.Query().Get("kind"))

	response, handled, err := svc.Engine.Intercept(request.Context(), engine.Request{
		URL:    url,
		Method: http.MethodGet,
		Kind:   kind,
	})
	if err != nil {
		if commons.IsNoCacheEntryError(err) {
			writeJSON(writer, http.StatusNotFound, map[string]string{
				"error": commons.ErrorToCode(err),
			})
			return
		}

		writeJSON(writer, http.StatusInternalServerError, map[string]string{
			"error": commons.ErrorToCode(err),
		})
		return
	}

	if !handled {
		writeJSON(writer, http.StatusBadRequest, map[string]string{
			"error": "request not handled",
		})
		return
	}

	writer.Header().Set("Content-Type", response.ContentType)
	writer.Header().Set("X-Cache-Source", string(response.Source))
	if response.Stale {
		writer.Header().Set("X-Cache-Stale", "true")
	}
	writer.WriteHeader(http.StatusOK)
	writer.Write(response.Payload)
}

func writeJSON(writer http.ResponseWriter, status int, value interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)

	encoder := json.NewEncoder(writer)
	encoder.Encode(value)
}
