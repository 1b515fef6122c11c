package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"kartoffels.dev/internal/protocol"
	"kartoffels.dev/internal/sim/multiworld"
	"kartoffels.dev/internal/sim/world"
)

const uploadTimeout = 5 * time.Second

// UploadHandler takes raw firmware as the request body and queues a new bot
// in the world named by the {world} path value (the default world when the
// route has none).
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		worldID := r.PathValue("world")

		if ok, retry := s.uploads.Allow(remoteHost(r.RemoteAddr)); !ok {
			rw.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			writeHTTPError(rw, http.StatusTooManyRequests, protocol.ErrRateLimit, "too many uploads", worldID)
			return
		}

		body := http.MaxBytesReader(rw, r.Body, int64(s.tune.MaxFirmwareBytes))
		firmware, err := io.ReadAll(body)
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeHTTPError(rw, http.StatusRequestEntityTooLarge, protocol.ErrBadRequest, "firmware exceeds "+strconv.FormatInt(tooBig.Limit, 10)+" bytes", worldID)
				return
			}
			writeHTTPError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error(), worldID)
			return
		}
		if len(firmware) == 0 {
			writeHTTPError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "empty firmware", worldID)
			return
		}

		rt, ok := s.mgr.Pick(worldID)
		if !ok {
			writeHTTPError(rw, http.StatusNotFound, protocol.ErrWorldNotFound, "unknown world "+worldID, worldID)
			return
		}
		worldID = rt.Spec.ID

		ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
		defer cancel()
		id, err := s.mgr.CreateBot(ctx, worldID, firmware)
		if err != nil {
			code, status := errorCode(err)
			writeHTTPError(rw, status, code, err.Error(), worldID)
			return
		}
		s.log.Printf("bot %s uploaded to %s (%d bytes)", id, worldID, len(firmware))

		writeHTTPJSON(rw, http.StatusCreated, protocol.BotCreatedMsg{
			Type:            protocol.TypeBotCreated,
			ProtocolVersion: protocol.Version,
			WorldID:         worldID,
			BotID:           id.String(),
		})
	}
}

// ManifestHandler lists the hosted worlds.
func (s *Server) ManifestHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeHTTPJSON(rw, http.StatusOK, map[string]any{
			"protocol_version": protocol.Version,
			"default_world_id": s.mgr.DefaultID(),
			"worlds":           s.mgr.Manifest(),
		})
	}
}

// errorCode maps world and manager errors onto wire codes and HTTP statuses.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, multiworld.ErrUnknownWorld):
		return protocol.ErrWorldNotFound, http.StatusNotFound
	case errors.Is(err, world.ErrInvalidFirmware):
		return protocol.ErrInvalidFirmware, http.StatusBadRequest
	case errors.Is(err, world.ErrTooManyQueuedBots):
		return protocol.ErrTooManyBots, http.StatusTooManyRequests
	case errors.Is(err, world.ErrWorldBusy), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrWorldBusy, http.StatusServiceUnavailable
	case errors.Is(err, world.ErrWorldClosed):
		return protocol.ErrWorldClosed, http.StatusServiceUnavailable
	case errors.Is(err, world.ErrEventsDisabled):
		return protocol.ErrEventsDisabled, http.StatusConflict
	default:
		return protocol.ErrInternal, http.StatusInternalServerError
	}
}

func writeHTTPError(rw http.ResponseWriter, status int, code, message, worldID string) {
	writeHTTPJSON(rw, status, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
		WorldID:         worldID,
	})
}

func writeHTTPJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
