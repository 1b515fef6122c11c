package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"kartoffels.dev/internal/persistence/indexdb"
	"kartoffels.dev/internal/sim/multiworld"
	"kartoffels.dev/internal/sim/world"
	"kartoffels.dev/internal/transport/ws"
)

type muxOptions struct {
	Admin bool
	Pprof bool
}

func buildMux(mgr *multiworld.Manager, srv *ws.Server, idx indexdb.Index, logger *log.Logger, opts muxOptions) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, mgr)
		if idx != nil {
			writeIndexMetrics(rw, idx.Stats())
		}
	})

	mux.HandleFunc("/v1/ws", srv.Handler())
	mux.HandleFunc("/v1/worlds", srv.ManifestHandler())
	mux.HandleFunc("/v1/bots", srv.UploadHandler())
	mux.HandleFunc("/v1/worlds/{world}/bots", srv.UploadHandler())

	if opts.Admin {
		// Local-only admin endpoints.
		mux.HandleFunc("GET /admin/v1/worlds/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			type worldState struct {
				WorldID string             `json:"world_id"`
				Resumed bool               `json:"resumed"`
				Metrics world.WorldMetrics `json:"metrics"`
			}
			resp := struct {
				DefaultWorldID string         `json:"default_world_id"`
				Worlds         []worldState   `json:"worlds"`
				Index          *indexdb.Stats `json:"index,omitempty"`
			}{DefaultWorldID: mgr.DefaultID()}
			for _, id := range mgr.WorldIDs() {
				rt := mgr.Runtime(id)
				resp.Worlds = append(resp.Worlds, worldState{WorldID: id, Resumed: rt.Resumed, Metrics: rt.Handle.Metrics()})
			}
			if idx != nil {
				st := idx.Stats()
				resp.Index = &st
			}
			writeJSON(rw, http.StatusOK, resp)
		}))
		mux.HandleFunc("GET /admin/v1/worlds/{world}/bots", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			rt := mgr.Runtime(r.PathValue("world"))
			if rt == nil {
				writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown world"})
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			bots, err := rt.Handle.GetBots(ctx)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "world": rt.Spec.ID, "bots": bots})
		}))
		mux.HandleFunc("POST /admin/v1/worlds/{world}/{action}", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			worldAction(rw, r, mgr, logger)
		}))
		mux.HandleFunc("POST /admin/v1/worlds/{world}/bots/{bot}/{action}", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			botAction(rw, r, mgr, logger)
		}))
	} else {
		logger.Printf("admin endpoints disabled (KARTOFFELS_ENABLE_ADMIN_HTTP=false)")
	}

	if opts.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (KARTOFFELS_ENABLE_PPROF_HTTP=false)")
	}
	return mux
}

func worldAction(rw http.ResponseWriter, r *http.Request, mgr *multiworld.Manager, logger *log.Logger) {
	rt := mgr.Runtime(r.PathValue("world"))
	if rt == nil {
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown world"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	action := r.PathValue("action")
	var err error
	switch action {
	case "pause":
		err = rt.Handle.Pause(ctx)
	case "resume":
		err = rt.Handle.Resume(ctx)
	case "step":
		err = rt.Handle.Step(ctx)
	default:
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown action " + action})
		return
	}
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "world": rt.Spec.ID, "error": err.Error()})
		return
	}
	logger.Printf("admin: %s %s", action, rt.Spec.ID)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "world": rt.Spec.ID, "tick": rt.Handle.Metrics().Tick})
}

func botAction(rw http.ResponseWriter, r *http.Request, mgr *multiworld.Manager, logger *log.Logger) {
	rt := mgr.Runtime(r.PathValue("world"))
	if rt == nil {
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown world"})
		return
	}
	id, err := world.ParseBotID(r.PathValue("bot"))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	action := r.PathValue("action")
	switch action {
	case "kill":
		err = rt.Handle.KillBot(ctx, id, "killed by admin")
	case "restart":
		err = rt.Handle.RestartBot(ctx, id)
	case "destroy":
		err = rt.Handle.DestroyBot(ctx, id)
	default:
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown action " + action})
		return
	}
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "world": rt.Spec.ID, "error": err.Error()})
		return
	}
	logger.Printf("admin: %s bot %s in %s", action, id, rt.Spec.ID)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "world": rt.Spec.ID, "bot": id.String()})
}

func writeWorldMetrics(rw http.ResponseWriter, mgr *multiworld.Manager) {
	ids := mgr.WorldIDs()
	metrics := make([]world.WorldMetrics, len(ids))
	for i, id := range ids {
		metrics[i] = mgr.Runtime(id).Handle.Metrics()
	}

	fmt.Fprintf(rw, "# HELP kartoffels_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_world_tick gauge\n")
	for i, id := range ids {
		fmt.Fprintf(rw, "kartoffels_world_tick{world=%q} %d\n", id, metrics[i].Tick)
	}

	fmt.Fprintf(rw, "# HELP kartoffels_world_paused Whether the world is paused.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_world_paused gauge\n")
	for i, id := range ids {
		paused := 0
		if metrics[i].Paused {
			paused = 1
		}
		fmt.Fprintf(rw, "kartoffels_world_paused{world=%q} %d\n", id, paused)
	}

	fmt.Fprintf(rw, "# HELP kartoffels_world_bots Bots by lifecycle state.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_world_bots gauge\n")
	for i, id := range ids {
		fmt.Fprintf(rw, "kartoffels_world_bots{world=%q,state=%q} %d\n", id, world.BotStateAlive, metrics[i].AliveBots)
		fmt.Fprintf(rw, "kartoffels_world_bots{world=%q,state=%q} %d\n", id, world.BotStateDead, metrics[i].DeadBots)
		fmt.Fprintf(rw, "kartoffels_world_bots{world=%q,state=%q} %d\n", id, world.BotStateQueued, metrics[i].QueuedBots)
	}

	fmt.Fprintf(rw, "# HELP kartoffels_world_clients Current listeners and connections.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_world_clients gauge\n")
	for i, id := range ids {
		fmt.Fprintf(rw, "kartoffels_world_clients{world=%q,kind=%q} %d\n", id, "listener", metrics[i].Listeners)
		fmt.Fprintf(rw, "kartoffels_world_clients{world=%q,kind=%q} %d\n", id, "conn", metrics[i].Conns)
	}

	fmt.Fprintf(rw, "# HELP kartoffels_world_queue_depth Request channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_world_queue_depth gauge\n")
	for _, id := range ids {
		fmt.Fprintf(rw, "kartoffels_world_queue_depth{world=%q} %d\n", id, mgr.Runtime(id).Handle.QueueDepth())
	}

	fmt.Fprintf(rw, "# HELP kartoffels_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_world_step_ms gauge\n")
	for i, id := range ids {
		fmt.Fprintf(rw, "kartoffels_world_step_ms{world=%q} %.3f\n", id, metrics[i].StepMS)
	}

	fmt.Fprintf(rw, "# HELP kartoffels_world_saves_total World saves by result.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_world_saves_total counter\n")
	for i, id := range ids {
		fmt.Fprintf(rw, "kartoffels_world_saves_total{world=%q,result=%q} %d\n", id, "ok", metrics[i].Saves)
		fmt.Fprintf(rw, "kartoffels_world_saves_total{world=%q,result=%q} %d\n", id, "fail", metrics[i].SaveFails)
	}

	fmt.Fprintf(rw, "# HELP kartoffels_world_crashes_total Firmware crashes.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_world_crashes_total counter\n")
	for i, id := range ids {
		fmt.Fprintf(rw, "kartoffels_world_crashes_total{world=%q} %d\n", id, metrics[i].Crashes)
	}
}

func writeIndexMetrics(rw http.ResponseWriter, s indexdb.Stats) {
	fmt.Fprintf(rw, "# HELP kartoffels_index_queue_depth Current index write queue depth.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "kartoffels_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP kartoffels_index_queue_capacity Index write queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "kartoffels_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP kartoffels_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_index_dropped_total counter\n")
	fmt.Fprintf(rw, "kartoffels_index_dropped_total{kind=%q} %d\n", "save", s.DropSaveTotal)
	fmt.Fprintf(rw, "kartoffels_index_dropped_total{kind=%q} %d\n", "event", s.DropEventTotal)
	fmt.Fprintf(rw, "kartoffels_index_dropped_total{kind=%q} %d\n", "retained", s.QueueDroppedTotal)

	fmt.Fprintf(rw, "# HELP kartoffels_index_flush_fail_total Failed index flushes.\n")
	fmt.Fprintf(rw, "# TYPE kartoffels_index_flush_fail_total counter\n")
	fmt.Fprintf(rw, "kartoffels_index_flush_fail_total %d\n", s.FlushFailTotal)
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
