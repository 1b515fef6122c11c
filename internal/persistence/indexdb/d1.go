package indexdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kartoffels.dev/internal/sim/world"
)

// D1Config points a D1Index at an HTTP ingest worker that writes batches
// into a Cloudflare D1 database.
type D1Config struct {
	Endpoint      string
	Token         string
	BatchSize     int
	MaxRetained   int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSave     atomic.Uint64
	dropEvent    atomic.Uint64
	flushFail    atomic.Uint64
	queueDropped atomic.Uint64
}

type d1Event struct {
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	d := &D1Index{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan d1Event, 32768),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) Stats() Stats {
	return Stats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		DropSaveTotal:     d.dropSave.Load(),
		DropEventTotal:    d.dropEvent.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		QueueDroppedTotal: d.queueDropped.Load(),
	}
}

// RecordSave implements world.SaveIndexer.
func (d *D1Index) RecordSave(_ context.Context, rec world.SaveRecord) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	if !d.enqueue(d1Event{Kind: "save", WorldID: rec.WorldID, Payload: saveRowFrom(rec)}) {
		d.dropSave.Add(1)
	}
	return nil
}

func (d *D1Index) RecordEvent(_ context.Context, worldID string, tick uint64, typ string, payload []byte) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	ev := eventRow{
		WorldID:    worldID,
		Tick:       tick,
		Type:       typ,
		Payload:    string(payload),
		RecordedAt: time.Now().UTC().Format(timeLayout),
	}
	if !d.enqueue(d1Event{Kind: "event", WorldID: worldID, Payload: ev}) {
		d.dropEvent.Add(1)
	}
	return nil
}

func (d *D1Index) enqueue(ev d1Event) bool {
	select {
	case d.ch <- ev:
		return true
	default:
		d.printf("d1 index queue full; drop kind=%s world=%s", ev.Kind, ev.WorldID)
		return false
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("d1 index flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next flush, trimming the oldest rows
			// once it grows past MaxRetained.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.queueDropped.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
