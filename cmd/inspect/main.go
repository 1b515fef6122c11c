package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"kartoffels.dev/internal/persistence/archive"
	plog "kartoffels.dev/internal/persistence/log"
	"kartoffels.dev/internal/persistence/store"
	"kartoffels.dev/internal/sim/tilemap"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var (
		worldPath = fs.String("world", "", "path to a .world file")
		journal   = fs.String("journal", "", "world journal dir containing events/ (optional)")
		eventType = fs.String("type", "", "only print journal events of this type")
		showMap   = fs.Bool("map", false, "print the map")
		asJSON    = fs.Bool("json", false, "print the whole document as JSON")
		upgrade   = fs.Bool("upgrade", false, "rewrite the world file at the current version (backs up the old file)")
	)
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *worldPath == "" && *journal == "" {
		fmt.Fprintln(out, "missing -world or -journal")
		return errUsage
	}

	if *worldPath != "" {
		if err := inspectWorld(out, *worldPath, *showMap, *asJSON, *upgrade); err != nil {
			return err
		}
	}
	if *journal != "" {
		return printJournal(out, *journal, *eventType)
	}
	return nil
}

func inspectWorld(out io.Writer, path string, showMap, asJSON, upgrade bool) error {
	ctx := context.Background()
	h, doc, err := store.Read(ctx, path)
	if err != nil {
		return fmt.Errorf("read world: %w", err)
	}

	fmt.Fprintf(out, "world v%d id=%s name=%q size=%dx%d alive=%d dead=%d queued=%d\n",
		h.Version, h.WorldID, doc.Name, doc.Map.Size[0], doc.Map.Size[1],
		len(doc.Bots.Alive), len(doc.Bots.Dead), len(doc.Bots.Queued))
	fmt.Fprintf(out, "policy max_alive=%d max_queued=%d auto_respawn=%v respawn_reset=%v\n",
		doc.Policy.MaxAliveBots, doc.Policy.MaxQueuedBots, doc.Policy.AutoRespawn, doc.Policy.RespawnReset)
	if doc.Mode != nil {
		fmt.Fprintf(out, "mode %s elapsed=%d/%d\n", doc.Mode.Type, doc.Mode.Elapsed, doc.Mode.RoundTicks)
	}
	for _, b := range doc.Bots.Alive {
		fmt.Fprintf(out, "  alive  %s pos=%v dir=%s firmware=%dB\n", b.ID, b.Pos, b.Dir, len(b.Firmware))
	}
	for _, b := range doc.Bots.Dead {
		killer := "-"
		if b.Killer != nil {
			killer = *b.Killer
		}
		fmt.Fprintf(out, "  dead   %s killer=%s reason=%q\n", b.ID, killer, b.Reason)
	}
	for i, b := range doc.Bots.Queued {
		fmt.Fprintf(out, "  queued %s place=%d requeued=%v\n", b.ID, i+1, b.Requeued)
	}

	if showMap {
		m, err := tilemap.DecodeMap(tilemap.Vec2FromArray(doc.Map.Size), doc.Map.Tiles)
		if err != nil {
			return fmt.Errorf("decode map: %w", err)
		}
		fmt.Fprintln(out, m.String())
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	if upgrade {
		if h.Version == store.Version {
			fmt.Fprintf(out, "already at v%d\n", store.Version)
			return nil
		}
		backup, _, err := archive.BackupBeforeMigration(path)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		if err := store.Write(ctx, path, h, doc); err != nil {
			return fmt.Errorf("write world: %w", err)
		}
		fmt.Fprintf(out, "upgraded v%d -> v%d (backup %s)\n", h.Version, store.Version, backup)
	}
	return nil
}

func printJournal(out io.Writer, dir, eventType string) error {
	entries, err := plog.ReadJournal(dir)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Type]++
		if eventType != "" && e.Type != eventType {
			continue
		}
		fmt.Fprintf(out, "%s tick=%d %s %s\n", e.WorldID, e.Tick, e.Type, e.Event)
	}
	fmt.Fprintf(out, "%d events", len(entries))
	for _, typ := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(out, " %s=%d", typ, counts[typ])
	}
	fmt.Fprintln(out)
	return nil
}
