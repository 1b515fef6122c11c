package store

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// migration upgrades a generic document by exactly one version. It must only
// touch the generic structure: typed documents of older versions do not exist.
type migration func(doc map[string]any) (map[string]any, error)

// migrations[i] upgrades a document from version i+1 to i+2.
var migrations = [Version - 1]migration{
	migrateV2,
	migrateV3,
	migrateV4,
}

type MigrationError struct {
	// Version is the version the failing migration was upgrading to.
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration v%d failed: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Migrate upgrades doc from version from to version to, one step at a time.
// The input is deep-copied first so a failing chain never leaves doc
// partially migrated.
func Migrate(from, to int, doc map[string]any) (map[string]any, error) {
	return MigrateContext(context.Background(), from, to, doc)
}

func MigrateContext(ctx context.Context, from, to int, doc map[string]any) (map[string]any, error) {
	_, span := tracer.Start(ctx, "store.Migrate")
	defer span.End()
	span.SetAttributes(attribute.Int("store.from", from), attribute.Int("store.to", to))

	if from < 1 || to > Version || from > to {
		return nil, fmt.Errorf("%w: cannot migrate v%d -> v%d", ErrUnsupportedVersion, from, to)
	}

	cur, ok := deepCopy(doc).(map[string]any)
	if !ok || cur == nil {
		cur = map[string]any{}
	}
	for nth := from; nth < to; nth++ {
		next, err := migrations[nth-1](cur)
		if err != nil {
			span.RecordError(err)
			return nil, &MigrationError{Version: nth + 1, Err: err}
		}
		cur = next
	}
	return cur, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

func asMap(v any, what string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected map, got %T", what, v)
	}
	return m, nil
}

func asList(v any, what string) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", what, v)
	}
	return l, nil
}

// asInt accepts every numeric type the cbor and json decoders produce.
func asInt(v any, what string) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%s: not an integer: %v", what, n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s: expected number, got %T", what, v)
	}
}
