package store

import "fmt"

// v3 split the flat bot list (tagged with "state") into per-state lists.
func migrateV3(doc map[string]any) (map[string]any, error) {
	flat, err := asList(doc["bots"], "bots")
	if err != nil {
		return nil, err
	}

	alive := []any{}
	dead := []any{}
	queued := []any{}

	for i, entry := range flat {
		bot, err := asMap(entry, fmt.Sprintf("bots[%d]", i))
		if err != nil {
			return nil, err
		}
		state, _ := bot["state"].(string)
		delete(bot, "state")
		switch state {
		case "alive":
			alive = append(alive, bot)
		case "dead":
			dead = append(dead, bot)
		case "queued":
			queued = append(queued, bot)
		default:
			return nil, fmt.Errorf("bots[%d]: unknown state %q", i, state)
		}
	}

	doc["bots"] = map[string]any{
		"alive":  alive,
		"dead":   dead,
		"queued": queued,
	}
	return doc, nil
}
