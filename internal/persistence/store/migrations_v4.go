package store

import "fmt"

var dirGlyphs = [4]string{"^", ">", "v", "<"}

// v4 stores facing as a glyph instead of an index, gives every dead bot an
// explicit (possibly nil) killer and introduces policy.respawn_reset.
func migrateV4(doc map[string]any) (map[string]any, error) {
	bots, err := asMap(doc["bots"], "bots")
	if err != nil {
		return nil, err
	}

	alive, err := asList(bots["alive"], "bots.alive")
	if err != nil {
		return nil, err
	}
	for i, entry := range alive {
		bot, err := asMap(entry, fmt.Sprintf("bots.alive[%d]", i))
		if err != nil {
			return nil, err
		}
		if _, ok := bot["dir"].(string); ok {
			continue
		}
		n, err := asInt(bot["dir"], fmt.Sprintf("bots.alive[%d].dir", i))
		if err != nil {
			return nil, err
		}
		if n < 0 || n > 3 {
			return nil, fmt.Errorf("bots.alive[%d].dir: out of range: %d", i, n)
		}
		bot["dir"] = dirGlyphs[n]
	}

	dead, err := asList(bots["dead"], "bots.dead")
	if err != nil {
		return nil, err
	}
	for i, entry := range dead {
		bot, err := asMap(entry, fmt.Sprintf("bots.dead[%d]", i))
		if err != nil {
			return nil, err
		}
		if _, ok := bot["killer"]; !ok {
			bot["killer"] = nil
		}
	}

	policy, err := asMap(doc["policy"], "policy")
	if err != nil {
		return nil, err
	}
	if _, ok := policy["respawn_reset"]; !ok {
		policy["respawn_reset"] = true
	}

	return doc, nil
}
