package store

// v2 moved the policy fields from the document root into a "policy" map.
func migrateV2(doc map[string]any) (map[string]any, error) {
	policy := map[string]any{}
	if existing, ok := doc["policy"]; ok {
		m, err := asMap(existing, "policy")
		if err != nil {
			return nil, err
		}
		policy = m
	}
	for _, key := range []string{"max_alive_bots", "max_queued_bots", "auto_respawn"} {
		v, ok := doc[key]
		if !ok {
			continue
		}
		policy[key] = v
		delete(doc, key)
	}
	doc["policy"] = policy
	return doc, nil
}
