package records

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// ResolveSceneOrder normalizes a project's stored scene order into a list of
// scene IDs. Stored entries may be scene IDs or legacy numeric ordinals
// matching scene_number; both schemes are resolved here and nowhere else. An
// entry is treated as an ID when it carries the UUID separator, otherwise as
// an ordinal. Entries that resolve to no known scene are silently dropped.
// When no order is stored (or it cannot be parsed), scenes fall back to
// ascending scene_number.
func ResolveSceneOrder(rawJSON string, scenes []*Scene) []string {
	byID := make(map[string]*Scene, len(scenes))
	byNumber := make(map[int]*Scene, len(scenes))
	for _, scene := range scenes {
		byID[scene.ID] = scene
		byNumber[scene.SceneNumber] = scene
	}

	entries := decodeOrderEntries(rawJSON)
	if len(entries) == 0 {
		return fallbackOrder(scenes)
	}

	seen := make(map[string]struct{}, len(entries))
	ordered := make([]string, 0, len(entries))
	for _, entry := range entries {
		scene := resolveOrderEntry(entry, byID, byNumber)
		if scene == nil {
			continue
		}
		if _, dup := seen[scene.ID]; dup {
			continue
		}
		seen[scene.ID] = struct{}{}
		ordered = append(ordered, scene.ID)
	}

	if len(ordered) == 0 {
		return fallbackOrder(scenes)
	}
	return ordered
}

func decodeOrderEntries(rawJSON string) []any {
	trimmed := strings.TrimSpace(rawJSON)
	if trimmed == "" {
		return nil
	}
	var entries []any
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil
	}
	return entries
}

func resolveOrderEntry(entry any, byID map[string]*Scene, byNumber map[int]*Scene) *Scene {
	switch value := entry.(type) {
	case string:
		value = strings.TrimSpace(value)
		if value == "" {
			return nil
		}
		if strings.Contains(value, "-") {
			return byID[value]
		}
		if ordinal, err := strconv.Atoi(value); err == nil {
			return byNumber[ordinal]
		}
		return byID[value]
	case float64:
		return byNumber[int(value)]
	default:
		return nil
	}
}

func fallbackOrder(scenes []*Scene) []string {
	sorted := make([]*Scene, len(scenes))
	copy(sorted, scenes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SceneNumber < sorted[j].SceneNumber
	})
	ids := make([]string, 0, len(sorted))
	for _, scene := range sorted {
		ids = append(ids, scene.ID)
	}
	return ids
}

// EncodeSceneOrder serializes scene IDs for storage on the project record.
func EncodeSceneOrder(sceneIDs []string) string {
	if len(sceneIDs) == 0 {
		return ""
	}
	data, err := json.Marshal(sceneIDs)
	if err != nil {
		return ""
	}
	return string(data)
}
