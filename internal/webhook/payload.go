// Package webhook normalizes completion callbacks from the generation
// gateway and dispatches them to the owning engine. The gateway's workflows
// emit field names in two casing conventions and address image completions in
// four different ways; both are flattened here so nothing past this boundary
// has to care.
package webhook

import (
	"encoding/json"
	"strings"
)

// StatusReady and StatusFailed are the two callback outcomes.
const (
	StatusReady  = "ready"
	StatusFailed = "failed"
)

// Payload is a normalized completion callback. Exactly one of the addressing
// fields identifies the record: VariantID directly, SceneImageVariantID for
// scene images, or CharacterID/PropID plus ShotType for parent-addressed
// legacy workflows. Video completions use ShotID and parse completions
// ProjectID.
type Payload struct {
	VariantID           string
	SceneImageVariantID string
	CharacterID         string
	PropID              string
	ShotType            string
	ShotID              string
	ProjectID           string

	Status       string
	ImageURL     string
	VideoURL     string
	ErrorMessage string

	Characters []ParsedAsset
	Locations  []ParsedAsset
	Props      []ParsedAsset
	Scenes     []ParsedScene
}

// ParsedAsset is one bible asset from a decomposition result.
type ParsedAsset struct {
	Name        string
	Description string
}

// ParsedScene is one scene from a decomposition result.
type ParsedScene struct {
	SceneNumber int
	Title       string
	Synopsis    string
	Production  json.RawMessage
}

// UnmarshalJSON accepts snake_case and camelCase spellings of every field.
// When both spellings are present the snake_case one wins.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var aux struct {
		VariantID         string            `json:"variant_id"`
		VariantIDCamel    string            `json:"variantId"`
		SceneImageVariant string            `json:"scene_image_variant_id"`
		SceneImageCamel   string            `json:"sceneImageVariantId"`
		CharacterID       string            `json:"character_id"`
		CharacterIDCamel  string            `json:"characterId"`
		PropID            string            `json:"prop_id"`
		PropIDCamel       string            `json:"propId"`
		ShotType          string            `json:"shot_type"`
		ShotTypeCamel     string            `json:"shotType"`
		ShotID            string            `json:"shot_id"`
		ShotIDCamel       string            `json:"shotId"`
		ProjectID         string            `json:"project_id"`
		ProjectIDCamel    string            `json:"projectId"`
		Status            string            `json:"status"`
		ImageURL          string            `json:"image_url"`
		ImageURLCamel     string            `json:"imageUrl"`
		VideoURL          string            `json:"video_url"`
		VideoURLCamel     string            `json:"videoUrl"`
		ErrorMessage      string            `json:"error_message"`
		ErrorMessageCamel string            `json:"errorMessage"`
		Characters        []parsedAssetJSON `json:"characters"`
		Locations         []parsedAssetJSON `json:"locations"`
		Props             []parsedAssetJSON `json:"props"`
		Scenes            []parsedSceneJSON `json:"scenes"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p.VariantID = coalesce(aux.VariantID, aux.VariantIDCamel)
	p.SceneImageVariantID = coalesce(aux.SceneImageVariant, aux.SceneImageCamel)
	p.CharacterID = coalesce(aux.CharacterID, aux.CharacterIDCamel)
	p.PropID = coalesce(aux.PropID, aux.PropIDCamel)
	p.ShotType = coalesce(aux.ShotType, aux.ShotTypeCamel)
	p.ShotID = coalesce(aux.ShotID, aux.ShotIDCamel)
	p.ProjectID = coalesce(aux.ProjectID, aux.ProjectIDCamel)
	p.Status = strings.ToLower(strings.TrimSpace(aux.Status))
	p.ImageURL = coalesce(aux.ImageURL, aux.ImageURLCamel)
	p.VideoURL = coalesce(aux.VideoURL, aux.VideoURLCamel)
	p.ErrorMessage = coalesce(aux.ErrorMessage, aux.ErrorMessageCamel)
	p.Characters = normalizeAssets(aux.Characters)
	p.Locations = normalizeAssets(aux.Locations)
	p.Props = normalizeAssets(aux.Props)
	p.Scenes = normalizeScenes(aux.Scenes)
	return nil
}

// Failed reports whether the callback signals a failure.
func (p *Payload) Failed() bool {
	return p.Status == StatusFailed
}

type parsedAssetJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type parsedSceneJSON struct {
	SceneNumber      int             `json:"scene_number"`
	SceneNumberCamel int             `json:"sceneNumber"`
	Title            string          `json:"title"`
	Synopsis         string          `json:"synopsis"`
	Production       json.RawMessage `json:"production"`
	ProductionCamel  json.RawMessage `json:"productionData"`
}

func normalizeAssets(in []parsedAssetJSON) []ParsedAsset {
	if len(in) == 0 {
		return nil
	}
	out := make([]ParsedAsset, 0, len(in))
	for _, a := range in {
		out = append(out, ParsedAsset{
			Name:        strings.TrimSpace(a.Name),
			Description: strings.TrimSpace(a.Description),
		})
	}
	return out
}

func normalizeScenes(in []parsedSceneJSON) []ParsedScene {
	if len(in) == 0 {
		return nil
	}
	out := make([]ParsedScene, 0, len(in))
	for _, s := range in {
		number := s.SceneNumber
		if number == 0 {
			number = s.SceneNumberCamel
		}
		production := s.Production
		if len(production) == 0 {
			production = s.ProductionCamel
		}
		out = append(out, ParsedScene{
			SceneNumber: number,
			Title:       strings.TrimSpace(s.Title),
			Synopsis:    strings.TrimSpace(s.Synopsis),
			Production:  production,
		})
	}
	return out
}

func coalesce(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
