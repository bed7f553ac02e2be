package pipeline

import "fmt"

// VideoType enumerates the supported deferred-video productions. Each type
// requires a specific subset of the VideoSpec payload fields; the core
// routes payloads to the provider without interpreting them further.
type VideoType string

const (
	VideoAvatarTalkingHead VideoType = "avatar_talking_head"
	VideoAvatarAgent       VideoType = "avatar_agent"
	VideoMotionGraphics    VideoType = "motion_graphics"
	VideoHybridAvatarBRoll VideoType = "hybrid_avatar_broll"
	VideoKineticText       VideoType = "kinetic_text"
	VideoCinematicBRoll    VideoType = "cinematic_broll"
	VideoImageToVideo      VideoType = "image_to_video"
	VideoMultiShot         VideoType = "multi_shot_narrative"
)

// CompositionSegment is one ordered shot in a composed video.
type CompositionSegment struct {
	Kind     string `json:"kind"`
	Text     string `json:"text,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Duration int    `json:"duration_seconds,omitempty"`
}

// VideoSpec is the tagged deferred-media descriptor persisted with a
// creation. Exactly the fields required by Type must be set.
type VideoSpec struct {
	Type        VideoType            `json:"type"`
	Prompt      string               `json:"prompt,omitempty"`
	Script      string               `json:"script,omitempty"`
	Composition []CompositionSegment `json:"composition,omitempty"`
}

// required payloads per type: s = script, p = prompt, c = composition.
var videoRequirements = map[VideoType]struct{ script, prompt, composition bool }{
	VideoAvatarTalkingHead: {script: true},
	VideoAvatarAgent:       {script: true},
	VideoMotionGraphics:    {prompt: true},
	VideoHybridAvatarBRoll: {script: true, composition: true},
	VideoKineticText:       {script: true},
	VideoCinematicBRoll:    {prompt: true},
	VideoImageToVideo:      {prompt: true},
	VideoMultiShot:         {composition: true},
}

// Validate checks that the spec carries the payload its type requires.
func (v *VideoSpec) Validate() error {
	req, ok := videoRequirements[v.Type]
	if !ok {
		return fmt.Errorf("unknown video type %q", v.Type)
	}
	if req.script && v.Script == "" {
		return fmt.Errorf("video type %q requires a script", v.Type)
	}
	if req.prompt && v.Prompt == "" {
		return fmt.Errorf("video type %q requires a prompt", v.Type)
	}
	if req.composition && len(v.Composition) == 0 {
		return fmt.Errorf("video type %q requires a composition", v.Type)
	}
	return nil
}
