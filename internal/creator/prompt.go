package creator

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/skills"
)

// Confidence thresholds for prompt injection.
const (
	highConfidenceAt = 0.70
	lowConfidenceAt  = 0.30
)

// Variant style hints by label. The two-variant case uses A and B; C is the
// next style to add when a third arm is introduced.
var styleHints = map[string]string{
	"A": "Open with a bold, contrarian hook: challenge the obvious take in the first line.",
	"B": "Open with a question-based hook: make the reader want the answer before scrolling on.",
	"C": "Open with a short story hook: a concrete moment that sets up the point.",
}

// SkillView is the slice of the skill library prompt composition reads.
type SkillView interface {
	HighConfidence(minConfidence float64, platform pipeline.Platform) []pipeline.Skill
	LowConfidence(maxConfidence float64, platform pipeline.Platform) []pipeline.Skill
}

// AvoidSource supplies learned failure patterns for a platform and format.
type AvoidSource interface {
	AvoidPatterns(platform pipeline.Platform, format pipeline.Format) []string
}

// composeSystemPrompt builds the system prompt for one draft: brand voice,
// then proven skill patterns quoted, then underperforming skills named, then
// learned failure patterns to avoid.
func composeSystemPrompt(brandVoice string, view SkillView, avoid AvoidSource, platform pipeline.Platform, format pipeline.Format) (string, []string) {
	var b strings.Builder
	b.WriteString("You write publishable content for a technical audience.\n\nBrand voice: ")
	b.WriteString(brandVoice)
	b.WriteString("\n")

	var used []string
	if view != nil {
		high := view.HighConfidence(highConfidenceAt, platform)
		if len(high) > 0 {
			b.WriteString("\nProven patterns to apply:\n")
			for _, sk := range high {
				used = append(used, sk.Name)
				for _, pattern := range skills.CorePatterns(sk.Content, 3) {
					fmt.Fprintf(&b, "- [%s] %s\n", sk.Name, pattern)
				}
			}
		}

		low := view.LowConfidence(lowConfidenceAt, platform)
		if len(low) > 0 {
			b.WriteString("\nUnderperforming approaches (do not lean on these):\n")
			for _, sk := range low {
				fmt.Fprintf(&b, "- %s\n", sk.Name)
			}
		}
	}

	if avoid != nil {
		if patterns := avoid.AvoidPatterns(platform, format); len(patterns) > 0 {
			fmt.Fprintf(&b, "\nKnown failure patterns on %s %s content, avoid all of these:\n", platform, format)
			for _, p := range patterns {
				fmt.Fprintf(&b, "- %s\n", p)
			}
		}
	}

	b.WriteString(`
Reply with ONLY a JSON object: {"title": "...", "body": "...", "image_prompt": "..."}.
body is the complete piece in markdown. image_prompt describes one supporting
visual. No markdown fences around the JSON.`)
	return b.String(), used
}

// draftPrompt is the per-variant user prompt.
func draftPrompt(d *pipeline.Discovery, platform pipeline.Platform, format pipeline.Format, label string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s for %s about this discovery:\n\ntitle: %s\nurl: %s\nsource: %s\n",
		format, platform, d.Title, d.URL, d.Source)
	if hint, ok := styleHints[label]; ok {
		fmt.Fprintf(&b, "\nStyle for this variant: %s\n", hint)
	}
	return b.String()
}

// videoSpecFor derives the deferred video descriptor for a short-video draft.
// Nothing is generated here; the descriptor waits for human selection.
func videoSpecFor(title, body string) *pipeline.VideoSpec {
	script := body
	if len(script) > 1200 {
		script = script[:1200]
	}

	// Content heuristic: list-shaped bodies become kinetic text, narrative
	// bodies become a talking head.
	bullets := strings.Count(body, "\n- ") + strings.Count(body, "\n* ")
	if bullets >= 3 {
		return &pipeline.VideoSpec{
			Type:   pipeline.VideoKineticText,
			Script: script,
		}
	}
	return &pipeline.VideoSpec{
		Type:   pipeline.VideoAvatarTalkingHead,
		Script: script,
		Prompt: "Presenter summarizing: " + title,
	}
}
