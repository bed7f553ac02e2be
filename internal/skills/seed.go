package skills

import (
	"context"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// SeedDefaults installs a starter skill set when the library is empty. The
// defaults are deliberately conservative: mid confidence, broad platform
// coverage, content written as quotable bullet patterns.
func (l *Library) SeedDefaults(ctx context.Context) (int, error) {
	if len(l.All()) > 0 {
		return 0, nil
	}

	now := l.now().UTC()
	seeded := 0
	for _, sk := range defaultSkills(now) {
		if err := l.Add(ctx, sk); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

func defaultSkills(now time.Time) []pipeline.Skill {
	base := pipeline.Skill{
		Confidence: 0.50,
		Status:     pipeline.SkillActive,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	hookTwitter := base
	hookTwitter.Name = "hook-contrarian-twitter"
	hookTwitter.Category = "hooks"
	hookTwitter.Platform = string(pipeline.PlatformTwitter)
	hookTwitter.Tags = []string{"hooks", "opening"}
	hookTwitter.Content = `# Contrarian hooks for twitter

- Open with a claim most readers currently disagree with, then earn it in the body.
- Name the conventional wisdom explicitly before flipping it.
- Keep the first line under 80 characters so it survives the fold.
`

	hookQuestion := base
	hookQuestion.Name = "hook-question-led"
	hookQuestion.Category = "hooks"
	hookQuestion.Tags = []string{"hooks", "opening", "engagement"}
	hookQuestion.Content = `# Question-led hooks

- Lead with a question the reader has actually asked themselves this week.
- Never answer the question in the same paragraph that asks it.
- Prefer "how" and "why" questions over yes/no questions.
`

	structureThread := base
	structureThread.Name = "structure-thread-arc"
	structureThread.Category = "structure"
	structureThread.Platform = string(pipeline.PlatformTwitter)
	structureThread.Tags = []string{"structure", "thread"}
	structureThread.Content = `# Thread structure

- One idea per tweet, one payoff at the end.
- Tweet two must justify the hook or readers drop off.
- Close with a single concrete takeaway, not a recap.
`

	structureArticle := base
	structureArticle.Name = "structure-article-scannable"
	structureArticle.Category = "structure"
	structureArticle.Platform = string(pipeline.PlatformBlog)
	structureArticle.Tags = []string{"structure", "article"}
	structureArticle.Content = `# Scannable article structure

- A subheading every 150 to 250 words.
- First paragraph states the problem in the reader's words, not yours.
- Code or examples before theory whenever both exist.
`

	timing := base
	timing.Name = "timing-weekday-morning"
	timing.Category = "timing"
	timing.Tags = []string{"timing", "scheduling"}
	timing.Content = `# Posting windows

- Tuesday through Thursday mornings outperform weekends for professional topics.
- Avoid publishing within an hour of major industry announcements.
`

	return []pipeline.Skill{hookTwitter, hookQuestion, structureThread, structureArticle, timing}
}
