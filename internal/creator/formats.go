package creator

import "git.home.luguber.info/inful/contentpipe/internal/pipeline"

// MinPlatformFit is the analyst score a platform needs before the creator
// drafts for it.
const MinPlatformFit = 0.6

// formatPreference is each platform's format ranking. The first suggested
// format that appears here wins; otherwise the first suggested format;
// otherwise a plain post.
var formatPreference = map[pipeline.Platform][]pipeline.Format{
	pipeline.PlatformTwitter:  {pipeline.FormatThread, pipeline.FormatPost},
	pipeline.PlatformLinkedIn: {pipeline.FormatPost, pipeline.FormatArticle},
	pipeline.PlatformReddit:   {pipeline.FormatPost},
	pipeline.PlatformBlog:     {pipeline.FormatArticle, pipeline.FormatPost},
	pipeline.PlatformYouTube:  {pipeline.FormatShortVideo},
}

// TargetPlatforms returns the platforms whose fit clears the bar, in the
// canonical platform order so runs are deterministic.
func TargetPlatforms(fit map[pipeline.Platform]float64) []pipeline.Platform {
	var out []pipeline.Platform
	for _, p := range pipeline.AllPlatforms() {
		if fit[p] >= MinPlatformFit {
			out = append(out, p)
		}
	}
	return out
}

// ChooseFormat picks the format for one platform from the analyst's
// suggestions.
func ChooseFormat(platform pipeline.Platform, suggested []pipeline.Format) pipeline.Format {
	for _, pref := range formatPreference[platform] {
		for _, s := range suggested {
			if s == pref {
				return pref
			}
		}
	}
	if len(suggested) > 0 {
		return suggested[0]
	}
	return pipeline.FormatPost
}
