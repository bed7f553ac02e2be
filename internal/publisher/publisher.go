// Package publisher pushes approved creations to their platforms and reads
// engagement back. Real HTTP delivery exists for the blog; social platforms
// run as manual placeholders until their APIs are wired.
package publisher

import (
	"context"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// PostRef identifies a published post on its platform.
type PostRef struct {
	PostID string
	URL    string
}

// Engagement is one raw metrics read from a platform.
type Engagement struct {
	Views           int64
	Likes           int64
	Comments        int64
	Shares          int64
	Clicks          int64
	FollowersGained int64

	// Note marks degraded reads, such as manual platforms reporting zeros.
	Note string
}

// Rate is interactions over views; zero views means zero rate.
func (e Engagement) Rate() float64 {
	if e.Views <= 0 {
		return 0
	}
	return float64(e.Likes+e.Comments+e.Shares+e.Clicks) / float64(e.Views)
}

// Publisher delivers creations to one platform and reads their metrics.
type Publisher interface {
	Platform() pipeline.Platform
	Publish(ctx context.Context, c *pipeline.Creation) (*PostRef, error)
	GetMetrics(ctx context.Context, postID string) (*Engagement, error)
}
