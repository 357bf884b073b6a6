package hook

import (
	"context"
	"strings"

	"github.com/metrocity/server/model"
)

// PostDraft is the payload of BeforePostCreate.
type PostDraft struct {
	UserID int64
	Post   model.NewPost
}

// RequirePostContent is a BeforePostCreate handler that interrupts when the
// content is only whitespace. The draft is passed on unchanged.
func RequirePostContent(_ context.Context, _ string, data interface{}) (interface{}, error) {
	d, ok := data.(*PostDraft)
	if !ok {
		return data, nil
	}
	if strings.TrimSpace(d.Post.Content) == "" {
		return d, ErrInterrupt
	}
	return d, nil
}
