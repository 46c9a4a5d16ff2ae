package assistant

import (
	"context"
)

// Request is a question about an article.
type Request struct {
	// Message is the user's question.
	Message string
	// ArticleContext is the article text the question refers to. It may be empty.
	ArticleContext string
}

// Assistant answers questions about articles.
type Assistant interface {
	Reply(ctx context.Context, req Request) (string, error)
}
