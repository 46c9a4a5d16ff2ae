// Package domain defines the entities shared by the store, storage and services.
package domain

import "time"

// Feed is a subscribed RSS/Atom source.
// UnreadCount is derived from the feed's articles and is never authoritative.
type Feed struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	SiteURL       string    `json:"siteUrl,omitempty"`
	Description   string    `json:"description,omitempty"`
	IconURL       string    `json:"iconUrl,omitempty"`
	UnreadCount   int       `json:"unreadCount"`
	LastFetchedAt time.Time `json:"lastFetchedAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Article is a single entry of a feed. Content is Markdown.
type Article struct {
	ID          string    `json:"id"`
	FeedID      string    `json:"feedId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary,omitempty"`
	Author      string    `json:"author,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NoteItem is one note attached to an article.
type NoteItem struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	QuotedText string    `json:"quotedText,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Note holds every note item of an article in insertion order.
type Note struct {
	ID        string     `json:"id"`
	ArticleID string     `json:"articleId"`
	Items     []NoteItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistory is the conversation about one article. It is saved wholesale.
type ChatHistory struct {
	ID        string        `json:"id"`
	ArticleID string        `json:"articleId"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Clone returns a copy that shares no slices with n.
func (n Note) Clone() Note {
	n.Items = append([]NoteItem(nil), n.Items...)
	return n
}

// Clone returns a copy that shares no slices with h.
func (h ChatHistory) Clone() ChatHistory {
	h.Messages = append([]ChatMessage(nil), h.Messages...)
	return h
}
