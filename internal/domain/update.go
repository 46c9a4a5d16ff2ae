package domain

import "time"

// FeedUpdate is a field mask over Feed. Nil fields are left unchanged.
type FeedUpdate struct {
	Title         *string
	URL           *string
	SiteURL       *string
	Description   *string
	IconURL       *string
	UnreadCount   *int
	LastFetchedAt *time.Time
	UpdatedAt     *time.Time
}

// Apply returns f with every set field of u copied over it.
func (u FeedUpdate) Apply(f Feed) Feed {
	if u.Title != nil {
		f.Title = *u.Title
	}
	if u.URL != nil {
		f.URL = *u.URL
	}
	if u.SiteURL != nil {
		f.SiteURL = *u.SiteURL
	}
	if u.Description != nil {
		f.Description = *u.Description
	}
	if u.IconURL != nil {
		f.IconURL = *u.IconURL
	}
	if u.UnreadCount != nil {
		f.UnreadCount = *u.UnreadCount
	}
	if u.LastFetchedAt != nil {
		f.LastFetchedAt = *u.LastFetchedAt
	}
	if u.UpdatedAt != nil {
		f.UpdatedAt = *u.UpdatedAt
	}

	return f
}

// ArticleUpdate is a field mask over Article. Articles only ever change their read flag.
type ArticleUpdate struct {
	IsRead *bool
}

func (u ArticleUpdate) Apply(a Article) Article {
	if u.IsRead != nil {
		a.IsRead = *u.IsRead
	}

	return a
}

// Ptr returns a pointer to v, for building field masks.
func Ptr[T any](v T) *T {
	return &v
}
