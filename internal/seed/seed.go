// Package seed builds the sample feeds and articles a fresh install starts
// with from RSS documents bundled into the binary.
package seed

import (
	"embed"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"feedshelf/internal/domain"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const summaryMaxRunes = 160

//go:embed feeds/*.xml
var feedsFS embed.FS

type catalogEntry struct {
	file string
	url  string
	read []string
}

// The n-th entry becomes feed-n.
var catalog = []catalogEntry{
	{file: "techcrunch.xml", url: "https://techcrunch.com/feed/", read: []string{"article-3"}},
	{file: "hackernews.xml", url: "https://news.ycombinator.com/rss", read: []string{"article-8"}},
	{file: "csstricks.xml", url: "https://css-tricks.com/feed/"},
	{file: "devto.xml", url: "https://dev.to/feed", read: []string{"article-14"}},
	{file: "smashing.xml", url: "https://www.smashingmagazine.com/feed/"},
}

// createdAt is the creation time of every seed feed.
var createdAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type Dataset struct {
	Feeds    []domain.Feed
	Articles []domain.Article
}

func (d Dataset) clone() Dataset {
	return Dataset{
		Feeds:    slices.Clone(d.Feeds),
		Articles: slices.Clone(d.Articles),
	}
}

// FeedArticles returns the articles of the feed with the given id.
func (d Dataset) FeedArticles(feedID string) []domain.Article {
	var articles []domain.Article
	for _, a := range d.Articles {
		if a.FeedID == feedID {
			articles = append(articles, a)
		}
	}
	return articles
}

var parseOnce = sync.OnceValues(parse)

// Load returns a copy of the seed dataset. The bundled documents are parsed
// once.
func Load() (Dataset, error) {
	d, err := parseOnce()
	if err != nil {
		return Dataset{}, err
	}

	return d.clone(), nil
}

// Entities returns the seed feeds and articles.
func Entities() ([]domain.Feed, []domain.Article, error) {
	d, err := Load()
	if err != nil {
		return nil, nil, err
	}

	return d.Feeds, d.Articles, nil
}

func parse() (Dataset, error) {
	parser := gofeed.NewParser()
	converter := md.NewConverter("", true, &md.Options{CodeBlockStyle: "fenced"})

	var d Dataset
	for i, entry := range catalog {
		data, err := feedsFS.ReadFile("feeds/" + entry.file)
		if err != nil {
			return Dataset{}, fmt.Errorf("read %s: %w", entry.file, err)
		}

		parsed, err := parser.ParseString(string(data))
		if err != nil {
			return Dataset{}, fmt.Errorf("parse %s: %w", entry.file, err)
		}

		feed := domain.Feed{
			ID:          fmt.Sprintf("feed-%d", i+1),
			Title:       strings.TrimSpace(parsed.Title),
			URL:         entry.url,
			SiteURL:     strings.TrimSpace(parsed.Link),
			Description: strings.TrimSpace(parsed.Description),
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		}
		if parsed.Image != nil {
			feed.IconURL = parsed.Image.URL
		}

		for _, item := range parsed.Items {
			article, err := parseItem(converter, feed, item)
			if err != nil {
				return Dataset{}, fmt.Errorf("parse item %q of %s: %w", item.GUID, entry.file, err)
			}

			article.IsRead = slices.Contains(entry.read, article.ID)
			if article.PublishedAt.After(feed.LastFetchedAt) {
				feed.LastFetchedAt = article.PublishedAt
			}

			d.Articles = append(d.Articles, article)
		}

		d.Feeds = append(d.Feeds, feed)
	}

	return d, nil
}

func parseItem(converter *md.Converter, feed domain.Feed, item *gofeed.Item) (domain.Article, error) {
	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}

	content, err := converter.ConvertString(body)
	if err != nil {
		return domain.Article{}, fmt.Errorf("convert content: %w", err)
	}

	summary, err := Summarize(item.Description)
	if err != nil {
		return domain.Article{}, fmt.Errorf("summarize: %w", err)
	}

	published := createdAt
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}

	article := domain.Article{
		ID:          strings.TrimSpace(item.GUID),
		FeedID:      feed.ID,
		Title:       strings.TrimSpace(item.Title),
		Content:     content,
		Summary:     summary,
		URL:         strings.TrimSpace(item.Link),
		PublishedAt: published,
		CreatedAt:   published,
	}
	if item.Author != nil {
		article.Author = strings.TrimSpace(item.Author.Name)
	}
	if article.ID == "" {
		article.ID = article.URL
	}

	return article, nil
}

// Summarize returns the text of an HTML fragment with whitespace collapsed,
// cut at a word boundary to at most 160 runes including the ellipsis.
func Summarize(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	text := strings.Join(strings.Fields(doc.Text()), " ")

	return truncate(text, summaryMaxRunes), nil
}

func truncate(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:maxRunes-1])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}

	return strings.TrimRight(cut, " ,.;:") + "…"
}
