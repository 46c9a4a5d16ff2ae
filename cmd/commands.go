package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"feedshelf/internal/apperror"
	"feedshelf/internal/config"
	"feedshelf/internal/domain"
	"feedshelf/internal/markdown"
	"feedshelf/internal/scheduler"
	"feedshelf/internal/store"

	"github.com/urfave/cli"
)

const timeLayout = "2006-01-02 15:04"

type runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.Config
	log    *slog.Logger
}

// action opens the services for one command and closes them afterwards.
func (r *runner) action(fn func(ctx context.Context, c *cli.Context, a *app) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		a, err := newApp(r.ctx, r.cfg, r.log)
		if err != nil {
			return err
		}
		defer a.Close(r.ctx)

		return fn(r.ctx, c, a)
	}
}

func (r *runner) commands() []cli.Command {
	return []cli.Command{
		{
			Name:   "serve",
			Usage:  "refresh feeds on a schedule until interrupted",
			Action: r.action(r.serve),
		},
		{
			Name:   "feeds",
			Usage:  "list subscribed feeds",
			Action: r.action(listFeeds),
		},
		{
			Name:      "articles",
			Usage:     "list articles, newest first",
			ArgsUsage: "[feedID]",
			Action:    r.action(listArticles),
		},
		{
			Name:      "add",
			Usage:     "subscribe to a feed",
			ArgsUsage: "<url>",
			Action:    r.action(addFeed),
		},
		{
			Name:      "remove",
			Usage:     "unsubscribe from a feed and drop its articles",
			ArgsUsage: "<feedID>",
			Action:    r.action(removeFeed),
		},
		{
			Name:   "refresh",
			Usage:  "fetch new articles of every feed",
			Action: r.action(refreshFeeds),
		},
		{
			Name:      "read",
			Usage:     "print an article and mark it as read",
			ArgsUsage: "<articleID>",
			Action:    r.action(readArticle),
		},
		{
			Name:      "toc",
			Usage:     "print the table of contents of an article",
			ArgsUsage: "<articleID>",
			Action:    r.action(tableOfContents),
		},
		{
			Name:      "notes",
			Usage:     "list the notes of an article",
			ArgsUsage: "<articleID>",
			Action:    r.action(listNotes),
		},
		{
			Name:  "note",
			Usage: "manage article notes",
			Subcommands: []cli.Command{
				{
					Name:      "add",
					Usage:     "add a note to an article",
					ArgsUsage: "<articleID> <content>",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "quote", Usage: "quoted article text"},
					},
					Action: r.action(addNote),
				},
				{
					Name:      "edit",
					Usage:     "replace the content of a note",
					ArgsUsage: "<articleID> <itemID> <content>",
					Action:    r.action(editNote),
				},
				{
					Name:      "rm",
					Usage:     "delete a note",
					ArgsUsage: "<articleID> <itemID>",
					Action:    r.action(deleteNote),
				},
			},
		},
		{
			Name:      "chat",
			Usage:     "ask the assistant about an article, or print the conversation",
			ArgsUsage: "<articleID> [message]",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "retry", Usage: "ask again about the last unanswered message"},
				cli.BoolFlag{Name: "clear", Usage: "delete the conversation"},
			},
			Action: r.action(chatAbout),
		},
	}
}

func (r *runner) serve(ctx context.Context, c *cli.Context, a *app) error {
	start := time.Now()

	unsubscribe := a.store.Subscribe(func(snap store.Snapshot) {
		a.log.DebugContext(ctx, "Store state is changed",
			"feedsCount", len(snap.Feeds),
			"articlesCount", len(snap.Articles))
	})
	defer unsubscribe()

	sched := scheduler.New(ctx, a.reader, r.cfg.RefreshSpec, a.log)
	if err := sched.Start(); err != nil {
		a.log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", r.cfg.RefreshSpec)

		return err
	}
	defer sched.Stop()
	a.log.InfoContext(ctx, "Scheduler is started",
		"spec", r.cfg.RefreshSpec,
		"timezone", scheduler.Timezone)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	received := <-sig
	a.log.InfoContext(ctx, "Shutdown signal is received",
		"signal", received.String())
	r.cancel()

	a.log.InfoContext(ctx, "Exiting...",
		"signal", received.String(),
		"uptimeSeconds", time.Since(start).Seconds())

	return nil
}

func listFeeds(_ context.Context, c *cli.Context, a *app) error {
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUNREAD\tURL")
	for _, f := range a.store.Feeds() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.ID, f.Title, f.UnreadCount, f.URL)
	}

	return w.Flush()
}

func listArticles(_ context.Context, c *cli.Context, a *app) error {
	articles := a.store.Articles()
	if feedID := c.Args().First(); feedID != "" {
		if _, ok := a.store.Feed(feedID); !ok {
			return apperror.NotFound("ListArticles", "feed", feedID)
		}
		articles = a.store.FeedArticles(feedID)
	}
	domain.SortArticlesByPublished(articles)

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFEED\t\tPUBLISHED\tTITLE")
	for _, art := range articles {
		mark := "*"
		if art.IsRead {
			mark = ""
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			art.ID, art.FeedID, mark, art.PublishedAt.Format(timeLayout), art.Title)
	}

	return w.Flush()
}

func addFeed(ctx context.Context, c *cli.Context, a *app) error {
	result, err := a.reader.Subscribe(ctx, c.Args().First())
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Subscribed to %s (%s), %d articles\n",
		result.Feed.Title, result.Feed.ID, result.Articles)
	if result.Warning != nil {
		fmt.Fprintf(c.App.Writer, "Articles were not loaded: %s\n", apperror.UserMessage(result.Warning))
	}

	return nil
}

func removeFeed(ctx context.Context, c *cli.Context, a *app) error {
	feedID := c.Args().First()
	if err := a.store.RemoveFeed(ctx, feedID); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Removed %s\n", feedID)

	return nil
}

func refreshFeeds(ctx context.Context, c *cli.Context, a *app) error {
	result, err := a.reader.Refresh(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Refreshed %d feeds, %d articles\n", len(result.Succeeded), result.Articles)
	for _, failure := range result.Failed {
		fmt.Fprintf(c.App.Writer, "Failed to refresh %s: %s\n", failure.Title, apperror.UserMessage(failure.Err))
	}

	return nil
}

func article(a *app, op, id string) (domain.Article, error) {
	art, ok := a.store.Article(id)
	if !ok {
		return domain.Article{}, apperror.NotFound(op, "article", id)
	}

	return art, nil
}

func readArticle(ctx context.Context, c *cli.Context, a *app) error {
	art, err := article(a, "ReadArticle", c.Args().First())
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "# %s\n\n", art.Title)
	if art.Author != "" {
		fmt.Fprintf(c.App.Writer, "%s, ", art.Author)
	}
	fmt.Fprintf(c.App.Writer, "%s\n%s\n\n%s\n", art.PublishedAt.Format(timeLayout), art.URL, art.Content)

	a.store.MarkAsRead(ctx, art.ID)

	return nil
}

func tableOfContents(_ context.Context, c *cli.Context, a *app) error {
	art, err := article(a, "TableOfContents", c.Args().First())
	if err != nil {
		return err
	}

	for _, h := range markdown.Headings(art.Content) {
		fmt.Fprintf(c.App.Writer, "%s- %s (#%s)\n", strings.Repeat("  ", h.Level-1), h.Text, h.Slug)
	}

	return nil
}

func listNotes(ctx context.Context, c *cli.Context, a *app) error {
	art, err := article(a, "ListNotes", c.Args().First())
	if err != nil {
		return err
	}

	note, ok, err := a.notes.Get(ctx, art.ID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.App.Writer, "No notes yet")
		return nil
	}

	for _, item := range note.Items {
		printNoteItem(c.App.Writer, item)
	}

	return nil
}

func printNoteItem(w io.Writer, item domain.NoteItem) {
	fmt.Fprintf(w, "[%s] %s\n", item.ID, item.UpdatedAt.Format(timeLayout))
	if item.QuotedText != "" {
		fmt.Fprintf(w, "> %s\n", item.QuotedText)
	}
	fmt.Fprintf(w, "%s\n\n", item.Content)
}

func addNote(ctx context.Context, c *cli.Context, a *app) error {
	art, err := article(a, "AddNoteItem", c.Args().First())
	if err != nil {
		return err
	}

	item, err := a.notes.AddItem(ctx, art.ID, strings.Join(c.Args().Tail(), " "), c.String("quote"))
	if err != nil {
		return err
	}
	printNoteItem(c.App.Writer, item)

	return nil
}

func editNote(ctx context.Context, c *cli.Context, a *app) error {
	args := c.Args()

	var content string
	if len(args) > 2 {
		content = strings.Join(args[2:], " ")
	}

	item, err := a.notes.EditItem(ctx, args.Get(0), args.Get(1), content)
	if err != nil {
		return err
	}
	printNoteItem(c.App.Writer, item)

	return nil
}

func deleteNote(ctx context.Context, c *cli.Context, a *app) error {
	args := c.Args()
	if err := a.notes.DeleteItem(ctx, args.Get(0), args.Get(1)); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Deleted %s\n", args.Get(1))

	return nil
}

func chatAbout(ctx context.Context, c *cli.Context, a *app) error {
	art, err := article(a, "Chat", c.Args().First())
	if err != nil {
		return err
	}
	articleContext := art.Title + "\n\n" + art.Content

	switch {
	case c.Bool("clear"):
		if err = a.chat.Clear(ctx, art.ID); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "Conversation is cleared")

		return nil
	case c.Bool("retry"):
		reply, err := a.chat.Retry(ctx, art.ID, articleContext)
		if err != nil {
			return err
		}
		printMessage(c.App.Writer, reply)

		return nil
	}

	message := strings.Join(c.Args().Tail(), " ")
	if message == "" {
		history, err := a.chat.History(ctx, art.ID)
		if err != nil {
			return err
		}
		for _, msg := range history {
			printMessage(c.App.Writer, msg)
		}

		return nil
	}

	reply, err := a.chat.Send(ctx, art.ID, articleContext, message)
	if err != nil {
		if apperror.Retryable(err) {
			fmt.Fprintln(c.App.Writer, "Run with --retry to ask again")
		}
		return err
	}
	printMessage(c.App.Writer, reply)

	return nil
}

func printMessage(w io.Writer, msg domain.ChatMessage) {
	fmt.Fprintf(w, "%s (%s):\n%s\n\n", msg.Role, msg.Timestamp.Format(timeLayout), msg.Content)
}
