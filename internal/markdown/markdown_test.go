package markdown

import (
	"reflect"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "Hello World", want: "hello-world"},
		{text: "  React 19: What's New?  ", want: "react-19-what-s-new"},
		{text: "React 19 新特性", want: "react-19-新特性"},
		{text: "snake_case stays", want: "snake_case-stays"},
		{text: "--- !!! ---", want: ""},
		{text: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Slugify(tt.text); got != tt.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestUniqueSlug(t *testing.T) {
	existing := map[string]struct{}{
		"intro":     {},
		"intro-1":   {},
		"heading-1": {},
	}

	if got := UniqueSlug("Overview", existing); got != "overview" {
		t.Fatalf("unexpected slug %q", got)
	}
	if got := UniqueSlug("Intro", existing); got != "intro-2" {
		t.Fatalf("expected suffix after collisions, got %q", got)
	}
	if got := UniqueSlug("!!!", existing); got != "heading-2" {
		t.Fatalf("expected fallback slug, got %q", got)
	}
	if len(existing) != 3 {
		t.Fatalf("existing set was modified")
	}
}

func TestHeadings(t *testing.T) {
	doc := "# React 19 **new** features\n" +
		"\n" +
		"Intro text.\n" +
		"\n" +
		"## 1. Server Components ##\n" +
		"```jsx\n" +
		"# not a heading\n" +
		"```\n" +
		"## [Actions](https://react.dev) API\n" +
		"###### Deep\n" +
		"####### too deep\n" +
		"#NoSpace\n" +
		"## 1. Server Components\n"

	want := []Heading{
		{Level: 1, Text: "React 19 new features", Slug: "react-19-new-features"},
		{Level: 2, Text: "1. Server Components", Slug: "1-server-components"},
		{Level: 2, Text: "Actions API", Slug: "actions-api"},
		{Level: 6, Text: "Deep", Slug: "deep"},
		{Level: 2, Text: "1. Server Components", Slug: "1-server-components-1"},
	}

	if got := Headings(doc); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected headings:\n got %+v\nwant %+v", got, want)
	}
}

func TestHeadingsUnclosedFence(t *testing.T) {
	doc := "# Title\n~~~\n# inside\n```\n# still inside\n"

	got := Headings(doc)
	if len(got) != 1 || got[0].Text != "Title" {
		t.Fatalf("unexpected headings: %+v", got)
	}
}
