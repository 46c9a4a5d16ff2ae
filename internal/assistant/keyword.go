package assistant

import (
	"context"
	"strings"
	"time"
)

const DefaultKeywordLatency = 800 * time.Millisecond

type keywordRule struct {
	keywords []string
	reply    string
}

// Rules are tried in order, the first rule with a keyword contained in the
// message wins.
var keywordRules = []keywordRule{
	{
		keywords: []string{"summary", "summarize", "summarise", "tl;dr"},
		reply: "Here is a summary of the article:\n\n" +
			"The article discusses current trends and hands-on experience. " +
			"The author explains the key concepts with concrete cases and practical code samples. " +
			"Overall it is a valuable technical read worth studying in depth.",
	},
	{
		keywords: []string{"explain", "what is", "meaning"},
		reply: "Let me explain the concept:\n\n" +
			"The core idea is to solve a practical problem in a specific way. " +
			"Its strengths are efficiency and maintainability. " +
			"In practice, pay attention to performance tuning and error handling.",
	},
	{
		keywords: []string{"code", "snippet", "example"},
		reply: "A few notes about the code:\n\n" +
			"1. The structure is clear and follows common practice\n" +
			"2. It uses modern language features\n" +
			"3. It cares about performance and readability\n\n" +
			"Tell me which snippet you want to look at and I will walk through it.",
	},
	{
		keywords: []string{"opinion", "viewpoint", "argue", "think"},
		reply: "The author's position is:\n\n" +
			"Technology choices should follow real needs instead of chasing novelty. " +
			"The article stresses practicality and maintainability, a pragmatic view that applies to real projects.",
	},
	{
		keywords: []string{"pros", "cons", "trade-off", "tradeoff"},
		reply: "Pros and cons:\n\n" +
			"**Pros:**\n- Faster development\n- Lower maintenance cost\n- Better user experience\n\n" +
			"**Cons:**\n- Steeper learning curve\n- More upfront complexity\n- The team has to adapt its workflow",
	},
	{
		keywords: []string{"how"},
		reply: "My suggestion for getting there:\n\n" +
			"1. Understand the core concepts first\n" +
			"2. Start with a small example\n" +
			"3. Apply it step by step to a real project\n" +
			"4. Keep learning and refining\n\n" +
			"Building a small project is the fastest way to get familiar with it.",
	},
	{
		keywords: []string{"why"},
		reply: "As for why:\n\n" +
			"The main reason is a specific technical challenge. " +
			"This approach gives better performance, maintainability or user experience, " +
			"and the method in the article has been proven in practice.",
	},
	{
		keywords: []string{"performance", "speed", "fast", "slow"},
		reply: "On performance:\n\n" +
			"Optimization is an ongoing process. The approach in the article mainly helps by\n" +
			"- avoiding unnecessary work\n- loading resources more efficiently\n- improving response times\n\n" +
			"Use a profiler to measure the effect.",
	},
	{
		keywords: []string{"security", "secure", "vulnerab"},
		reply: "On security:\n\n" +
			"- Validate and sanitize input\n" +
			"- Guard against common vulnerabilities such as XSS and CSRF\n" +
			"- Use well maintained dependencies\n" +
			"- Update and audit regularly\n\n" +
			"The OWASP guidelines are a good reference.",
	},
	{
		keywords: []string{"test"},
		reply: "On testing:\n\n" +
			"- Unit tests for individual functions\n" +
			"- Integration tests for module interactions\n" +
			"- End-to-end tests for complete user flows\n\n" +
			"Pick a suitable framework and keep coverage high.",
	},
}

const defaultReply = "That is a good question. The article offers useful insights and practical experience.\n\n" +
	"If you are interested in a specific aspect, tell me and I will go into more detail.\n\n" +
	"Is there anything else you would like to know?"

// Keyword answers with canned replies chosen by keywords in the message.
type Keyword struct {
	latency time.Duration
}

func NewKeyword(latency time.Duration) *Keyword {
	return &Keyword{latency: latency}
}

func (k *Keyword) Reply(ctx context.Context, req Request) (string, error) {
	if k.latency > 0 {
		timer := time.NewTimer(k.latency)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return KeywordReply(req.Message), nil
}

// KeywordReply returns the canned reply for message.
func KeywordReply(message string) string {
	lower := strings.ToLower(message)

	for _, rule := range keywordRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.reply
			}
		}
	}

	return defaultReply
}
