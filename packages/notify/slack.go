package notify

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier posts Block Kit messages to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
	now        func() time.Time
}

type SlackOption func(*SlackNotifier)

// WithSlackChannel overrides the webhook's default channel.
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

func WithSlackIconEmoji(emoji string) SlackOption {
	return func(s *SlackNotifier) {
		s.iconEmoji = emoji
	}
}

func WithSlackHTTPClient(c *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = c
	}
}

func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "hitrun",
		iconEmoji:  ":test_tube:",
		client:     &http.Client{Timeout: webhookTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

// slackMessage is an incoming webhook payload. Text is the notification
// fallback shown where blocks are not rendered.
type slackMessage struct {
	Channel   string       `json:"channel,omitempty"`
	Username  string       `json:"username,omitempty"`
	IconEmoji string       `json:"icon_emoji,omitempty"`
	Text      string       `json:"text"`
	Blocks    []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(format string, args ...any) slackText {
	return slackText{Type: "mrkdwn", Text: fmt.Sprintf(format, args...)}
}

var slackEmoji = map[verdict]string{
	verdictPassed:    ":white_check_mark:",
	verdictFailed:    ":x:",
	verdictRecovered: ":tada:",
}

func (s *SlackNotifier) Notify(summary *RunSummary) error {
	title, v := headline(summary)
	title = slackEmoji[v] + " " + title

	fields := []slackText{
		mrkdwn("*Execution*\n#%d (%s)", summary.ExecutionID, summary.Scope),
		mrkdwn("*Cases*\n%d passed, %d failed of %d", summary.PassedCases, summary.FailedCases, summary.TotalCases),
		mrkdwn("*Duration*\n%s", summary.Duration.Round(time.Millisecond)),
	}
	if summary.Environment != "" {
		fields = append(fields, mrkdwn("*Environment*\n%s", summary.Environment))
	}

	blocks := []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: title}},
		{Type: "section", Fields: fields},
	}
	if summary.ErrorMessage != "" {
		t := mrkdwn("*Error:* %s", summary.ErrorMessage)
		blocks = append(blocks, slackBlock{Type: "section", Text: &t})
	}
	if failures := slackFailures(summary); failures != "" {
		t := mrkdwn("%s", failures)
		blocks = append(blocks, slackBlock{Type: "section", Text: &t})
	}
	blocks = append(blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{mrkdwn("hitrun | %s", s.now().Format(time.RFC3339))},
	})

	return postWebhook(s.client, s.webhookURL, "slack", slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Text:      title,
		Blocks:    blocks,
	}, http.StatusOK)
}

func slackFailures(summary *RunSummary) string {
	listed, omitted := listedFailures(summary)
	if len(listed) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("*Failed cases:*\n")
	for _, fc := range listed {
		fmt.Fprintf(&b, "- `%s` (id %d)\n", fc.Name, fc.CaseID)
		for _, msg := range fc.Errors {
			fmt.Fprintf(&b, "    %s\n", msg)
		}
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "...and %d more\n", omitted)
	}
	return b.String()
}
