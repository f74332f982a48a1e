package notify

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// TeamsNotifier posts Adaptive Cards to a Microsoft Teams webhook.
type TeamsNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

type TeamsOption func(*TeamsNotifier)

func WithTeamsHTTPClient(c *http.Client) TeamsOption {
	return func(t *TeamsNotifier) {
		t.client = c
	}
}

func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TeamsNotifier) Name() string {
	return "teams"
}

type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

// teamsBlock is a TextBlock or a ColumnSet.
type teamsBlock struct {
	Type      string        `json:"type"`
	Size      string        `json:"size,omitempty"`
	Weight    string        `json:"weight,omitempty"`
	Text      string        `json:"text,omitempty"`
	Color     string        `json:"color,omitempty"`
	Wrap      bool          `json:"wrap,omitempty"`
	Columns   []teamsColumn `json:"columns,omitempty"`
	Spacing   string        `json:"spacing,omitempty"`
	Separator bool          `json:"separator,omitempty"`
}

type teamsColumn struct {
	Type  string       `json:"type"`
	Width string       `json:"width"`
	Items []teamsBlock `json:"items"`
}

func textBlock(color, format string, args ...any) teamsBlock {
	return teamsBlock{Type: "TextBlock", Text: fmt.Sprintf(format, args...), Color: color, Wrap: true}
}

func factColumn(label, value, color string) teamsColumn {
	return teamsColumn{
		Type:  "Column",
		Width: "stretch",
		Items: []teamsBlock{
			{Type: "TextBlock", Text: "**" + label + "**", Wrap: true},
			{Type: "TextBlock", Text: value, Color: color, Wrap: true},
		},
	}
}

func (t *TeamsNotifier) Notify(summary *RunSummary) error {
	title, v := headline(summary)
	color := "good"
	if v == verdictFailed {
		color = "attention"
	}

	body := []teamsBlock{
		{Type: "TextBlock", Size: "Large", Weight: "Bolder", Text: title, Color: color},
		{
			Type:      "ColumnSet",
			Separator: true,
			Spacing:   "Medium",
			Columns: []teamsColumn{
				factColumn("Total Cases", strconv.Itoa(summary.TotalCases), ""),
				factColumn("Passed", strconv.Itoa(summary.PassedCases), "good"),
				factColumn("Failed", strconv.Itoa(summary.FailedCases), "attention"),
				factColumn("Duration", summary.Duration.Round(time.Millisecond).String(), ""),
			},
		},
	}
	if summary.Environment != "" {
		body = append(body, textBlock("", "**Environment:** %s", summary.Environment))
	}
	if summary.ErrorMessage != "" {
		body = append(body, textBlock("attention", "**Error:** %s", summary.ErrorMessage))
	}

	listed, omitted := listedFailures(summary)
	if len(listed) > 0 {
		heading := textBlock("", "**Failed Cases:**")
		heading.Separator = true
		body = append(body, heading)
		for _, fc := range listed {
			body = append(body, textBlock("", "- `%s` (id %d)", fc.Name, fc.CaseID))
			for _, msg := range fc.Errors {
				body = append(body, textBlock("", "  - %s", msg))
			}
		}
		if omitted > 0 {
			body = append(body, textBlock("", "_...and %d more_", omitted))
		}
	}

	footer := textBlock("", "_hitrun execution #%d - %s_", summary.ExecutionID, t.now().Format(time.RFC3339))
	footer.Separator = true
	body = append(body, footer)

	msg := teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}
	return postWebhook(t.client, t.webhookURL, "teams", msg, http.StatusOK, http.StatusAccepted)
}
