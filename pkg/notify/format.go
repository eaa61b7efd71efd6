package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
)

// MaxPostLength is the character limit of a single X post.
const MaxPostLength = 280

const ongoingLabel = "進行中"

// FormatNew renders the announcement for a newly seen outage.
func FormatNew(o model.Outage) string {
	lines := []string{
		"【としまテレビ 障害情報】",
		o.Title,
	}
	if o.Date != "" {
		lines = append(lines, "日時: "+o.Date)
	}
	if o.Area != "" {
		lines = append(lines, "地域: "+o.Area)
	}
	lines = append(lines, "詳細: "+o.URL)
	return strings.Join(lines, "\n")
}

// FormatStatusChange renders the announcement for a status transition. An
// empty status is shown as ongoing.
func FormatStatusChange(c model.StatusChange) string {
	status := c.NewStatus
	if status == "" {
		status = ongoingLabel
	}

	var header, body string
	switch status {
	case "復旧", "終了", "完了":
		header = fmt.Sprintf("【としまテレビ %s情報】", status)
		body = fmt.Sprintf("%s が%sしました", c.Outage.Title, status)
	default:
		header = "【としまテレビ 障害情報更新】"
		body = fmt.Sprintf("%s（%s）", c.Outage.Title, status)
	}

	lines := []string{header, body}
	if c.Outage.Area != "" {
		lines = append(lines, "地域: "+c.Outage.Area)
	}
	lines = append(lines, "詳細: "+c.Outage.URL)
	return strings.Join(lines, "\n")
}

// Truncate shortens text to at most limit characters, ending with "..." when
// cut.
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit <= 3 {
		return string([]rune(text)[:limit])
	}
	return string([]rune(text)[:limit-3]) + "..."
}

// NewMessage builds the message for a new outage.
func NewMessage(o model.Outage) Message {
	return Message{
		Kind:     model.ChangeNew,
		OutageID: o.ID,
		Status:   o.Status,
		Text:     FormatNew(o),
		URL:      o.URL,
	}
}

// StatusChangeMessage builds the message for a status transition.
func StatusChangeMessage(c model.StatusChange) Message {
	return Message{
		Kind:     model.ChangeStatusChange,
		OutageID: c.Outage.ID,
		Status:   c.NewStatus,
		Text:     FormatStatusChange(c),
		URL:      c.Outage.URL,
	}
}
