package scraper

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
)

var (
	detailPattern = regexp.MustCompile(`/trouble/detail/(\d+)`)
	datePattern   = regexp.MustCompile(`(\d{4}\.\d{2}\.\d{2})`)
	statusPattern = regexp.MustCompile(`(?:\d{4}\.\d{2}\.\d{2})?\s*[（(]([^）)]+)[）)]`)
	areaKeywords  = regexp.MustCompile(`丁目|付近|地区|町|番地`)
	areaPattern   = regexp.MustCompile(`[（(]([^）)]*(?:丁目|付近|地区|町|番地)[^）)]*)[）)]`)
)

// Parse extracts one outage per anchor linking to a detail page. LastUpdated
// is left zero. Anchors without href or text are skipped.
func Parse(r io.Reader, baseURL string) ([]model.Outage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var outages []model.Outage
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !detailPattern.MatchString(href) {
			return
		}
		if o, ok := parseEntry(href, strippedText(a.Nodes[0]), baseURL); ok {
			outages = append(outages, o)
		}
	})
	return outages, nil
}

func parseEntry(href, text, baseURL string) (model.Outage, bool) {
	if href == "" || text == "" {
		return model.Outage{}, false
	}
	m := detailPattern.FindStringSubmatch(href)
	if m == nil {
		return model.Outage{}, false
	}

	var date string
	if dm := datePattern.FindStringSubmatch(text); dm != nil {
		date = dm[1]
	}
	status := extractStatus(text)
	title, area := extractTitleAndArea(text, date, status)

	url := href
	if strings.HasPrefix(href, "/") {
		url = strings.TrimRight(baseURL, "/") + href
	}

	return model.Outage{
		ID:     m[1],
		Date:   date,
		Status: status,
		Title:  title,
		Area:   area,
		URL:    url,
	}, true
}

// extractStatus returns the first bracketed label unless it names a place.
func extractStatus(text string) string {
	m := statusPattern.FindStringSubmatch(text)
	if m == nil || areaKeywords.MatchString(m[1]) {
		return ""
	}
	return m[1]
}

func extractTitleAndArea(text, date, status string) (string, string) {
	clean := text
	if date != "" {
		clean = strings.ReplaceAll(clean, date, "")
	}
	if status != "" {
		clean = bracketed(status).ReplaceAllString(clean, "")
	}
	clean = strings.TrimSpace(clean)

	var area string
	if m := areaPattern.FindStringSubmatch(clean); m != nil {
		area = m[1]
	}

	title := clean
	if area != "" {
		title = bracketed(area).ReplaceAllString(title, "")
	}
	return strings.TrimSpace(title), area
}

func bracketed(s string) *regexp.Regexp {
	return regexp.MustCompile(`[（(]` + regexp.QuoteMeta(s) + `[）)]`)
}

// strippedText concatenates the trimmed text nodes under n.
func strippedText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
