package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"net/url"
	"path"
	"time"

	"github.com/lysyi3m/meme-comb/app/meme"
)

// Generator renders the accepted pool as an RSS 2.0 document so the curated
// collection can be followed from any feed reader.
type Generator struct {
	title    string
	selfLink string
	version  string
}

func NewGenerator(title, selfLink, version string) *Generator {
	return &Generator{
		title:    title,
		selfLink: selfLink,
		version:  version,
	}
}

// Run expects items newest first.
func (g *Generator) Run(items []meme.Item) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", g.title, 4)
	g.writeElement(&buf, "link", g.selfLink, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("%d curated items", len(items)), 4)
	if g.selfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(g.selfLink)))
	}

	lastBuildDate := time.Now().In(time.Local)
	if len(items) > 0 {
		lastBuildDate = cmp.Or(items[0].Timestamp, lastBuildDate)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Meme-Comb/%s", g.version), 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item meme.Item) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.ID))
	buf.WriteString("</guid>\n")

	title := item.Text
	if item.Metadata != nil {
		title = cmp.Or(title, item.Metadata.Title)
	}
	g.writeElement(buf, "title", cmp.Or(title, "Untitled"), 6)

	if item.Metadata != nil {
		g.writeElement(buf, "description", item.Metadata.Description, 6)
	}

	g.writeElement(buf, "pubDate", item.Timestamp.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "source", item.Source, 6)

	for _, tag := range item.Tags {
		if tag != "" {
			g.writeElement(buf, "category", tag, 6)
		}
	}

	if item.ImageURL != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(item.ImageURL),
			html.EscapeString(imageType(item.ImageURL))))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

// imageType guesses the MIME type from the URL path, defaulting to JPEG.
func imageType(imageURL string) string {
	if u, err := url.Parse(imageURL); err == nil {
		if t := mime.TypeByExtension(path.Ext(u.Path)); t != "" {
			return t
		}
	}
	return "image/jpeg"
}
