package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/meme-comb/app/meme"
)

var _ Client = (*RSSClient)(nil)

// RSSClient reads image posts from RSS/Atom feeds.
type RSSClient struct {
	httpClient   *http.Client
	gofeedParser *gofeed.Parser
	userAgent    string
}

func NewRSSClient(httpClient *http.Client, userAgent string) *RSSClient {
	return &RSSClient{
		httpClient:   httpClient,
		gofeedParser: gofeed.NewParser(),
		userAgent:    userAgent,
	}
}

func (c *RSSClient) Fetch(ctx context.Context, feedURL string, offset, count int) ([]meme.RawPost, error) {
	data, err := c.fetchFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := c.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := feed.Items
	if offset >= len(items) {
		return nil, nil
	}
	items = items[max(offset, 0):]

	posts := make([]meme.RawPost, 0, len(items))
	for _, item := range items {
		if count > 0 && len(posts) >= count {
			break
		}
		posts = append(posts, c.toRawPost(feedURL, item))
	}

	return posts, nil
}

func (c *RSSClient) fetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func (c *RSSClient) toRawPost(feedURL string, item *gofeed.Item) meme.RawPost {
	description, inlineImage := parseDescription(cmp.Or(item.Description, item.Content))

	raw := meme.RawPost{
		SourceID: feedURL,
		Text:     item.Title,
		Link:     item.Link,
	}

	if description != "" {
		raw.Metadata = &meme.Metadata{Description: description}
	}

	if item.PublishedParsed != nil {
		raw.PublishedAt = *item.PublishedParsed
	} else {
		raw.PublishedAt = time.Now().UTC()
	}

	imageURL := ""
	if item.Image != nil {
		imageURL = item.Image.URL
	}
	if imageURL == "" {
		for _, enclosure := range item.Enclosures {
			if enclosure != nil && strings.HasPrefix(enclosure.Type, "image/") {
				imageURL = enclosure.URL
				break
			}
		}
	}
	imageURL = cmp.Or(imageURL, inlineImage)

	if imageURL != "" {
		raw.Photos = []meme.PhotoSize{{URL: imageURL}}
	}

	return raw
}

// parseDescription returns the plain text of an HTML description and the
// first inline image it references.
func parseDescription(html string) (string, string) {
	if strings.TrimSpace(html) == "" {
		return "", ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html), ""
	}

	image, _ := doc.Find("img").First().Attr("src")

	return strings.Join(strings.Fields(doc.Text()), " "), image
}
