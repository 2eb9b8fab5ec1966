package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/lysyi3m/meme-comb/app/meme"
)

// MetadataEnricher fills in title and description of a post from the page
// its link points at.
type MetadataEnricher struct {
	httpClient *http.Client
	userAgent  string
}

func NewMetadataEnricher(httpClient *http.Client, userAgent string) *MetadataEnricher {
	return &MetadataEnricher{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

func (e *MetadataEnricher) Run(ctx context.Context, post *meme.RawPost) error {
	if post.Link == "" {
		return nil
	}
	if post.Metadata != nil && post.Metadata.Title != "" && post.Metadata.Description != "" {
		return nil
	}

	pageURL, err := url.Parse(post.Link)
	if err != nil {
		return fmt.Errorf("invalid post link: %w", err)
	}

	data, err := e.fetchPage(ctx, post.Link)
	if err != nil {
		return err
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return fmt.Errorf("failed to extract metadata: %w", err)
	}

	if post.Metadata == nil {
		post.Metadata = &meme.Metadata{}
	}
	if post.Metadata.Title == "" {
		post.Metadata.Title = strings.TrimSpace(article.Title)
	}
	if post.Metadata.Description == "" {
		post.Metadata.Description = strings.TrimSpace(article.Excerpt)
	}

	slog.Debug("Metadata extracted", "url", post.Link, "title", post.Metadata.Title)

	return nil
}

func (e *MetadataEnricher) fetchPage(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
