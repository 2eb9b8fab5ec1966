package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/meme-comb/app/meme"
)

const (
	vkAPIURL      = "https://api.vk.com/method"
	vkAPIVersion  = "5.131"
	vkMaxPerCall  = 100
	vkWallBaseURL = "https://vk.com/wall"
)

var _ Client = (*VKClient)(nil)

// VKClient reads community walls through the VK wall.get method.
type VKClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
}

func NewVKClient(httpClient *http.Client, token, userAgent string) *VKClient {
	return &VKClient{
		httpClient: httpClient,
		baseURL:    vkAPIURL,
		token:      token,
		userAgent:  userAgent,
	}
}

type vkResponse struct {
	Response *struct {
		Count int      `json:"count"`
		Items []vkPost `json:"items"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_msg"`
	} `json:"error"`
}

type vkPost struct {
	ID          int            `json:"id"`
	OwnerID     int            `json:"owner_id"`
	Date        int64          `json:"date"`
	Text        string         `json:"text"`
	MarkedAsAds int            `json:"marked_as_ads"`
	IsPinned    int            `json:"is_pinned"`
	Attachments []vkAttachment `json:"attachments"`
}

type vkAttachment struct {
	Type  string `json:"type"`
	Photo *struct {
		Sizes []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"sizes"`
	} `json:"photo"`
}

func (c *VKClient) Fetch(ctx context.Context, groupID string, offset, count int) ([]meme.RawPost, error) {
	groupID = strings.TrimPrefix(groupID, "-")
	if count <= 0 || count > vkMaxPerCall {
		count = vkMaxPerCall
	}

	params := url.Values{}
	params.Set("owner_id", "-"+groupID)
	params.Set("count", strconv.Itoa(count))
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	params.Set("access_token", c.token)
	params.Set("v", vkAPIVersion)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/wall.get?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call wall.get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var payload vkResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode wall.get response: %w", err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("VK API error %d: %s", payload.Error.Code, payload.Error.Message)
	}
	if payload.Response == nil {
		return nil, fmt.Errorf("VK API returned no response")
	}

	posts := make([]meme.RawPost, 0, len(payload.Response.Items))
	for _, item := range payload.Response.Items {
		posts = append(posts, c.toRawPost(groupID, item))
	}

	return posts, nil
}

func (c *VKClient) toRawPost(groupID string, post vkPost) meme.RawPost {
	raw := meme.RawPost{
		SourceID:    groupID,
		Text:        post.Text,
		Link:        fmt.Sprintf("%s-%s_%d", vkWallBaseURL, groupID, post.ID),
		Promoted:    post.MarkedAsAds != 0,
		Pinned:      post.IsPinned != 0,
		PublishedAt: time.Unix(post.Date, 0).UTC(),
	}

	photoSeen := false
	for _, attachment := range post.Attachments {
		switch attachment.Type {
		case "link", "market", "app", "poll":
			raw.ExternalLink = true
		case "photo":
			if photoSeen || attachment.Photo == nil {
				continue
			}
			photoSeen = true
			for _, size := range attachment.Photo.Sizes {
				raw.Photos = append(raw.Photos, meme.PhotoSize{URL: size.URL, Width: size.Width, Height: size.Height})
			}
		}
	}

	return raw
}
