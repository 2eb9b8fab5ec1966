package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lysyi3m/meme-comb/app/meme"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>Офисный юмор</title></head>
<body>
  <article>
    <h1>Офисный юмор</h1>
    <p>Подборка лучших шуток про понедельник, дедлайны и бесконечные совещания. Здесь собраны истории, которые знакомы каждому сотруднику.</p>
    <p>Ещё один абзац, чтобы алгоритм выделения основного текста уверенно нашёл статью и смог построить краткое описание.</p>
  </article>
</body>
</html>`

func TestMetadataEnricher_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	}))
	defer server.Close()

	enricher := NewMetadataEnricher(server.Client(), "test-agent")
	post := meme.RawPost{Text: "мем", Link: server.URL + "/post"}

	if err := enricher.Run(context.Background(), &post); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if post.Metadata == nil {
		t.Fatal("Expected metadata to be filled")
	}
	if post.Metadata.Title == "" {
		t.Error("Expected title to be extracted")
	}
	if post.Metadata.Description == "" {
		t.Error("Expected description to be extracted")
	}
}

func TestMetadataEnricher_SkipsWithoutLink(t *testing.T) {
	enricher := NewMetadataEnricher(http.DefaultClient, "test-agent")
	post := meme.RawPost{Text: "мем"}

	if err := enricher.Run(context.Background(), &post); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if post.Metadata != nil {
		t.Error("Expected metadata to stay empty")
	}
}

func TestMetadataEnricher_RejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8})
	}))
	defer server.Close()

	enricher := NewMetadataEnricher(server.Client(), "test-agent")
	post := meme.RawPost{Link: server.URL}

	if err := enricher.Run(context.Background(), &post); err == nil {
		t.Error("Expected error for non-HTML content")
	}
}
