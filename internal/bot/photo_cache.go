package bot

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

//go:embed static/not-found.png
var fallbackPhoto []byte

var validMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// photoCache keeps downloaded dog photos (or the error for a bad url) so the
// same dog is not fetched again on every page.
type photoCache struct {
	entries    sync.Map
	httpClient *http.Client
	minSize    int
}

func newPhotoCache(timeout time.Duration) *photoCache {
	return &photoCache{
		httpClient: &http.Client{Timeout: timeout},
		minSize:    512,
	}
}

func (c *photoCache) Get(ctx context.Context, url string) tgbotapi.RequestFileData {
	if url == "" {
		return fallbackPhotoFile()
	}

	if cached, ok := c.entries.Load(url); ok {
		switch v := cached.(type) {
		case tgbotapi.FileBytes:
			return v
		case error:
			return fallbackPhotoFile()
		}
	}

	imgData, contentType, err := c.downloadAndValidate(ctx, url)
	if err != nil {
		slog.Warn("Failed to download dog photo", "url", url, "error", err)
		c.entries.Store(url, err)
		return fallbackPhotoFile()
	}

	file := tgbotapi.FileBytes{
		Name:  "dog" + getExtensionFromContentType(contentType),
		Bytes: imgData,
	}
	c.entries.Store(url, file)
	return file
}

func (c *photoCache) downloadAndValidate(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("invalid status code: %d", resp.StatusCode)
	}

	imgData, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read failed: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(imgData)
	}
	contentType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])

	if !validMimeTypes[contentType] {
		return nil, "", fmt.Errorf("invalid content type: %s", contentType)
	}

	if len(imgData) < c.minSize {
		return nil, "", fmt.Errorf("image too small: %d bytes", len(imgData))
	}

	// webp has no registered decoder, trust the content type for it
	if contentType != "image/webp" {
		if _, _, err := image.DecodeConfig(bytes.NewReader(imgData)); err != nil {
			return nil, "", fmt.Errorf("invalid image format: %w", err)
		}
	}

	return imgData, contentType, nil
}

func getExtensionFromContentType(contentType string) string {
	switch {
	case strings.Contains(contentType, "jpeg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

func fallbackPhotoFile() tgbotapi.RequestFileData {
	return tgbotapi.FileBytes{
		Name:  "not-found.png",
		Bytes: fallbackPhoto,
	}
}

func (c *photoCache) ClearPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("Photo cache cleared", "count", c.clear())
		case <-ctx.Done():
			return
		}
	}
}

func (c *photoCache) clear() int {
	clearCount := 0
	c.entries.Range(func(key, value interface{}) bool {
		c.entries.Delete(key)
		clearCount++
		return true
	})
	return clearCount
}
