package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/videovault/backend/internal/logging"
	"github.com/videovault/backend/internal/models"
	"github.com/videovault/backend/internal/repositories"
)

// VideoHandler provides the administrator video catalog endpoints.
type VideoHandler struct {
	Videos  VideoStore
	Tokens  TokenAdmin
	Assets  AssetStorage
	NowFunc func() time.Time
}

// Handle dispatches GET and POST /api/v1/admin/videos.
func (h VideoHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h VideoHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	videos, err := h.Videos.List(ctx)
	if err != nil {
		logger.Error("failed to list videos", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch videos"})
		return
	}

	rows := make([]videoRow, 0, len(videos))
	for _, video := range videos {
		row := videoRow{
			ID:            video.ID,
			Title:         video.Title,
			BackingFileID: video.BackingFileID,
			SourceURL:     video.SourceURL,
			CreatedAt:     video.CreatedAt,
			Tokens:        []tokenRow{},
		}

		records, err := h.Tokens.ListByVideo(ctx, video.ID)
		if err != nil {
			logger.Error("failed to list video tokens", "videoId", video.ID, "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch videos"})
			return
		}
		for _, record := range records {
			row.Tokens = append(row.Tokens, newTokenRow(record))
		}

		rows = append(rows, row)
	}

	respondJSON(ctx, w, http.StatusOK, map[string][]videoRow{"videos": rows})
}

func (h VideoHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid video payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	fileID := strings.TrimSpace(req.BackingFileID)
	sourceURL := strings.TrimSpace(req.SourceURL)
	if fileID == "" {
		fileID = extractBackingFileID(sourceURL)
	}
	if fileID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "a backing file id or a recognizable source link is required"})
		return
	}

	video := models.Video{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(req.Title),
		BackingFileID: fileID,
		SourceURL:     sourceURL,
		CreatedAt:     h.now(),
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "video already exists"})
			return
		}
		logger.Error("failed to create video", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to add video"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]videoRow{"video": {
		ID:            video.ID,
		Title:         video.Title,
		BackingFileID: video.BackingFileID,
		SourceURL:     video.SourceURL,
		CreatedAt:     video.CreatedAt,
		Tokens:        []tokenRow{},
	}})
}

// Upload handles POST /api/v1/admin/videos/upload: streams a multipart file
// into the private store and registers the catalog entry.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Assets == nil {
		respondJSON(ctx, w, http.StatusNotImplemented, map[string]string{"error": "asset uploads are not configured"})
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		logger.Warn("invalid upload payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "multipart body required"})
		return
	}

	title := ""
	for {
		part, err := reader.NextPart()
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "file part is required"})
			return
		}

		if part.FormName() == "title" {
			var buf strings.Builder
			if _, err := ioCopyLimited(&buf, part); err == nil {
				title = strings.TrimSpace(buf.String())
			}
			continue
		}

		if part.FormName() != "file" {
			continue
		}

		key := fmt.Sprintf("videos/%s%s", uuid.NewString(), path.Ext(part.FileName()))
		contentType := part.Header.Get("Content-Type")

		stored, err := h.Assets.Save(ctx, key, contentType, part)
		if err != nil {
			logger.Error("asset upload failed", "key", key, "error", err)
			respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "failed to store asset"})
			return
		}

		if title == "" {
			title = strings.TrimSuffix(part.FileName(), path.Ext(part.FileName()))
		}

		video := models.Video{
			ID:            uuid.NewString(),
			Title:         title,
			BackingFileID: stored,
			CreatedAt:     h.now(),
		}

		if err := h.Videos.Create(ctx, video); err != nil {
			logger.Error("failed to register uploaded video", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to add video"})
			return
		}

		respondJSON(ctx, w, http.StatusCreated, map[string]videoRow{"video": {
			ID:            video.ID,
			Title:         video.Title,
			BackingFileID: video.BackingFileID,
			CreatedAt:     video.CreatedAt,
			Tokens:        []tokenRow{},
		}})
		return
	}
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

var backingFileIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]{10,})`),
	regexp.MustCompile(`/d/([a-zA-Z0-9_-]{10,})`),
}

// extractBackingFileID pulls a file id out of a pasted share link.
func extractBackingFileID(sourceURL string) string {
	if sourceURL == "" {
		return ""
	}
	for _, pattern := range backingFileIDPatterns {
		if match := pattern.FindStringSubmatch(sourceURL); len(match) == 2 {
			return match[1]
		}
	}
	return ""
}

func ioCopyLimited(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, io.LimitReader(src, 1<<10))
}

type createVideoRequest struct {
	Title         string `json:"title"`
	BackingFileID string `json:"backingFileId"`
	SourceURL     string `json:"sourceUrl"`
}

type videoRow struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	BackingFileID string     `json:"backingFileId"`
	SourceURL     string     `json:"sourceUrl,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	Tokens        []tokenRow `json:"tokens"`
}
