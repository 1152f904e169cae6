package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/operation"
	"github.com/italolelis/media_downloader/internal/storage"
)

type fakeOperator struct {
	mu        sync.Mutex
	outcome   media.Outcome
	downloads []media.DownloadRequest
	converts  []media.ConvertRequest
	cancelled []string
	cancelErr error
}

func (f *fakeOperator) Download(_ context.Context, req media.DownloadRequest) media.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.downloads = append(f.downloads, req)

	return f.outcome
}

func (f *fakeOperator) Convert(_ context.Context, req media.ConvertRequest) media.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.converts = append(f.converts, req)

	return f.outcome
}

func (f *fakeOperator) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, id)

	return f.cancelErr
}

type fakeHistory struct {
	records   []storage.OperationRecord
	lastLimit int
}

func (f *fakeHistory) GetOperation(_ context.Context, id string) (storage.OperationRecord, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}

	return storage.OperationRecord{}, storage.ErrNotFound
}

func (f *fakeHistory) ListOperations(_ context.Context, limit int) ([]storage.OperationRecord, error) {
	f.lastLimit = limit

	return f.records, nil
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestMediaHandler_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		want   string
	}{
		{name: "missing url", target: "/api/media/download", body: `{}`, want: "URL is required."},
		{name: "blank url", target: "/api/media/download", body: `{"url":"   "}`, want: "URL is required."},
		{name: "download body is not json", target: "/api/media/download", body: `url=x`, want: "invalid request body"},
		{name: "missing input", target: "/api/media/convert", body: `{"outputFormat":"mp3"}`, want: "Input file path is required."},
		{name: "missing output format", target: "/api/media/convert", body: `{"inputFilePath":"/media/a.webm"}`, want: "Output format is required."},
		{name: "convert body is not json", target: "/api/media/convert", body: `[`, want: "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &fakeOperator{}
			h := NewMediaHandler(op, nil).Routes()

			rec := serve(h, http.MethodPost, tt.target, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, strings.TrimSpace(rec.Body.String()))
			assert.Empty(t, op.downloads)
			assert.Empty(t, op.converts)
		})
	}
}

func TestMediaHandler_Download(t *testing.T) {
	op := &fakeOperator{outcome: media.Outcome{
		OperationID:  "op-1",
		Success:      true,
		State:        media.StateSucceeded,
		Message:      "Downloaded successfully: /data/a.mp4 (MP4 (Video))",
		ArtifactPath: "/data/a.mp4",
		Label:        "MP4 (Video)",
	}}

	h := NewMediaHandler(op, nil).Routes()

	rec := serve(h, http.MethodPost, "/api/media/download", `{"url":"https://example.com/watch?v=1","resolution":"720p"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, "Download initiated. Check the console for progress.", resp.Message)
	assert.Equal(t, "Downloaded successfully: /data/a.mp4 (MP4 (Video))", resp.Result)
	assert.Equal(t, "op-1", resp.OperationID)
	assert.Equal(t, media.StateSucceeded, resp.Outcome.State)

	require.Len(t, op.downloads, 1)
	assert.Equal(t, "https://example.com/watch?v=1", op.downloads[0].URL)
	assert.Equal(t, "720p", op.downloads[0].Resolution)
}

func TestMediaHandler_FailedOperationStillAnswersOK(t *testing.T) {
	op := &fakeOperator{outcome: media.Outcome{
		OperationID: "op-2",
		State:       media.StateFailed,
		Message:     "Failed to convert the media.",
	}}

	h := NewMediaHandler(op, nil).Routes()

	rec := serve(h, http.MethodPost, "/api/media/convert", `{"inputFilePath":"/media/a.webm","outputFormat":"mp3"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, "Conversion initiated. Check the console for progress.", resp.Message)
	assert.Equal(t, "Failed to convert the media.", resp.Result)
	assert.False(t, resp.Outcome.Success)

	require.Len(t, op.converts, 1)
	assert.Equal(t, "mp3", op.converts[0].OutputFormat)
}

func TestMediaHandler_Operations(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	history := &fakeHistory{records: []storage.OperationRecord{
		{ID: "b", Kind: "convert", State: "running", StartedAt: started.Add(time.Minute)},
		{ID: "a", Kind: "download", State: "succeeded", StartedAt: started, EndedAt: started.Add(time.Second)},
	}}

	h := NewMediaHandler(&fakeOperator{}, history).Routes()

	rec := serve(h, http.MethodGet, "/api/media/operations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultListLimit, history.lastLimit)

	var list []storage.OperationRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	rec = serve(h, http.MethodGet, "/api/media/operations?limit=100000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, history.lastLimit)

	rec = serve(h, http.MethodGet, "/api/media/operations?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/api/media/operations/a", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got storage.OperationRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "download", got.Kind)
	assert.True(t, got.Finished())

	rec = serve(h, http.MethodGet, "/api/media/operations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMediaHandler_EmptyHistoryIsAnEmptyList(t *testing.T) {
	h := NewMediaHandler(&fakeOperator{}, &fakeHistory{}).Routes()

	rec := serve(h, http.MethodGet, "/api/media/operations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestMediaHandler_WithoutHistory(t *testing.T) {
	h := NewMediaHandler(&fakeOperator{}, nil).Routes()

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/media/operations", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/media/operations/a", "").Code)
}

func TestMediaHandler_Cancel(t *testing.T) {
	op := &fakeOperator{}
	h := NewMediaHandler(op, nil).Routes()

	rec := serve(h, http.MethodDelete, "/api/media/operations/op-1", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"op-1"}, op.cancelled)

	op.cancelErr = operation.ErrUnknownOperation

	rec = serve(h, http.MethodDelete, "/api/media/operations/op-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
