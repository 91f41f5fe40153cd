package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"presentation-api/internal/middleware"
	"presentation-api/internal/model"
	"presentation-api/internal/service"
	"presentation-api/internal/storage"
)

const pngHeader = "\x89PNG\r\n\x1a\n"

type stubPresentationRepo struct {
	created   []model.Presentation
	updated   []model.Presentation
	createErr error
	updateErr error
}

func (s *stubPresentationRepo) Create(ctx context.Context, p model.Presentation) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, p)
	return nil
}

func (s *stubPresentationRepo) Update(ctx context.Context, p model.Presentation) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, p)
	return nil
}

func (s *stubPresentationRepo) List(ctx context.Context, q model.ListQuery) ([]model.PresentationSummary, int, int, error) {
	return nil, 0, 0, nil
}

type stubOwnerLookup struct{}

func (stubOwnerLookup) FindByID(ctx context.Context, id string) (model.User, error) {
	return model.User{ID: id, Username: "alice"}, nil
}

type testHarness struct {
	handler *PresentationHandler
	repo    *stubPresentationRepo
	store   *storage.Store
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	store, err := storage.New(t.TempDir(), 1<<20, nil)
	require.NoError(t, err)

	repo := &stubPresentationRepo{}
	svc := service.NewPresentationService(repo, store, stubOwnerLookup{}, "http://localhost:8080", t.TempDir())

	return &testHarness{
		handler: NewPresentationHandler(svc, 16<<20),
		repo:    repo,
		store:   store,
	}
}

type filePart struct {
	field   string
	name    string
	content string
}

func multipartBody(t *testing.T, payloadField string, payload string, files []filePart) (*bytes.Buffer, string) {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	if payload != "" {
		require.NoError(t, writer.WriteField(payloadField, payload))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = io.WriteString(part, f.content)
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func authedRequest(method string, target string, body io.Reader, contentType string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	ctx := middleware.WithClaims(req.Context(), &model.AuthClaims{Subject: "user-1"})
	return req.WithContext(ctx)
}

func countFiles(t *testing.T, root string) int {
	t.Helper()

	count := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestPresentationCreateHandler(t *testing.T) {
	t.Parallel()

	t.Run("stores payload and attachments", func(t *testing.T) {
		h := newHarness(t)

		body, contentType := multipartBody(t, "presentationData",
			`{"mission":{"objective":"recon"}}`,
			[]filePart{
				{field: "filePart6", name: "brief.pdf", content: "%PDF-1.7 brief"},
				{field: "securityImages", name: "one.png", content: pngHeader + "aaa"},
				{field: "securityImages", name: "two.png", content: pngHeader + "bbb"},
			})

		rec := httptest.NewRecorder()
		h.handler.Create(rec, authedRequest(http.MethodPost, "/api/v1/presentations/", body, contentType))

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Len(t, h.repo.created, 1)

		created := h.repo.created[0]
		require.True(t, created.IsDraft)
		require.Equal(t, "user-1", created.OwnerID)
		require.NotEmpty(t, created.FilePart6)
		require.Len(t, created.SecurityImages(), 2)
		require.Equal(t, 3, countFiles(t, h.store.RootAbs()))
	})

	t.Run("missing payload removes received files", func(t *testing.T) {
		h := newHarness(t)

		body, contentType := multipartBody(t, "presentationData", "",
			[]filePart{{field: "securityImages", name: "one.png", content: pngHeader + "aaa"}})

		rec := httptest.NewRecorder()
		h.handler.Create(rec, authedRequest(http.MethodPost, "/api/v1/presentations/", body, contentType))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, h.repo.created)
		require.Equal(t, 0, countFiles(t, h.store.RootAbs()))
	})

	t.Run("rejects more than ten security images", func(t *testing.T) {
		h := newHarness(t)

		files := make([]filePart, 0, model.MaxSecurityImages+1)
		for i := 0; i <= model.MaxSecurityImages; i++ {
			files = append(files, filePart{
				field:   "securityImages",
				name:    fmt.Sprintf("img-%d.png", i),
				content: pngHeader + "data",
			})
		}
		body, contentType := multipartBody(t, "presentationData", "{}", files)

		rec := httptest.NewRecorder()
		h.handler.Create(rec, authedRequest(http.MethodPost, "/api/v1/presentations/", body, contentType))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, h.repo.created)
		require.Equal(t, 0, countFiles(t, h.store.RootAbs()))
	})

	t.Run("duplicate slot uploads keep the first file", func(t *testing.T) {
		h := newHarness(t)

		body, contentType := multipartBody(t, "presentationData", "{}",
			[]filePart{
				{field: "filePart6", name: "first.pdf", content: "%PDF-1.7 first"},
				{field: "filePart6", name: "second.pdf", content: "%PDF-1.7 second"},
			})

		rec := httptest.NewRecorder()
		h.handler.Create(rec, authedRequest(http.MethodPost, "/api/v1/presentations/", body, contentType))

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Contains(t, h.repo.created[0].FilePart6, "first.pdf")
		require.Equal(t, 1, countFiles(t, h.store.RootAbs()))
	})

	t.Run("non-multipart body is rejected", func(t *testing.T) {
		h := newHarness(t)

		rec := httptest.NewRecorder()
		h.handler.Create(rec, authedRequest(http.MethodPost, "/api/v1/presentations/",
			bytes.NewBufferString(`{"mission":{}}`), "application/json"))

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPresentationUpdateHandler(t *testing.T) {
	t.Parallel()

	existing := model.Presentation{ID: "pres-1", OwnerID: "user-1", IsDraft: true}

	t.Run("file-only update succeeds", func(t *testing.T) {
		h := newHarness(t)

		body, contentType := multipartBody(t, "updateData", "",
			[]filePart{{field: "filePart7", name: "map.pdf", content: "%PDF-1.7 map"}})

		req := authedRequest(http.MethodPut, "/api/v1/presentations/pres-1", body, contentType)
		req = req.WithContext(middleware.WithPresentation(req.Context(), existing))

		rec := httptest.NewRecorder()
		h.handler.Update(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, h.repo.updated, 1)
		require.NotEmpty(t, h.repo.updated[0].FilePart7)
	})

	t.Run("invalid payload removes received files", func(t *testing.T) {
		h := newHarness(t)

		body, contentType := multipartBody(t, "updateData", "not json",
			[]filePart{{field: "filePart7", name: "map.pdf", content: "%PDF-1.7 map"}})

		req := authedRequest(http.MethodPut, "/api/v1/presentations/pres-1", body, contentType)
		req = req.WithContext(middleware.WithPresentation(req.Context(), existing))

		rec := httptest.NewRecorder()
		h.handler.Update(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, h.repo.updated)
		require.Equal(t, 0, countFiles(t, h.store.RootAbs()))
	})

	t.Run("scalar section values replace the stored section", func(t *testing.T) {
		h := newHarness(t)

		pres := existing
		pres.Mission = map[string]any{"objective": "recon"}

		body, contentType := multipartBody(t, "updateData", `{"mission":"patrol"}`, nil)

		req := authedRequest(http.MethodPut, "/api/v1/presentations/pres-1", body, contentType)
		req = req.WithContext(middleware.WithPresentation(req.Context(), pres))

		rec := httptest.NewRecorder()
		h.handler.Update(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, h.repo.updated, 1)
		require.Equal(t, "patrol", h.repo.updated[0].Mission)
	})

	t.Run("empty update is rejected", func(t *testing.T) {
		h := newHarness(t)

		body, contentType := multipartBody(t, "updateData", "{}", nil)

		req := authedRequest(http.MethodPut, "/api/v1/presentations/pres-1", body, contentType)
		req = req.WithContext(middleware.WithPresentation(req.Context(), existing))

		rec := httptest.NewRecorder()
		h.handler.Update(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, h.repo.updated)
	})
}

func TestPresentationGetHandler(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	pres := model.Presentation{ID: "pres-1", OwnerID: "user-1", FilePart6: "user-1/pdfs/1-a.pdf"}
	req := authedRequest(http.MethodGet, "/api/v1/presentations/pres-1", nil, "")
	req = req.WithContext(middleware.WithPresentation(req.Context(), pres))

	rec := httptest.NewRecorder()
	h.handler.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "private, max-age=300", rec.Header().Get("Cache-Control"))

	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)

	data, err := json.Marshal(body.Data)
	require.NoError(t, err)

	var detail model.Presentation
	require.NoError(t, json.Unmarshal(data, &detail))
	require.Equal(t, "http://localhost:8080/uploads/user-1/pdfs/1-a.pdf", detail.FilePart6)
	require.Equal(t, "alice", detail.Owner.Username)
}
