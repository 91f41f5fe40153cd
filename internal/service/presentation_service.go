package service

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"presentation-api/internal/model"
	"presentation-api/internal/util"
	"presentation-api/pkg/apierror"
)

type presentationStore interface {
	Create(ctx context.Context, p model.Presentation) error
	Update(ctx context.Context, p model.Presentation) error
	List(ctx context.Context, q model.ListQuery) ([]model.PresentationSummary, int, int, error)
}

type fileStore interface {
	SaveUpload(ownerID string, filename string, r io.Reader) (model.StoredFile, error)
	Archive(ownerID string, relPath string) (string, error)
	Remove(relPath string) error
	Resolve(relPath string) (string, error)
}

type ownerLookup interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// apiSortFields maps the query-string sort names onto store columns.
var apiSortFields = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"isDraft":   "is_draft",
}

type PresentationService struct {
	repo          presentationStore
	files         fileStore
	users         ownerLookup
	baseURL       string
	thumbnailRoot string
}

func NewPresentationService(repo presentationStore, files fileStore, users ownerLookup, baseURL string, thumbnailRoot string) *PresentationService {
	return &PresentationService{
		repo:          repo,
		files:         files,
		users:         users,
		baseURL:       strings.TrimRight(baseURL, "/"),
		thumbnailRoot: thumbnailRoot,
	}
}

// SaveUpload stores one incoming multipart file for the owner. Called during
// request intake, before the structured payload has been validated; callers
// must run CleanupUploads if the request later fails.
func (s *PresentationService) SaveUpload(ownerID string, filename string, r io.Reader) (model.StoredFile, error) {
	return s.files.SaveUpload(ownerID, filename, r)
}

// CleanupUploads deletes files received with a failed request so repeated
// failures do not accumulate orphans. Best-effort: failures are logged, never
// escalated past this point.
func (s *PresentationService) CleanupUploads(uploads *model.UploadSet) {
	for _, f := range uploads.All() {
		if err := s.files.Remove(f.RelPath); err != nil {
			slog.Warn("failed to delete uploaded file", "path", f.RelPath, "error", err)
		}
	}
}

// presentationPayload is the structured text field of a create request.
// Attachment paths never come from the payload; they are assigned from the
// uploaded files.
type presentationPayload struct {
	Mubdee         any `json:"mubdee"`
	TypeSection    any `json:"typeSection"`
	Mission        any `json:"mission"`
	Readiness      any `json:"readiness"`
	Conclusion     any `json:"conclusion"`
	SecurityOutput any `json:"securityOutput"`
}

func (s *PresentationService) Create(ctx context.Context, ownerID string, payloadText string, uploads *model.UploadSet) (model.Presentation, error) {
	var payload presentationPayload
	if err := json.Unmarshal([]byte(payloadText), &payload); err != nil {
		s.CleanupUploads(uploads)
		return model.Presentation{}, apierror.New("BAD_REQUEST",
			"invalid presentation data", "presentationData must be a JSON object", http.StatusBadRequest)
	}

	now := time.Now().UTC()
	pres := model.Presentation{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		IsDraft:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
		Mubdee:         payload.Mubdee,
		TypeSection:    payload.TypeSection,
		Mission:        payload.Mission,
		Readiness:      payload.Readiness,
		Conclusion:     payload.Conclusion,
		SecurityOutput: payload.SecurityOutput,
	}

	for slot, file := range uploads.Slots {
		pres.SetFileSlot(slot, file.RelPath)
	}

	// The image list always reflects what was uploaded with this request,
	// even when that is nothing; stored paths are never client-supplied.
	imagePaths := make([]string, 0, len(uploads.SecurityImages))
	for _, img := range uploads.SecurityImages {
		imagePaths = append(imagePaths, img.RelPath)
	}
	pres.SetSecurityImages(imagePaths)

	if err := s.repo.Create(ctx, pres); err != nil {
		s.CleanupUploads(uploads)
		return model.Presentation{}, err
	}

	return pres, nil
}

func (s *PresentationService) Update(ctx context.Context, pres model.Presentation, payloadText string, uploads *model.UploadSet) (model.Presentation, error) {
	var update map[string]any
	if err := json.Unmarshal([]byte(payloadText), &update); err != nil {
		s.CleanupUploads(uploads)
		return model.Presentation{}, apierror.New("BAD_REQUEST",
			"invalid update data", "updateData must be a JSON object", http.StatusBadRequest)
	}

	if len(update) == 0 && uploads.Empty() {
		return model.Presentation{}, apierror.New("BAD_REQUEST",
			"nothing to update", "", http.StatusBadRequest)
	}

	if v, ok := update["isDraft"].(bool); ok {
		pres.IsDraft = v
	}

	s.mergeSections(&pres, update)

	// Replaced fixed slots: the superseded file is archived before the new
	// path lands on the document.
	for slot, file := range uploads.Slots {
		if old := pres.FileSlot(slot); old != "" {
			if _, err := s.files.Archive(pres.OwnerID, old); err != nil {
				s.CleanupUploads(uploads)
				return model.Presentation{}, err
			}
		}
		pres.SetFileSlot(slot, file.RelPath)
	}

	// New security images replace the list wholesale. All previous images
	// are archived concurrently and the archival is joined before the new
	// paths are set and the document is saved.
	if len(uploads.SecurityImages) > 0 {
		if err := s.archiveAll(pres.OwnerID, pres.SecurityImages()); err != nil {
			s.CleanupUploads(uploads)
			return model.Presentation{}, err
		}

		imagePaths := make([]string, 0, len(uploads.SecurityImages))
		for _, img := range uploads.SecurityImages {
			imagePaths = append(imagePaths, img.RelPath)
		}
		pres.SetSecurityImages(imagePaths)
	}

	pres.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, pres); err != nil {
		s.CleanupUploads(uploads)
		return model.Presentation{}, err
	}

	return pres, nil
}

// mergeSections applies the allow-listed structured fields: object values are
// shallow-merged into the stored section so untouched nested keys survive,
// while scalars and null overwrite the section as sent. The image list is
// excluded from the merge; it only changes through uploads.
func (s *PresentationService) mergeSections(pres *model.Presentation, update map[string]any) {
	for _, field := range model.SectionFields {
		raw, present := update[field]
		if !present {
			continue
		}

		incoming, ok := raw.(map[string]any)
		if !ok {
			pres.SetSection(field, raw)
			continue
		}

		if field == "securityOutput" {
			delete(incoming, "images")
		}

		current, ok := pres.Section(field).(map[string]any)
		if !ok {
			current = map[string]any{}
		}
		for key, value := range incoming {
			current[key] = value
		}
		pres.SetSection(field, current)
	}
}

func (s *PresentationService) archiveAll(ownerID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(paths))
	for i, p := range paths {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			_, errs[i] = s.files.Archive(ownerID, p)
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Detail prepares a presentation for the client: the owner becomes a public
// projection, stored relative paths become absolute URLs, and readiness
// numbers are coerced defensively in case older documents stored them as
// strings.
func (s *PresentationService) Detail(ctx context.Context, pres model.Presentation) (model.Presentation, error) {
	owner, err := s.users.FindByID(ctx, pres.OwnerID)
	if err != nil {
		return model.Presentation{}, err
	}

	pres.Owner = &model.OwnerRef{ID: owner.ID, Username: owner.Username}
	pres.OwnerID = ""

	for _, slot := range model.FileSlots {
		if p := pres.FileSlot(slot); p != "" {
			pres.SetFileSlot(slot, s.fileURL(p))
		}
	}

	if images := pres.SecurityImages(); len(images) > 0 {
		urls := make([]string, len(images))
		for i, img := range images {
			urls[i] = s.fileURL(img)
		}
		pres.SetSecurityImages(urls)
	}

	coerceReadiness(pres.Readiness)

	return pres, nil
}

// ListOptions are the raw listing parameters after query-string parsing.
type ListOptions struct {
	IsDraft *bool
	Page    int
	Limit   int
	Sort    string
	Order   string
}

func (s *PresentationService) List(ctx context.Context, ownerID string, opts ListOptions) (model.PresentationList, error) {
	if opts.Limit > maxListLimit {
		return model.PresentationList{}, apierror.New("BAD_REQUEST",
			fmt.Sprintf("cannot request more than %d presentations at once", maxListLimit),
			"limit", http.StatusBadRequest)
	}
	if opts.Limit < 1 {
		opts.Limit = defaultListLimit
	}
	if opts.Page < 1 {
		opts.Page = 1
	}

	sortField, ok := apiSortFields[opts.Sort]
	if !ok {
		sortField = "created_at"
	}

	query := model.ListQuery{
		OwnerID:   ownerID,
		IsDraft:   opts.IsDraft,
		Page:      opts.Page,
		Limit:     opts.Limit,
		SortField: sortField,
		Ascending: strings.EqualFold(opts.Order, "asc"),
	}

	summaries, total, drafts, err := s.repo.List(ctx, query)
	if err != nil {
		return model.PresentationList{}, err
	}

	for i := range summaries {
		summaries[i].Link = fmt.Sprintf("%s/api/v1/presentations/%s", s.baseURL, summaries[i].ID)
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit

	return model.PresentationList{
		TotalPresentations: total,
		DraftCount:         drafts,
		PublishedCount:     total - drafts,
		Pagination: model.Pagination{
			CurrentPage: opts.Page,
			TotalPages:  totalPages,
			Limit:       opts.Limit,
			HasNextPage: opts.Page < totalPages,
			HasPrevPage: opts.Page > 1,
		},
		Presentations: summaries,
	}, nil
}

// Thumbnail renders (and caches) a JPEG thumbnail for one image attachment:
// either a fixed file slot or a security image addressed by index.
func (s *PresentationService) Thumbnail(pres model.Presentation, slot string, index int, size int) (string, error) {
	var relPath string
	switch {
	case slot == "securityImage":
		images := pres.SecurityImages()
		if index < 0 || index >= len(images) {
			return "", apierror.New("NOT_FOUND", "no image at this index",
				strconv.Itoa(index), http.StatusNotFound)
		}
		relPath = images[index]
	case pres.FileSlot(slot) != "":
		relPath = pres.FileSlot(slot)
	default:
		return "", apierror.New("NOT_FOUND", "no file attached to this slot", slot, http.StatusNotFound)
	}

	srcAbs, err := s.files.Resolve(relPath)
	if err != nil {
		return "", err
	}

	srcInfo, err := os.Stat(srcAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apierror.New("NOT_FOUND", "attached file is missing", relPath, http.StatusNotFound)
		}
		return "", err
	}

	// Only image attachments can be thumbnailed; PDFs and KML files live in
	// the same slots.
	src, err := os.Open(srcAbs)
	if err != nil {
		return "", err
	}
	mimeType, err := util.DetectMIME(bufio.NewReader(src), srcAbs)
	src.Close()
	if err != nil {
		return "", err
	}
	if !util.IsImageMIME(mimeType) {
		return "", apierror.New("UNSUPPORTED_TYPE", "attachment is not an image",
			mimeType, http.StatusUnsupportedMediaType)
	}

	if size < 32 {
		size = 32
	}
	if size > 1024 {
		size = 1024
	}

	thumbPath := filepath.Join(s.thumbnailRoot,
		fmt.Sprintf("%x-%d.jpg", sha1.Sum([]byte(relPath)), size))

	if thumbInfo, err := os.Stat(thumbPath); err == nil && !thumbInfo.ModTime().Before(srcInfo.ModTime()) {
		return thumbPath, nil
	}

	if err := util.GenerateThumbnail(srcAbs, thumbPath, size); err != nil {
		return "", err
	}

	return thumbPath, nil
}

func (s *PresentationService) fileURL(relPath string) string {
	return s.baseURL + "/uploads/" + strings.TrimPrefix(relPath, "/")
}

var humanResourceFields = []string{"officers", "personnel", "civilians", "contractors", "femalePersonnel"}

var equipmentListFields = []string{"weapons", "vehicles", "navalAssets", "electronicSystems"}

// coerceReadiness normalizes the numeric readiness sub-fields in place.
// Documents written by older clients stored counts as strings; the API
// contract is numbers.
func coerceReadiness(value any) {
	readiness, ok := value.(map[string]any)
	if !ok {
		return
	}

	if hr, ok := readiness["humanResources"].(map[string]any); ok {
		for _, field := range humanResourceFields {
			if n, ok := coerceInt(hr[field]); ok {
				hr[field] = n
			}
		}
	}

	for _, field := range equipmentListFields {
		entries, ok := readiness[field].([]any)
		if !ok {
			continue
		}
		for _, entry := range entries {
			record, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if n, ok := coerceInt(record["total"]); ok {
				record["total"] = n
			}
			if n, ok := coerceInt(record["outOfService"]); ok {
				record["outOfService"] = n
			}
		}
	}
}

func coerceInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
