package model

import "time"

// FileSlots are the fixed single-file attachment fields of a presentation,
// in multipart field order.
var FileSlots = []string{"filePart6", "filePart7", "filePart8", "filePart9", "filePart10"}

// SectionFields are the updatable structured fields. Object values sent in an
// update are shallow-merged into the stored section.
var SectionFields = []string{"mubdee", "typeSection", "mission", "readiness", "conclusion", "securityOutput"}

// MaxSecurityImages bounds the securityImages multipart field per request.
const MaxSecurityImages = 10

// Presentation is the central resource: a structured briefing report with
// nested free-form sections and server-local attachment paths. The owner is
// set at creation and never changes.
type Presentation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner,omitempty"`
	Owner     *OwnerRef `json:"ownerInfo,omitempty"`
	IsDraft   bool      `json:"isDraft"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Section values mirror the stored JSON: objects for normal documents,
	// but updates may overwrite a section with a scalar or null and that is
	// preserved as written.
	Mubdee         any `json:"mubdee,omitempty"`
	TypeSection    any `json:"typeSection,omitempty"`
	Mission        any `json:"mission,omitempty"`
	Readiness      any `json:"readiness,omitempty"`
	Conclusion     any `json:"conclusion,omitempty"`
	SecurityOutput any `json:"securityOutput,omitempty"`

	FilePart6  string `json:"filePart6,omitempty"`
	FilePart7  string `json:"filePart7,omitempty"`
	FilePart8  string `json:"filePart8,omitempty"`
	FilePart9  string `json:"filePart9,omitempty"`
	FilePart10 string `json:"filePart10,omitempty"`
}

func (p *Presentation) Section(name string) any {
	switch name {
	case "mubdee":
		return p.Mubdee
	case "typeSection":
		return p.TypeSection
	case "mission":
		return p.Mission
	case "readiness":
		return p.Readiness
	case "conclusion":
		return p.Conclusion
	case "securityOutput":
		return p.SecurityOutput
	default:
		return nil
	}
}

func (p *Presentation) SetSection(name string, value any) {
	switch name {
	case "mubdee":
		p.Mubdee = value
	case "typeSection":
		p.TypeSection = value
	case "mission":
		p.Mission = value
	case "readiness":
		p.Readiness = value
	case "conclusion":
		p.Conclusion = value
	case "securityOutput":
		p.SecurityOutput = value
	}
}

func (p *Presentation) FileSlot(name string) string {
	switch name {
	case "filePart6":
		return p.FilePart6
	case "filePart7":
		return p.FilePart7
	case "filePart8":
		return p.FilePart8
	case "filePart9":
		return p.FilePart9
	case "filePart10":
		return p.FilePart10
	default:
		return ""
	}
}

func (p *Presentation) SetFileSlot(name string, path string) {
	switch name {
	case "filePart6":
		p.FilePart6 = path
	case "filePart7":
		p.FilePart7 = path
	case "filePart8":
		p.FilePart8 = path
	case "filePart9":
		p.FilePart9 = path
	case "filePart10":
		p.FilePart10 = path
	}
}

// SecurityImages returns the stored image paths under securityOutput.images.
func (p *Presentation) SecurityImages() []string {
	section, ok := p.SecurityOutput.(map[string]any)
	if !ok {
		return nil
	}

	raw, ok := section["images"].([]any)
	if !ok {
		// Paths set by this process are stored as []string already.
		if typed, ok := section["images"].([]string); ok {
			return typed
		}
		return nil
	}

	images := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			images = append(images, s)
		}
	}
	return images
}

func (p *Presentation) SetSecurityImages(paths []string) {
	section, ok := p.SecurityOutput.(map[string]any)
	if !ok {
		section = map[string]any{}
		p.SecurityOutput = section
	}
	section["images"] = paths
}

// PresentationSummary is the listing projection: full documents are not
// needed to render the index page.
type PresentationSummary struct {
	ID        string    `json:"id"`
	IsDraft   bool      `json:"isDraft"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Link      string    `json:"link"`
}

type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type PresentationList struct {
	TotalPresentations int                   `json:"totalPresentations"`
	DraftCount         int                   `json:"draftCount"`
	PublishedCount     int                   `json:"publishedCount"`
	Pagination         Pagination            `json:"pagination"`
	Presentations      []PresentationSummary `json:"presentations"`
}

// ListQuery carries the sanitized listing parameters down to the store.
type ListQuery struct {
	OwnerID   string
	IsDraft   *bool
	Page      int
	Limit     int
	SortField string
	Ascending bool
}

// StoredFile describes an upload after it has been written under the upload
// root.
type StoredFile struct {
	RelPath  string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// UploadSet collects the files received with a single create/update request,
// keyed the way the multipart form names them.
type UploadSet struct {
	Slots          map[string]StoredFile
	SecurityImages []StoredFile
}

func NewUploadSet() *UploadSet {
	return &UploadSet{Slots: map[string]StoredFile{}}
}

func (u *UploadSet) Empty() bool {
	return u == nil || (len(u.Slots) == 0 && len(u.SecurityImages) == 0)
}

// All returns every stored file in the set, for cleanup after a failed
// request.
func (u *UploadSet) All() []StoredFile {
	if u == nil {
		return nil
	}

	files := make([]StoredFile, 0, len(u.Slots)+len(u.SecurityImages))
	for _, f := range u.Slots {
		files = append(files, f)
	}
	files = append(files, u.SecurityImages...)
	return files
}
