package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"presentation-api/internal/model"
	"presentation-api/internal/util"
	"presentation-api/pkg/apierror"
)

// ArchiveDir is the subtree of the upload root that holds superseded files.
// It is never served and never written to by intake.
const ArchiveDir = "archives"

// Store manages the upload tree:
//
//	<root>/<ownerID>/<category>/<unixms>-<name>   live uploads
//	<root>/archives/<ownerID>/<unixms>-<name>     archived replacements
type Store struct {
	rootAbs      string
	maxFileSize  int64
	allowedMIMEs []string
}

func New(root string, maxFileSize int64, allowedMIMEs []string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("upload root cannot be empty")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload root: %w", err)
	}

	if err := os.MkdirAll(rootAbs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}

	return &Store{rootAbs: rootAbs, maxFileSize: maxFileSize, allowedMIMEs: allowedMIMEs}, nil
}

func (s *Store) RootAbs() string {
	return s.rootAbs
}

// Resolve maps a stored relative path to an absolute one, rejecting anything
// that would escape the upload root. Stored paths are server-generated, but
// they round-trip through the database, so the containment check stays.
func (s *Store) Resolve(relPath string) (string, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(relPath), `\`, "/")
	if normalized == "" || strings.Contains(normalized, "\x00") {
		return "", apierror.New("BAD_REQUEST", "invalid file path", relPath, http.StatusBadRequest)
	}

	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", apierror.New("FORBIDDEN", "path traversal attempt detected", relPath, http.StatusForbidden)
		}
	}

	resolved := filepath.Join(s.rootAbs, filepath.FromSlash(strings.TrimPrefix(normalized, "/")))
	resolvedAbs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if resolvedAbs != s.rootAbs && !strings.HasPrefix(resolvedAbs, s.rootAbs+string(filepath.Separator)) {
		return "", apierror.New("FORBIDDEN", "resolved path is outside upload root", relPath, http.StatusForbidden)
	}

	return resolvedAbs, nil
}

// SaveUpload sniffs the content type, enforces the allow-list and the
// per-file size cap, and streams the upload to
// <ownerID>/<category>/<unixms>-<sanitized name>. The timestamp prefix keeps
// re-uploads of the same filename from colliding.
func (s *Store) SaveUpload(ownerID string, filename string, r io.Reader) (model.StoredFile, error) {
	name, err := util.SanitizeFilename(filename)
	if err != nil {
		return model.StoredFile{}, err
	}

	buffered := bufio.NewReader(r)
	mimeType, err := util.DetectMIME(buffered, name)
	if err != nil {
		return model.StoredFile{}, fmt.Errorf("detect content type: %w", err)
	}

	if !util.MIMEAllowed(mimeType, s.allowedMIMEs) {
		return model.StoredFile{}, apierror.New("BAD_REQUEST",
			"file type is not allowed", mimeType, http.StatusBadRequest)
	}

	category := util.MIMECategory(mimeType)

	var (
		relPath string
		destAbs string
		dest    *os.File
	)
	// Two uploads of the same filename in the same millisecond would collide;
	// retry with a counter suffix until the exclusive create succeeds.
	for attempt := 0; ; attempt++ {
		prefix := fmt.Sprintf("%d", time.Now().UnixMilli())
		if attempt > 0 {
			prefix = fmt.Sprintf("%s-%d", prefix, attempt)
		}
		relPath = path.Join(ownerID, category, prefix+"-"+name)

		destAbs, err = s.Resolve(relPath)
		if err != nil {
			return model.StoredFile{}, err
		}

		if err := os.MkdirAll(filepath.Dir(destAbs), 0o755); err != nil {
			return model.StoredFile{}, fmt.Errorf("create upload directory: %w", err)
		}

		dest, err = os.OpenFile(destAbs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) || attempt >= 5 {
			return model.StoredFile{}, fmt.Errorf("open upload destination: %w", err)
		}
	}

	written, err := io.Copy(dest, io.LimitReader(buffered, s.maxFileSize+1))
	closeErr := dest.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(destAbs)
		return model.StoredFile{}, fmt.Errorf("write upload: %w", err)
	}

	if written > s.maxFileSize {
		_ = os.Remove(destAbs)
		return model.StoredFile{}, apierror.New("PAYLOAD_TOO_LARGE",
			"file exceeds the maximum upload size", name, http.StatusRequestEntityTooLarge)
	}

	return model.StoredFile{RelPath: relPath, Name: name, Size: written, MimeType: mimeType}, nil
}

// Archive moves a previously stored file into the owner's archive directory,
// preserving its basename. A missing source is a no-op: the path may already
// have been archived by a concurrent request, or never written at all. The
// empty return path means nothing was archived.
func (s *Store) Archive(ownerID string, relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", nil
	}

	srcAbs, err := s.Resolve(relPath)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(srcAbs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat %q: %w", relPath, err)
	}

	archiveRel := path.Join(ArchiveDir, ownerID, path.Base(relPath))
	destAbs, err := s.Resolve(archiveRel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(destAbs), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	if err := os.Rename(srcAbs, destAbs); err != nil {
		// The source can vanish between the stat and the rename when two
		// requests archive the same path; the loser treats it as a no-op.
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("archive %q: %w", relPath, err)
	}

	return archiveRel, nil
}

// Remove deletes a stored file. Used by upload cleanup after failed requests.
func (s *Store) Remove(relPath string) error {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", relPath, err)
	}

	return nil
}

// Exists reports whether a stored relative path is present on disk.
func (s *Store) Exists(relPath string) bool {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return false
	}

	_, err = os.Stat(abs)
	return err == nil
}
