package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// Note mirrors the entity described in spec §3.
type Note struct {
	Path      string
	Title     string
	Metadata  Metadata
	Body      string
	Created   time.Time
	Updated   time.Time
	SizeBytes int64
}

// ListedNote is the summary shape returned by List (spec §4.2).
type ListedNote struct {
	Path         string
	Title        string
	LastModified time.Time
}

// Store owns read/write/delete/move/list of Markdown notes under
// <base>/<tenant>/... Grounded on the teacher's os.WriteFile-to-temp +
// os.Rename idiom used throughout internal/indexer for atomic writes;
// the teacher has no equivalent of an owned multi-tenant write path since
// it only indexes an externally managed vault.
type Store struct {
	base string
}

func New(base string) *Store {
	return &Store{base: filepath.Clean(base)}
}

func (s *Store) tenantRoot(tenant string) string {
	return filepath.ToSlash(filepath.Join(s.base, tenant))
}

// Initialise idempotently creates <base>/<tenant>/.
func (s *Store) Initialise(tenant string) error {
	root := s.tenantRoot(tenant)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return apperr.Internal("failed to initialise vault directory", err)
	}
	return nil
}

func (s *Store) resolve(tenant, p string) (string, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}
	root := s.tenantRoot(tenant)
	full, err := CleanJoin(root, p)
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(full), nil
}

// Read returns a Note's metadata, body, size, and mtime.
func (s *Store) Read(tenant, p string) (*Note, error) {
	full, err := s.resolve(tenant, p)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("note")
		}
		return nil, apperr.Internal("failed to read note", err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, apperr.Internal("failed to stat note", err)
	}
	meta, body, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return &Note{
		Path:      p,
		Title:     DeriveTitle(p, meta, body),
		Metadata:  meta,
		Body:      body,
		Updated:   info.ModTime().UTC(),
		Created:   info.ModTime().UTC(),
		SizeBytes: info.Size(),
	}, nil
}

// Write creates directories as needed, preserves an existing note's
// created timestamp, stamps updated=now, derives the title, serialises,
// and writes atomically (write-to-temp + rename within the same
// directory), per spec §4.2.
func (s *Store) Write(tenant, p, body string, meta Metadata, title string) (*Note, error) {
	if err := ValidateBody(body); err != nil {
		return nil, err
	}
	full, err := s.resolve(tenant, p)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = Metadata{}
	}
	if _, reserved := meta["version"]; reserved {
		return nil, apperr.New(apperr.KindValidation, "metadata_reserved_key: \"version\" must not appear in frontmatter")
	}
	if title != "" {
		meta = cloneMeta(meta)
		meta["title"] = title
	}

	now := time.Now().UTC().Truncate(time.Second) // frontmatter stores RFC3339 seconds
	created := now
	if existing, statErr := os.Stat(full); statErr == nil {
		created = existing.ModTime().UTC()
		if existingRaw, readErr := os.ReadFile(full); readErr == nil {
			if existingMeta, _, parseErr := Parse(existingRaw); parseErr == nil {
				if c, ok := existingMeta["created"]; ok {
					if cs, ok := c.(string); ok {
						if parsed, perr := time.Parse(time.RFC3339, cs); perr == nil {
							created = parsed
						}
					}
				}
			}
		}
	}

	meta = cloneMeta(meta)
	meta["created"] = created.Format(time.RFC3339)
	meta["updated"] = now.Format(time.RFC3339)

	derivedTitle := DeriveTitle(p, meta, body)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, apperr.Internal("failed to create note directory", err)
	}

	payload, err := Serialise(meta, body)
	if err != nil {
		return nil, err
	}

	if err := atomicWrite(full, payload); err != nil {
		return nil, apperr.Internal("failed to write note", err)
	}

	return &Note{
		Path:      p,
		Title:     derivedTitle,
		Metadata:  meta,
		Body:      body,
		Created:   created,
		Updated:   now,
		SizeBytes: int64(len(payload)),
	}, nil
}

func cloneMeta(m Metadata) Metadata {
	out := make(Metadata, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func atomicWrite(full string, payload []byte) error {
	tmp := full + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, full)
}

// Delete unlinks a note; fails not_found if absent.
func (s *Store) Delete(tenant, p string) error {
	full, err := s.resolve(tenant, p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return apperr.NotFound("note")
		}
		return apperr.Internal("failed to delete note", err)
	}
	return nil
}

// Move renames within the tenant root; fails exists/not_found/path_invalid.
func (s *Store) Move(tenant, oldPath, newPath string) (*Note, error) {
	oldFull, err := s.resolve(tenant, oldPath)
	if err != nil {
		return nil, err
	}
	if err := ValidatePath(newPath); err != nil {
		return nil, err
	}
	newFull, err := s.resolve(tenant, newPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(oldFull); err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("note")
		}
		return nil, apperr.Internal("failed to stat source note", err)
	}
	if _, err := os.Stat(newFull); err == nil {
		return nil, apperr.New(apperr.KindVersionConflict, "exists: target path already exists")
	}
	if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
		return nil, apperr.Internal("failed to create target directory", err)
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		return nil, apperr.Internal("failed to move note", err)
	}
	return s.Read(tenant, newPath)
}

// List walks .md files under folder (default = root) and returns
// path/title/last_modified sorted by lowercase path.
func (s *Store) List(tenant, folder string) ([]ListedNote, error) {
	if err := ValidateFolder(folder); err != nil {
		return nil, err
	}
	root := s.tenantRoot(tenant)
	start := root
	if folder != "" {
		joined, err := CleanJoin(root, strings.TrimSuffix(folder, "/")+"/.md")
		if err != nil {
			return nil, err
		}
		start = filepath.Dir(joined)
	}
	start = filepath.FromSlash(start)

	var out []ListedNote
	err := filepath.Walk(start, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(filepath.FromSlash(root), p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		raw, readErr := os.ReadFile(p)
		title := strings.TrimSuffix(filepath.Base(rel), ".md")
		if readErr == nil {
			if meta, body, parseErr := Parse(raw); parseErr == nil {
				title = DeriveTitle(rel, meta, body)
			}
		}
		out = append(out, ListedNote{Path: rel, Title: title, LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, apperr.Internal("failed to list vault", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Path) < strings.ToLower(out[j].Path)
	})
	return out, nil
}
