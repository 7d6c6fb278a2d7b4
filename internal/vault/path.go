// Package vault implements C1 (path & frontmatter validation) and C2 (the
// vault store) from spec §4.1/§4.2: path-sanitised, frontmatter-aware
// filesystem persistence with title derivation and optimistic concurrency.
package vault

import (
	"path"
	"strings"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

const maxPathLen = 256

const reservedPathChars = `<>:"|?*`

// ValidatePath enforces the wire+on-disk path format from spec §3/§6:
// relative, forward-slash separated, .md-suffixed, <=256 chars, no "..",
// no backslash, no leading "/", no reserved characters.
func ValidatePath(p string) error {
	if p == "" {
		return apperr.Validation("path_invalid: path is empty")
	}
	if len(p) > maxPathLen {
		return apperr.Validation("path_invalid: path exceeds 256 characters")
	}
	if !strings.HasSuffix(p, ".md") {
		return apperr.Validation("path_invalid: path must end in .md")
	}
	if strings.Contains(p, "\\") {
		return apperr.Validation("path_invalid: path must not contain a backslash")
	}
	if strings.HasPrefix(p, "/") {
		return apperr.Validation("path_invalid: path must not be absolute")
	}
	if strings.Contains(p, "..") {
		return apperr.Validation("path_invalid: path must not contain ..")
	}
	if strings.ContainsAny(p, reservedPathChars) {
		return apperr.Validation("path_invalid: path contains a reserved character")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return apperr.Validation("path_invalid: path contains an empty segment")
		}
	}
	return nil
}

// ValidateFolder enforces the folder-argument rules from spec §4.2: no ".."
// and no backslash. Empty string means vault root.
func ValidateFolder(folder string) error {
	if folder == "" {
		return nil
	}
	if strings.Contains(folder, "\\") {
		return apperr.Validation("path_invalid: folder must not contain a backslash")
	}
	if strings.Contains(folder, "..") {
		return apperr.Validation("path_invalid: folder must not contain ..")
	}
	return nil
}

// CleanJoin resolves p against root and verifies the result stays inside
// root, failing path_escape otherwise. The check is lexical (path.Clean
// and a prefix test); symlinks inside the vault are not resolved, so a
// symlink pointing outside root is not detected.
func CleanJoin(root, p string) (string, error) {
	clean := path.Clean("/" + p)[1:] // normalise without letting ".." climb past root
	if clean == "" || clean == "." {
		return "", apperr.Validation("path_invalid: empty path after normalisation")
	}
	full := path.Join(root, clean)
	if full != root && !strings.HasPrefix(full, root+"/") {
		return "", apperr.New(apperr.KindValidation, "path_escape: path escapes tenant root")
	}
	return full, nil
}
