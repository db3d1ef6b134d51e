package deploy

import (
	"fmt"
	"strings"
)

// defaultImageTag is applied at comparison time when a reference carries no
// explicit tag. Normalization happens here and nowhere else.
const defaultImageTag = "latest"

// ImageReference names a container image as repository plus optional tag.
// Equality is exact string match after Normalize.
type ImageReference struct {
	Repository string `json:"repository"`
	Tag        string `json:"tag,omitempty"`
}

// ParseImageReference splits an image string into repository and tag. A colon
// inside the last path segment separates the tag; a colon in an earlier
// segment belongs to a registry port and is left alone.
func ParseImageReference(s string) (ImageReference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ImageReference{}, fmt.Errorf("empty image reference")
	}

	repo, tag := s, ""
	if idx := strings.LastIndex(s, ":"); idx >= 0 && !strings.Contains(s[idx:], "/") {
		repo, tag = s[:idx], s[idx+1:]
	}
	if repo == "" {
		return ImageReference{}, fmt.Errorf("image reference %q has no repository", s)
	}
	if strings.Contains(s, ":") && tag == "" && repo != s {
		return ImageReference{}, fmt.Errorf("image reference %q has an empty tag", s)
	}
	return ImageReference{Repository: repo, Tag: tag}, nil
}

// Normalize applies the implicit default tag. The stored reference keeps the
// user's spelling; comparisons always go through Normalize.
func (r ImageReference) Normalize() ImageReference {
	if r.Tag == "" {
		r.Tag = defaultImageTag
	}
	return r
}

func (r ImageReference) String() string {
	if r.Tag == "" {
		return r.Repository
	}
	return r.Repository + ":" + r.Tag
}

// ImagesEqual compares two references after default-tag normalization.
func ImagesEqual(a, b ImageReference) bool {
	return a.Normalize() == b.Normalize()
}
