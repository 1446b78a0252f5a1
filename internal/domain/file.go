package domain

import "time"

// FileState is the authoritative, version-tracked copy of one session file.
type FileState struct {
	Path           string    `json:"path"`
	Content        string    `json:"content"`
	Version        int64     `json:"version"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
	ModifiedBy     string    `json:"modifiedBy"`
}
