package commits

import "time"

// Commit is a raw ingested commit for one repository and year.
type Commit struct {
	SHA         string       `json:"sha"`
	Org         string       `json:"org"`
	Repo        string       `json:"repo"`
	AuthorLogin string       `json:"authorLogin"`
	Message     string       `json:"message"`
	CommittedAt time.Time    `json:"committedAt"`
	Additions   int          `json:"additions"`
	Deletions   int          `json:"deletions"`
	Files       []CommitFile `json:"files,omitempty"`
}

// CommitFile is a per-file change within a commit. Patch holds a bounded
// diff excerpt captured at scan time; it may be empty for binary or
// oversized files.
type CommitFile struct {
	Path      string `json:"path"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}
