package models

// DiffFile is a single file changed by a pull request
type DiffFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch,omitempty"`
}

// HasPatch reports whether the file carries textual patch content.
// Binary files and mode-only changes have none.
func (f DiffFile) HasPatch() bool {
	return f.Patch != ""
}

// PRDiff is the file-level diff of a pull request
type PRDiff struct {
	Files          []DiffFile `json:"files"`
	TotalAdditions int        `json:"total_additions"`
	TotalDeletions int        `json:"total_deletions"`
	TotalChanges   int        `json:"total_changes"`
}

// ReviewableFiles returns the files that have patch content, in order
func (d *PRDiff) ReviewableFiles() []DiffFile {
	var files []DiffFile
	for _, f := range d.Files {
		if f.HasPatch() {
			files = append(files, f)
		}
	}
	return files
}
