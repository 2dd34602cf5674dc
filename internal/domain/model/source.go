package model

// SourceSpec describes where application source comes from.
type SourceSpec struct {
	// URL is a git remote, or an http(s) URL / local path to a .tar.gz/.tgz/.zip archive.
	URL    string
	Branch string
	Root   string
}

// WorkingTree is a checked-out application source tree.
type WorkingTree struct {
	Root   string
	Branch string
	// IsGit is false for trees extracted from an archive.
	IsGit bool
	Ref   string
	// Source is the archive an extracted tree is refreshed from.
	Source string
}

// SyncResult reports what a source update did to the working tree. StashRef
// names the autostash commit and is kept even when Restored is false.
type SyncResult struct {
	PreviousRef    string   `json:"previous_ref"`
	NewRef         string   `json:"new_ref"`
	Stashed        bool     `json:"stashed"`
	Restored       bool     `json:"restored"`
	Diverged       bool     `json:"diverged"`
	TrustAdded     bool     `json:"trust_added"`
	StashRef       string   `json:"stash_ref,omitempty"`
	PreservedPaths []string `json:"preserved_paths,omitempty"`
}
