// Package artifacts stores the text outputs of workflow stages as immutable,
// versioned records keyed by session scope and logical name.
package artifacts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logical names of the artifacts produced by the default workflow.
const (
	Extraction    = "extraction"
	Explanation   = "explanation"
	Abnormalities = "abnormalities"
	Doctors       = "doctors"
)

// Artifact is one immutable version of a named stage output.
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	Scope     uuid.UUID `json:"scope"`
	Name      string    `json:"name"`
	Stage     string    `json:"stage"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Key identifies the version within its scope, e.g. "extraction@v2".
func (a Artifact) Key() string {
	return fmt.Sprintf("%s@v%d", a.Name, a.Version)
}

// BlobKey is the storage key mirroring this version's content.
func (a Artifact) BlobKey() string {
	return BlobKey(a.Scope, a.Name, a.Version)
}

// BlobKey builds sessions/{scope}/{name}/v{version}.md.
func BlobKey(scope uuid.UUID, name string, version int) string {
	return fmt.Sprintf("sessions/%s/%s/v%d.md", scope, name, version)
}

// PutCommand writes a new version of Name within Scope.
type PutCommand struct {
	Scope   uuid.UUID
	Name    string
	Stage   string
	Content string
}

func (c PutCommand) validate() error {
	if c.Scope == uuid.Nil {
		return fmt.Errorf("%w: scope required", ErrInvalid)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	return nil
}
