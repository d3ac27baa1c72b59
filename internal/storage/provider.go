// Package storage persists serialised documents under a
// (project, stage, document) key.
package storage

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ucdcanvas/internal/apperr"
)

// Key identifies one document.
type Key struct {
	ProjectID  string `json:"projectId"`
	StageID    string `json:"stageId"`
	DocumentID string `json:"documentId"`
}

// String returns the flat storage key, e.g. "document-p1-s2-d3".
func (k Key) String() string {
	return "document-" + k.ProjectID + "-" + k.StageID + "-" + k.DocumentID
}

// Validate checks that every part is present and is not a relative path
// element.
func (k Key) Validate() error {
	part := []validation.Rule{validation.Required, validation.NotIn(".", "..")}
	if err := validation.ValidateStruct(&k,
		validation.Field(&k.ProjectID, part...),
		validation.Field(&k.StageID, part...),
		validation.Field(&k.DocumentID, part...),
	); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidKey, err)
	}
	return nil
}

// Backend is a byte store for serialised documents. Get and Delete return
// an error wrapping apperr.ErrNotFound when the key is absent. List treats
// an empty projectID or stageID as a wildcard.
type Backend interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Put(ctx context.Context, key Key, data []byte) error
	Delete(ctx context.Context, key Key) error
	List(ctx context.Context, projectID, stageID string) ([]Key, error)
}

func notFound(k Key) error {
	return fmt.Errorf("%w: %s", apperr.ErrNotFound, k)
}

func matches(k Key, projectID, stageID string) bool {
	return (projectID == "" || k.ProjectID == projectID) &&
		(stageID == "" || k.StageID == stageID)
}
