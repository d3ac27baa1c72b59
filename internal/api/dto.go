package api

import (
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/editor"
	"github.com/starford/ucdcanvas/internal/index"
	"github.com/starford/ucdcanvas/internal/storage"
)

// TemplateResponse is one palette entry with its field schema.
type TemplateResponse struct {
	blocks.Template
	Fields []blocks.Field `json:"fields" validate:"required"`
}

// TemplateListResponse wraps the palette.
type TemplateListResponse struct {
	Templates []TemplateResponse `json:"templates" validate:"required"`
}

// DocumentResponse is an open document: its graph, selection and save state.
type DocumentResponse struct {
	Key       storage.Key     `json:"key" validate:"required"`
	StorageID string          `json:"storageId" example:"document-p1-s1-d1" validate:"required"`
	Snapshot  canvas.Snapshot `json:"snapshot" validate:"required"`
	Selection string          `json:"selection,omitempty"`
	Status    editor.Status   `json:"status" validate:"required"`
}

// DocumentListResponse wraps an index listing.
type DocumentListResponse struct {
	Documents []index.DocumentRow `json:"documents" validate:"required"`
}

// AddNodeRequest places a block. Screen positions are converted through
// the viewport as a palette drop; an explicit canvas position is used as
// is; with neither the block goes to the quick-add position.
type AddNodeRequest struct {
	BlockType blocks.Type   `json:"blockType" example:"USER_STORY" validate:"required"`
	Screen    *canvas.Point `json:"screen,omitempty"`
	Position  *canvas.Point `json:"position,omitempty"`
}

// FieldsResponse is the editor view of one node.
type FieldsResponse struct {
	NodeID    string                 `json:"nodeId" validate:"required"`
	BlockType blocks.Type            `json:"blockType" validate:"required"`
	Fields    []blocks.RenderedField `json:"fields" validate:"required"`
}

// ConnectRequest is the body of POST .../edges.
type ConnectRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// ZoomRequest is the body of POST .../viewport/zoom.
type ZoomRequest struct {
	Direction string       `json:"direction" example:"in" validate:"required"`
	Anchor    canvas.Point `json:"anchor"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}
