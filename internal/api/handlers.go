package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/checksum"
	"github.com/starford/ucdcanvas/internal/documents"
	"github.com/starford/ucdcanvas/internal/editor"
	"github.com/starford/ucdcanvas/internal/index"
	"github.com/starford/ucdcanvas/internal/interaction"
	"github.com/starford/ucdcanvas/internal/render"
	"github.com/starford/ucdcanvas/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	sessions *editor.Manager
	docs     *documents.Store
	reg      *blocks.Registry
}

// NewHandler creates a new Handler.
func NewHandler(sessions *editor.Manager, docs *documents.Store) *Handler {
	return &Handler{sessions: sessions, docs: docs, reg: docs.Registry()}
}

func docKey(r *http.Request) storage.Key {
	return storage.Key{
		ProjectID:  chi.URLParam(r, "project"),
		StageID:    chi.URLParam(r, "stage"),
		DocumentID: chi.URLParam(r, "document"),
	}
}

// session opens the document named by the URL. On failure it writes the
// error response and returns nil.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *editor.Session {
	s, err := h.sessions.Open(r.Context(), docKey(r))
	if err != nil {
		writeAppError(w, r, err)
		return nil
	}
	return s
}

func documentResponse(s *editor.Session) DocumentResponse {
	var resp DocumentResponse
	s.View(func(c *interaction.Controller) {
		resp.Snapshot = c.Document().Snapshot()
		resp.Selection = c.Selection()
	})
	resp.Key = s.Key()
	resp.StorageID = s.Key().String()
	resp.Status = s.Status()
	return resp
}

func unknownNode(id string) error {
	return fmt.Errorf("%w: %s", apperr.ErrUnknownNode, id)
}

// ListTemplates handles GET /api/templates.
//
//	@Summary		List block templates in palette order
//	@Tags			templates
//	@Produce		json
//	@Success		200	{object}	TemplateListResponse
//	@Security		BearerAuth
//	@Router			/templates [get]
func (h *Handler) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	tpls := h.reg.Templates()
	out := make([]TemplateResponse, 0, len(tpls))
	for _, tpl := range tpls {
		out = append(out, TemplateResponse{Template: tpl, Fields: blocks.SchemaFor(tpl.Type).Fields})
	}
	writeJSON(w, http.StatusOK, TemplateListResponse{Templates: out})
}

// TemplateFields handles GET /api/templates/{type}/fields.
//
//	@Summary		Field schema of a block type
//	@Tags			templates
//	@Produce		json
//	@Param			type	path		string	true	"Block type"
//	@Success		200		{object}	blocks.Schema
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{type}/fields [get]
func (h *Handler) TemplateFields(w http.ResponseWriter, r *http.Request) {
	t := blocks.Type(chi.URLParam(r, "type"))
	if !h.reg.Has(t) {
		writeAppError(w, r, fmt.Errorf("%w: %s", apperr.ErrUnknownBlockType, t))
		return
	}
	writeJSON(w, http.StatusOK, blocks.SchemaFor(t))
}

// ListDocuments handles GET /api/projects/{project}/stages/{stage}/documents.
//
//	@Summary		List indexed documents of a stage
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.docs.List(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "stage"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: rows})
}

// GetDocument handles GET .../documents/{document}. A document that was
// never saved opens empty.
//
//	@Summary		Open a document
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentResponse
//	@Failure		400	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(s))
}

// PutDocument handles PUT .../documents/{document}: the graph is replaced
// by the posted snapshot and saved.
//
//	@Summary		Replace and save a document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		canvas.Snapshot	true	"Snapshot"
//	@Success		200		{object}	DocumentResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document} [put]
func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	var snap *canvas.Snapshot
	if !decodeJSON(w, r, &snap) {
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("snapshot body is required"))
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	if err := s.Replace(*snap); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.Save(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(s))
}

// DeleteDocument handles DELETE .../documents/{document}.
//
//	@Summary		Delete a document
//	@Tags			documents
//	@Success		204	"Document deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), docKey(r)); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Save handles POST .../save.
//
//	@Summary		Save the open document
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	editor.Status
//	@Failure		409	{object}	errResponse	"Save already in progress"
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	if err := s.Save(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// SaveStatus handles GET .../save.
//
//	@Summary		Save state of the document
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	editor.Status
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/save [get]
func (h *Handler) SaveStatus(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// AddNode handles POST .../nodes.
//
//	@Summary		Add a block
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddNodeRequest	true	"Block to add"
//	@Success		201		{object}	canvas.Node
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/nodes [post]
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}

	var node canvas.Node
	var err error
	switch {
	case req.Screen != nil:
		err = s.Do("drop", func(c *interaction.Controller) error {
			payload := interaction.PaletteDragStart(req.BlockType)
			n, ok := c.Drop(&payload, *req.Screen)
			if !ok {
				return fmt.Errorf("%w: %q", apperr.ErrUnknownBlockType, req.BlockType)
			}
			node = n
			return nil
		})
	case req.Position != nil:
		err = s.Do("add", func(c *interaction.Controller) error {
			var e error
			node, e = c.Document().AddNode(req.BlockType, *req.Position)
			return e
		})
	default:
		err = s.Do("quick_add", func(c *interaction.Controller) error {
			var e error
			node, e = c.QuickAdd(req.BlockType)
			return e
		})
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// NodeFields handles GET .../nodes/{node}/fields.
//
//	@Summary		Editor fields of a block
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	FieldsResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/nodes/{node}/fields [get]
func (h *Handler) NodeFields(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	id := chi.URLParam(r, "node")
	var n canvas.Node
	var ok bool
	s.View(func(c *interaction.Controller) { n, ok = c.Document().Node(id) })
	if !ok {
		writeAppError(w, r, unknownNode(id))
		return
	}
	writeJSON(w, http.StatusOK, FieldsResponse{
		NodeID:    n.ID,
		BlockType: n.BlockType,
		Fields:    blocks.Render(n.BlockType, n.Content),
	})
}

// PatchNodeContent handles PATCH .../nodes/{node}/content. The body is a
// partial content record; every key is validated against the block schema.
//
//	@Summary		Edit block fields
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	canvas.Node
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/nodes/{node}/content [patch]
func (h *Handler) PatchNodeContent(w http.ResponseWriter, r *http.Request) {
	var patch blocks.Content
	if !decodeJSON(w, r, &patch) {
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	id := chi.URLParam(r, "node")
	var node canvas.Node
	err := s.Do("edit", func(c *interaction.Controller) error {
		var e error
		node, e = c.Document().UpdateNodeContent(id, patch)
		return e
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// MoveNode handles PUT .../nodes/{node}/position.
//
//	@Summary		Move a block
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	canvas.Node
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/nodes/{node}/position [put]
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var pos canvas.Point
	if !decodeJSON(w, r, &pos) {
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	id := chi.URLParam(r, "node")
	var node canvas.Node
	err := do(s, "move", func(c *interaction.Controller) error {
		if n, ok := c.Document().Node(id); ok && n.Position == pos {
			node = n
			return errUnchanged
		}
		var e error
		node, e = c.Document().MoveNode(id, pos)
		return e
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// DeleteNode handles DELETE .../nodes/{node}. Edges touching the block are
// removed with it.
//
//	@Summary		Delete a block
//	@Tags			nodes
//	@Success		204	"Block deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/nodes/{node} [delete]
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	target := interaction.Target{Region: interaction.RegionNodeDelete, NodeID: chi.URLParam(r, "node")}
	err := s.Do("delete", func(c *interaction.Controller) error {
		_, e := c.Click(target)
		return e
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connect handles POST .../edges.
//
//	@Summary		Connect two blocks
//	@Tags			edges
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConnectRequest	true	"Source and target"
//	@Success		201		{object}	canvas.Edge
//	@Failure		400		{object}	errResponse	"Self-loop"
//	@Failure		404		{object}	errResponse	"Unknown node"
//	@Failure		409		{object}	errResponse	"Duplicate edge"
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/edges [post]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	var edge canvas.Edge
	err := s.Do("connect", func(c *interaction.Controller) error {
		var e error
		edge, e = c.Document().Connect(req.Source, req.Target)
		return e
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

// Disconnect handles DELETE .../edges/{edge}.
//
//	@Summary		Remove a connection
//	@Tags			edges
//	@Success		204	"Edge removed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/edges/{edge} [delete]
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	id := chi.URLParam(r, "edge")
	err := s.Do("disconnect", func(c *interaction.Controller) error {
		if !c.Document().Disconnect(id) {
			return fmt.Errorf("%w: edge %s", apperr.ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetViewport handles PUT .../viewport. Zoom is clamped to the allowed
// range.
//
//	@Summary		Set the viewport
//	@Tags			viewport
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	canvas.Viewport
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/viewport [put]
func (h *Handler) SetViewport(w http.ResponseWriter, r *http.Request) {
	var vp canvas.Viewport
	if !decodeJSON(w, r, &vp) {
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	out, err := viewportGesture(s, "viewport", func(c *interaction.Controller) {
		c.Document().SetViewport(vp)
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Zoom handles POST .../viewport/zoom.
//
//	@Summary		Zoom one step in or out around an anchor
//	@Tags			viewport
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ZoomRequest	true	"Direction and anchor"
//	@Success		200		{object}	canvas.Viewport
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/viewport/zoom [post]
func (h *Handler) Zoom(w http.ResponseWriter, r *http.Request) {
	var req ZoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Direction != "in" && req.Direction != "out" {
		writeJSON(w, http.StatusBadRequest, errorBody(`direction must be "in" or "out"`))
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	out, err := zoomStep(s, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ExportPNG handles GET .../export.png.
//
//	@Summary		Render the document as PNG
//	@Tags			documents
//	@Produce		png
//	@Success		200	{file}		binary
//	@Success		304	"Not modified"
//	@Failure		422	{object}	errResponse	"Nothing to export"
//	@Security		BearerAuth
//	@Router			/projects/{project}/stages/{stage}/documents/{document}/export.png [get]
func (h *Handler) ExportPNG(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var buf bytes.Buffer
	if err := render.PNG(&buf, s.Snapshot(), h.reg); err != nil {
		writeAppError(w, r, err)
		return
	}
	etag := checksum.ETag(buf.Bytes())
	w.Header().Set("ETag", etag)
	if checksum.Match(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across block text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.docs.Search(q, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
