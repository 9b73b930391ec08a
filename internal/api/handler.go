package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/internal/export"
	"github.com/odpi/egeria-sub244/internal/ffdc"
	"github.com/odpi/egeria-sub244/internal/ingestion"
	"github.com/odpi/egeria-sub244/internal/logging"
	"github.com/odpi/egeria-sub244/internal/middleware"
	"github.com/odpi/egeria-sub244/internal/service"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 20

type Handler struct {
	service  *service.SearchService
	importer *ingestion.Service
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ffdc.ToResponse(err)
	if resp.RelatedHTTPCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Errorw("Request failed", "error", err)
	}
	writeJSON(w, resp.RelatedHTTPCode, resp)
}

// decodeBody decodes a JSON body into dst. Malformed bodies, including
// malformed condition trees, are reported as invalid search parameters.
func decodeBody(r *http.Request, dst any, code ffdc.ErrorCode) error {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return ffdc.New(code, fmt.Sprintf("invalid payload: %v", err), err)
	}
	return nil
}

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, ffdc.New(ffdc.InvalidSearchParameter, fmt.Sprintf("invalid entity guid %q", raw), err)
	}
	return id, nil
}

func (h *Handler) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var entity domain.EntityDetail
	if err := decodeBody(r, &entity, ffdc.InvalidEntity); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.service.CreateEntity(r.Context(), entity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetEntities serves GET /entities?ids=a,b through the request's
// batching loader.
func (h *Handler) handleGetEntities(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		writeError(w, r, ffdc.New(ffdc.InvalidSearchParameter, "the ids query parameter is required"))
		return
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			writeError(w, r, ffdc.New(ffdc.InvalidSearchParameter, fmt.Sprintf("invalid entity guid %q", part), err))
			return
		}
		ids = append(ids, id)
	}

	loader := middleware.EntityLoaderFromContext(r.Context())
	var (
		entities []domain.EntityDetail
		err      error
	)
	if loader != nil {
		entities, err = loader.LoadMany(r.Context(), ids)
	} else {
		entities, err = h.service.GetEntities(r.Context(), ids)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	loader := middleware.EntityLoaderFromContext(r.Context())
	if loader == nil {
		entity, err := h.service.GetEntity(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entity)
		return
	}
	entity, found, err := loader.Load(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, ffdc.New(ffdc.UnknownEntity, id.String()))
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var entity domain.EntityDetail
	if err := decodeBody(r, &entity, ffdc.InvalidEntity); err != nil {
		writeError(w, r, err)
		return
	}
	entity.ID = id
	updated, err := h.service.UpdateEntity(r.Context(), entity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.service.DeleteEntity(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFindEntities(w http.ResponseWriter, r *http.Request) {
	var query domain.EntitySearch
	if err := decodeBody(r, &query, ffdc.InvalidSearchParameter); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.service.FindEntities(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.TotalCount))
	writeJSON(w, http.StatusOK, result)
}

// handleValidate always answers 200 for a well-formed body; the report
// says whether the search would be accepted.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var query domain.EntitySearch
	if err := decodeBody(r, &query, ffdc.InvalidSearchParameter); err != nil {
		resp := ffdc.ToResponse(err)
		writeJSON(w, http.StatusOK, service.ValidationReport{Error: &resp})
		return
	}
	writeJSON(w, http.StatusOK, h.service.Validate(query))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, ffdc.New(ffdc.InvalidSearchParameter, err.Error(), err))
		return
	}
	var query domain.EntitySearch
	if err := decodeBody(r, &query, ffdc.InvalidSearchParameter); err != nil {
		writeError(w, r, err)
		return
	}

	// Buffer so a failure can still be reported as JSON.
	var buf bytes.Buffer
	rows, err := h.service.ExportEntities(r.Context(), query, format, &buf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fileName := fmt.Sprintf("entities-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("X-Total-Count", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, ffdc.New(ffdc.InvalidEntity, fmt.Sprintf("invalid form data: %v", err), err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, ffdc.New(ffdc.InvalidEntity, fmt.Sprintf("file required: %v", err), err))
		return
	}
	defer file.Close()

	req := ingestion.Request{
		TypeName: strings.TrimSpace(r.FormValue("typeName")),
		FileName: header.Filename,
		Data:     file,
	}
	if raw := strings.TrimSpace(r.FormValue("headerRowIndex")); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, ffdc.New(ffdc.InvalidEntity, fmt.Sprintf("invalid headerRowIndex %q", raw), err))
			return
		}
		req.HeaderRowIndex = &idx
	}

	summary, err := h.importer.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, r, ffdc.New(ffdc.InvalidEntity, err.Error(), err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
