package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// Listing bounds for /entries.
const (
	DefaultEntriesLimit = 20
	MaxEntriesLimit     = 100
)

// EntryResponse wraps a single document. Issues lists frontmatter fields
// that do not meet the constraints for its content type.
type EntryResponse struct {
	Data   *domain.Document `json:"data"`
	Issues []string         `json:"issues,omitempty"`
}

// EntryListResponse wraps one page of documents.
type EntryListResponse struct {
	Data []domain.Document `json:"data"`
	Meta PageMeta          `json:"meta"`
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	ct, ok := domain.ParseContentType(chi.URLParam(r, "contentType"))
	if !ok {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest,
			fmt.Sprintf("unknown content type %q", chi.URLParam(r, "contentType")))
		return
	}
	id := chi.URLParam(r, "id")

	doc, err := s.documents.Get(r.Context(), ct, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, fmt.Sprintf("Entry %s/%s not found", ct, id))
			return
		}
		respondErr(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, EntryResponse{Data: doc, Issues: metadataIssues(doc)})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), DefaultEntriesLimit, 1, MaxEntriesLimit)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "limit: "+err.Error())
		return
	}
	offset, err := intParam(q.Get("offset"), 0, 0, -1)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "offset: "+err.Error())
		return
	}

	page, err := s.documents.List(r.Context(), domain.ListParams{
		ContentType: domain.ContentType(q.Get("contentType")),
		Group:       q.Get("group"),
		Release:     q.Get("release"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}

	data := page.Documents
	if data == nil {
		data = []domain.Document{}
	}
	respond(w, r, http.StatusOK, EntryListResponse{
		Data: data,
		Meta: PageMeta{Total: page.Total, Limit: page.Limit, Offset: page.Offset},
	})
}

// intParam parses an optional integer within [lo, hi]. A negative hi
// means no upper bound.
func intParam(raw string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	if n < lo || (hi >= 0 && n > hi) {
		if hi < 0 {
			return 0, fmt.Errorf("must be at least %d", lo)
		}
		return 0, fmt.Errorf("must be between %d and %d", lo, hi)
	}
	return n, nil
}

func metadataIssues(doc *domain.Document) []string {
	err := domain.ValidateMetadata(doc.ContentType, doc.Metadata)
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var issues []string
		for _, e := range joined.Unwrap() {
			issues = append(issues, e.Error())
		}
		return issues
	}
	return []string{err.Error()}
}
