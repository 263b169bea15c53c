package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// Result bounds for /search.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// SearchResponse wraps ranked results.
type SearchResponse struct {
	Data []domain.SearchResult `json:"data"`
	Meta PageMeta              `json:"meta"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "q is required")
		return
	}
	limit, err := intParam(q.Get("limit"), DefaultSearchLimit, 1, MaxSearchLimit)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "limit: "+err.Error())
		return
	}

	filters := domain.SearchFilters{
		Group:   q.Get("group"),
		Release: q.Get("release"),
		Status:  q.Get("status"),
		Tags:    splitList(q["tags"]),
	}
	if raw := q.Get("contentType"); raw != "" {
		ct, ok := domain.ParseContentType(raw)
		if !ok {
			respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("unknown content type %q", raw))
			return
		}
		filters.ContentType = ct
	}

	var opts domain.SearchOptions
	if raw := q.Get("includeDocuments"); raw != "" {
		opts.IncludeDocuments, err = strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "includeDocuments: not a boolean")
			return
		}
	}

	results, err := s.search.Search(r.Context(), query, filters, opts)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	total := len(results)
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	respond(w, r, http.StatusOK, SearchResponse{
		Data: results,
		Meta: PageMeta{Total: total, Limit: limit},
	})
}

// splitList accepts both ?tags=a,b and ?tags=a&tags=b.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
