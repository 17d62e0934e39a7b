package router

import (
	"net/http"
)

// ListEntities serves the entity directory; ?type={label} restricts it to
// one category by its external label, case-insensitively. Unknown labels
// return the full set.
func ListEntities() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		entities, err := rc.db.ListEntities(r.Context(), r.URL.Query().Get("type"))
		if err != nil {
			return handleStorageError(err)
		}
		return writeJSON(w, http.StatusOK, entities)
	}
}

func GetEntity() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		id, herr := pathID(r)
		if herr != nil {
			return herr
		}
		e, err := rc.db.GetEntity(r.Context(), id)
		if err != nil {
			return handleStorageError(err)
		}
		return writeJSON(w, http.StatusOK, e)
	}
}
