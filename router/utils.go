package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/portalcms/portal-backend/db"
	"github.com/portalcms/portal-backend/media"
)

// pathID parses the {id} segment matched by the route.
func pathID(r *http.Request) (int64, *HTTPError) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, &HTTPError{
			IError:    err,
			Level:     1,
			Status:    http.StatusBadRequest,
			Error:     "invalid id",
			ErrorCode: ErrParsing,
		}
	}
	return id, nil
}

// queryID parses an optional numeric query parameter; missing or
// non-numeric values yield 0, matching the original's tolerant filter.
func queryID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// formID parses a numeric form field from an already-parsed form body.
func formID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.FormValue(name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) *HTTPError {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return &HTTPError{
			IError:    err,
			Level:     2,
			Status:    http.StatusInternalServerError,
			Error:     http.StatusText(http.StatusInternalServerError),
			ErrorCode: ErrInternal,
		}
	}
	return nil
}

// handleStorageError maps db and media sentinel errors onto response codes:
// missing references are 404, validation failures are 400, anything else is
// an internal error that gets logged.
func handleStorageError(err error) *HTTPError {
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, media.ErrNotFound):
		return &HTTPError{
			IError:    err,
			Level:     1,
			Status:    http.StatusNotFound,
			Error:     err.Error(),
			ErrorCode: ErrNotFound,
		}
	case errors.Is(err, db.ErrValidation):
		return &HTTPError{
			IError:    err,
			Level:     1,
			Status:    http.StatusBadRequest,
			Error:     err.Error(),
			ErrorCode: ErrInvalidData,
		}
	default:
		return &HTTPError{
			IError:    err,
			Level:     3,
			Status:    http.StatusInternalServerError,
			Error:     http.StatusText(http.StatusInternalServerError),
			ErrorCode: ErrInternal,
		}
	}
}

func handleParsingError(err error, msg string) *HTTPError {
	return &HTTPError{
		IError:    err,
		Level:     1,
		Status:    http.StatusBadRequest,
		Error:     msg,
		ErrorCode: ErrParsing,
	}
}
