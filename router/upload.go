package router

import (
	"net/http"
)

// Upload accepts a multipart body with field "file" and stages it for a
// later post write. The client filename becomes the token; responds 204
// with no body.
func Upload() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return handleParsingError(err, "error in parsing form")
		}
		file, fh, err := r.FormFile("file")
		if err != nil {
			return handleParsingError(err, "missing file upload")
		}
		defer file.Close()

		if _, err := rc.media.Stage(fh.Filename, file); err != nil {
			return handleStorageError(err)
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}
