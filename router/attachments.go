package router

import (
	"net/http"

	"github.com/portalcms/portal-backend/log"
)

// ListAttachments serves the attachment collection; ?post={id} restricts it
// to one post's attachments.
func ListAttachments() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		attachments, err := rc.db.ListAttachments(r.Context(), queryID(r, "post"))
		if err != nil {
			return handleStorageError(err)
		}
		return writeJSON(w, http.StatusOK, attachments)
	}
}

func GetAttachment() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		id, herr := pathID(r)
		if herr != nil {
			return herr
		}
		a, err := rc.db.GetAttachment(r.Context(), id)
		if err != nil {
			return handleStorageError(err)
		}
		return writeJSON(w, http.StatusOK, a)
	}
}

// CreateAttachment accepts a multipart body with fields "post" (owning post
// id), "name" and "file", stores the file durably and records it.
func CreateAttachment() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return handleParsingError(err, "error in parsing form")
		}
		postID := queryID(r, "post")
		if postID == 0 {
			if id, err := formID(r, "post"); err == nil {
				postID = id
			}
		}
		name := r.FormValue("name")

		file, fh, err := r.FormFile("file")
		if err != nil {
			return handleParsingError(err, "missing file upload")
		}
		defer file.Close()

		if name == "" {
			name = fh.Filename
		}

		stored, err := rc.media.Save(fh.Filename, file)
		if err != nil {
			return handleStorageError(err)
		}
		a, err := rc.db.CreateAttachment(r.Context(), postID, name, stored)
		if err != nil {
			if rmErr := rc.media.Remove(stored); rmErr != nil {
				log.Warn.Printf("attachment cleanup: %s", rmErr)
			}
			return handleStorageError(err)
		}
		return writeJSON(w, http.StatusCreated, a)
	}
}

func DeleteAttachment() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		id, herr := pathID(r)
		if herr != nil {
			return herr
		}
		a, err := rc.db.GetAttachment(r.Context(), id)
		if err != nil {
			return handleStorageError(err)
		}
		if err := rc.db.DeleteAttachment(r.Context(), id); err != nil {
			return handleStorageError(err)
		}
		if err := rc.media.Remove(a.File); err != nil {
			log.Warn.Printf("attachment file cleanup: %s", err)
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}
