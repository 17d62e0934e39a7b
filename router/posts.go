package router

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/portalcms/portal-backend/db"
	"github.com/portalcms/portal-backend/log"
)

// ListPosts serves the summary projection, optionally restricted by
// ?only=events|posts to posts with or without event details.
func ListPosts() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		posts, err := rc.db.ListPosts(r.Context(), r.URL.Query().Get("only"))
		if err != nil {
			return handleStorageError(err)
		}
		return writeJSON(w, http.StatusOK, toSummaries(posts))
	}
}

// GetPost serves the full projection; ?markdownify switches the content
// field to pre-rendered HTML.
func GetPost() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		id, herr := pathID(r)
		if herr != nil {
			return herr
		}
		post, err := rc.db.GetPost(r.Context(), id)
		if err != nil {
			return handleStorageError(err)
		}
		if herr := markdownify(rc, r, post); herr != nil {
			return herr
		}
		return writeJSON(w, http.StatusOK, post)
	}
}

func CreatePost() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		doc, herr := parseWriteDocument(rc, r)
		if herr != nil {
			return herr
		}
		post, err := rc.db.CreatePost(r.Context(), doc)
		if err != nil {
			return handleStorageError(err)
		}
		if herr := markdownify(rc, r, post); herr != nil {
			return herr
		}
		return writeJSON(w, http.StatusCreated, post)
	}
}

func UpdatePost() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		id, herr := pathID(r)
		if herr != nil {
			return herr
		}
		doc, herr := parseWriteDocument(rc, r)
		if herr != nil {
			return herr
		}

		var oldHeader string
		if doc.Header != nil {
			old, err := rc.db.GetPost(r.Context(), id)
			if err != nil {
				return handleStorageError(err)
			}
			oldHeader = old.Header
		}

		post, err := rc.db.UpdatePost(r.Context(), id, doc)
		if err != nil {
			return handleStorageError(err)
		}

		if oldHeader != "" && oldHeader != post.Header {
			if err := rc.media.Remove(oldHeader); err != nil {
				log.Warn.Printf("replaced header cleanup: %s", err)
			}
		}

		if herr := markdownify(rc, r, post); herr != nil {
			return herr
		}
		return writeJSON(w, http.StatusOK, post)
	}
}

func DeletePost() Handler {
	return func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError {
		id, herr := pathID(r)
		if herr != nil {
			return herr
		}
		if err := rc.db.DeletePost(r.Context(), id); err != nil {
			return handleStorageError(err)
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}

// parseWriteDocument builds the partial desired-state document from the
// request. A multipart body carries the document in the "post" field with an
// optional inline "header" file part; a JSON body carries the document
// directly, with a header string referring to a previously staged upload by
// token. Either way the header reaches storage as a durable stored name
// before the reconciler runs.
func parseWriteDocument(rc *RouterContext, r *http.Request) (*db.PostWrite, *HTTPError) {
	doc := &db.PostWrite{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, handleParsingError(err, "error in parsing form")
		}
		if raw := r.FormValue("post"); raw != "" {
			if err := json.Unmarshal([]byte(raw), doc); err != nil {
				return nil, handleParsingError(err, "error in parsing post document")
			}
		}
		file, fh, err := r.FormFile("header")
		if err == nil {
			defer file.Close()
			stored, err := rc.media.Save(fh.Filename, file)
			if err != nil {
				return nil, handleStorageError(err)
			}
			doc.Header = &stored
		} else if err != http.ErrMissingFile {
			return nil, handleParsingError(err, "error in reading header upload")
		}
		return doc, nil
	}

	if err := json.NewDecoder(r.Body).Decode(doc); err != nil {
		return nil, handleParsingError(err, "error in parsing request body")
	}

	// A header string is a staged-upload token; consume it and substitute
	// the durable stored name. An empty string clears the header.
	if doc.Header != nil && *doc.Header != "" {
		f, err := rc.media.Resolve(*doc.Header)
		if err != nil {
			return nil, handleStorageError(err)
		}
		stored, err := rc.media.Save(f.Name, bytes.NewReader(f.Content))
		if err != nil {
			return nil, handleStorageError(err)
		}
		doc.Header = &stored
	}
	return doc, nil
}

// markdownify swaps the post's content for rendered HTML when the request
// carries the markdownify flag, consulting the render cache first.
func markdownify(rc *RouterContext, r *http.Request, post *db.Post) *HTTPError {
	if !r.URL.Query().Has("markdownify") {
		return nil
	}
	if html, ok := rc.db.CachedRender(post); ok {
		post.Content = html
		return nil
	}
	html, err := rc.render(post.Content)
	if err != nil {
		return &HTTPError{
			IError:    err,
			Level:     3,
			Status:    http.StatusInternalServerError,
			Error:     http.StatusText(http.StatusInternalServerError),
			ErrorCode: ErrInternal,
		}
	}
	rc.db.StoreRender(post, html)
	post.Content = html
	return nil
}
