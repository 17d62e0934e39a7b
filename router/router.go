package router

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/portalcms/portal-backend/db"
	"github.com/portalcms/portal-backend/log"
	"github.com/portalcms/portal-backend/media"
)

// Renderer turns markdown source into HTML. The implementation is wired in
// by the caller of Init; this package never renders by itself.
type Renderer func(markdown string) (string, error)

type RouterContext struct {
	db     *db.DB
	media  *media.Store
	render Renderer
}

type HTTPError struct {
	Level     int    `json:"-"`
	IError    error  `json:"-"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

type Handler func(rc *RouterContext, w http.ResponseWriter, r *http.Request) *HTTPError

func Handle(dbs *db.DB, store *media.Store, render Renderer, handlers ...Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		rc := &RouterContext{
			db:     dbs,
			media:  store,
			render: render,
		}
		w.Header().Add("Content-Type", "application/json")

		for _, handler := range handlers {
			e := handler(rc, w, r)
			if e != nil {

				// 3 Levels of errors
				// Level 1: Don't log anything on server, Only return a response to the user
				// Level 2: Log the error as warning on the server, But don't send a response or close the request
				// Level 3: Log the request, Cancel the request from going any further and return an appropriate response
				switch e.Level {
				case 1:
					w.WriteHeader(e.Status)
					err := json.NewEncoder(w).Encode(e)
					if err != nil {
						w.Header().Set("Content-Type", "text/plain")
						w.Write([]byte(http.StatusText(http.StatusInternalServerError)))
					}
					return

				case 2:
					log.Warn.Printf("%v: %s\n", e.IError, e.IError)

				case 3:
					log.Error.Printf("%v: %s\n", e.IError, e.IError)
					w.WriteHeader(e.Status)
					err := json.NewEncoder(w).Encode(e)
					if err != nil {
						log.Error.Printf("%v: %s\n", err, err)
						w.Header().Set("Content-Type", "text/plain")
						w.Write([]byte(http.StatusText(http.StatusInternalServerError)))
					}
					return
				}
			}
		}
	})
}

func Init(dbs *db.DB, store *media.Store, render Renderer) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/posts/", Handle(dbs, store, render,
		ListPosts(),
	)).Methods("GET")
	r.Handle("/posts/", Handle(dbs, store, render,
		CreatePost(),
	)).Methods("POST")
	r.Handle("/posts/{id:[0-9]+}/", Handle(dbs, store, render,
		GetPost(),
	)).Methods("GET")
	r.Handle("/posts/{id:[0-9]+}/", Handle(dbs, store, render,
		UpdatePost(),
	)).Methods("PUT", "PATCH")
	r.Handle("/posts/{id:[0-9]+}/", Handle(dbs, store, render,
		DeletePost(),
	)).Methods("DELETE")

	r.Handle("/attachments/", Handle(dbs, store, render,
		ListAttachments(),
	)).Methods("GET")
	r.Handle("/attachments/", Handle(dbs, store, render,
		CreateAttachment(),
	)).Methods("POST")
	r.Handle("/attachments/{id:[0-9]+}/", Handle(dbs, store, render,
		GetAttachment(),
	)).Methods("GET")
	r.Handle("/attachments/{id:[0-9]+}/", Handle(dbs, store, render,
		DeleteAttachment(),
	)).Methods("DELETE")

	r.Handle("/entities/", Handle(dbs, store, render,
		ListEntities(),
	)).Methods("GET")
	r.Handle("/entities/{id:[0-9]+}/", Handle(dbs, store, render,
		GetEntity(),
	)).Methods("GET")

	r.Handle("/upload/", Handle(dbs, store, render,
		Upload(),
	)).Methods("PUT")

	return r
}
