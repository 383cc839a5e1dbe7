package web

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	logging "github.com/op/go-logging"

	"github.com/fjulian79/libfds/common"
	"github.com/fjulian79/libfds/config"
	"github.com/fjulian79/libfds/storage"
)

var (
	log = logging.MustGetLogger("libfds")
)

// Server represents the fds inspection http server sitting on top of a
// record store, typically one backed by a flash image file. The record
// engine is strictly single-threaded, so every request serializes on
// the store lock.
type Server struct {
	bind       string
	store      *storage.Storage
	maxPayload int
	lock       sync.Mutex
}

// NewServer creates and configures a new Server instance
// based on a given underlying store
func NewServer(store *storage.Storage, cfg *config.ServerCfg) *Server {
	return &Server{
		bind:       cfg.Bind,
		store:      store,
		maxPayload: cfg.Store.MaxPayload,
	}
}

// Router creates the http router with all necessary handlers
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/info", common.JSONResponse(s.appInfo)).Methods("GET")
	r.HandleFunc("/api/v1/records/{uid}", common.JSONResponse(s.getRecord)).Methods("GET")
	r.HandleFunc("/api/v1/records/{uid}", common.JSONResponse(s.setRecord)).Methods("POST")
	r.HandleFunc("/api/v1/records/{uid}", common.JSONResponse(s.delRecord)).Methods("DELETE")
	r.HandleFunc("/api/v1/format", common.JSONResponse(s.formatStore)).Methods("POST")
	return r
}

// Start creates and configures a http server with all necessary
// handlers, then starts ListenAndServe in background and returns the
// server
func (s *Server) Start() (*http.Server, error) {
	log.Info("Creating HTTP router")

	srv := &http.Server{
		Addr:    s.bind,
		Handler: s.Router(),
	}

	go func() {
		log.Infof("server is starting at %s", s.bind)
		err := srv.ListenAndServe()
		if err != nil {
			return
		}
	}()

	return srv, nil
}
