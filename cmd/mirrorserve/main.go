// Command mirrorserve serves a mirror directory produced by mirrorcrawl as
// plain static files, plus a small status API backed by the crawl's bbolt
// status database.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/siteone-mirror/crawler/internal/status"
)

var (
	port      = flag.Int("port", 8080, "TCP port to listen on.")
	mirrorDir = flag.String("mirror-dir", "", "Local root of the mirrored site to serve.")
	statusDB  = flag.String("status-db", "", "bbolt status database written by mirrorcrawl; status endpoints are disabled if empty.")
)

// reopenableStore lazily opens the status database and swaps it out on
// /_reloadz.
type reopenableStore struct {
	path string
	mu   sync.RWMutex
	db   *status.BoltStore
}

func (r *reopenableStore) get() *status.BoltStore {
	r.mu.RLock()
	if r.db != nil {
		return r.db
	}
	r.mu.RUnlock()
	r.open()
	r.mu.RLock()
	return r.db
}

func (r *reopenableStore) release() {
	r.mu.RUnlock()
}

func (r *reopenableStore) open() {
	r.mu.Lock()
	defer r.mu.Unlock()
	// bbolt holds an exclusive file lock per open handle, so the old handle
	// is closed before the file is opened again.
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	db, err := status.OpenBoltStore(r.path, false)
	if err != nil {
		log.Printf("reopening status db %q: %v", r.path, err)
		return
	}
	r.db = db
}

type statusHandler struct {
	store *reopenableStore
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/_statusz":
		h.serveSummary(w)
	case "/_reloadz":
		h.store.open()
		fmt.Fprintln(w, "reloaded")
	case "/_visited.json":
		h.serveVisited(w)
	default:
		http.NotFound(w, req)
	}
}

func (h *statusHandler) serveSummary(w http.ResponseWriter) {
	db := h.store.get()
	defer h.store.release()
	if db == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(db.Summary())
}

func (h *statusHandler) serveVisited(w http.ResponseWriter) {
	db := h.store.get()
	defer h.store.release()
	if db == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(db.GetVisitedUrls())
}

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)

	if *mirrorDir == "" {
		log.Fatal("must specify the mirrored site root with --mirror-dir")
	}
	http.Handle("/", http.FileServer(http.Dir(*mirrorDir)))

	if *statusDB != "" {
		h := &statusHandler{store: &reopenableStore{path: *statusDB}}
		http.Handle("/_statusz", h)
		http.Handle("/_reloadz", h)
		http.Handle("/_visited.json", h)
	}

	log.Println("serving mirror on port", *port)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", *port), nil))
}
