package unittest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/ipfs/go-cid"
	"go.uber.org/atomic"

	"github.com/wartime-penguins/notary/module/blobs"
	"github.com/wartime-penguins/notary/module/contentstore"
)

// IPFSServer serves the subset of the IPFS HTTP RPC API used by the notary,
// backed by an in-memory content store.
type IPFSServer struct {
	*httptest.Server

	Store *contentstore.Local

	adds    *atomic.Uint64
	refs    *atomic.Uint64
	fetches *atomic.Uint64
}

// NewIPFSServer starts an IPFSServer which is closed when the test ends.
func NewIPFSServer(t testing.TB, chunkSize int) *IPFSServer {
	s := &IPFSServer{
		Store:   contentstore.NewLocal(blobs.NewMemoryBlobstore(), chunkSize),
		adds:    atomic.NewUint64(0),
		refs:    atomic.NewUint64(0),
		fetches: atomic.NewUint64(0),
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v0").Methods(http.MethodPost).Subrouter()
	api.HandleFunc("/add", s.handleAdd)
	api.HandleFunc("/refs", s.handleRefs)
	api.HandleFunc("/block/get", s.handleBlockGet)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)

	return s
}

func (s *IPFSServer) Adds() uint64    { return s.adds.Load() }
func (s *IPFSServer) Refs() uint64    { return s.refs.Load() }
func (s *IPFSServer) Fetches() uint64 { return s.fetches.Load() }

type ipfsAddEntry struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

func (s *IPFSServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	s.adds.Inc()

	query := r.URL.Query()
	if query.Get("hash") != "keccak-256" || query.Get("cid-version") != "1" {
		writeIPFSError(w, http.StatusBadRequest, fmt.Sprintf("unsupported hash %q or cid version %q", query.Get("hash"), query.Get("cid-version")))
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeIPFSError(w, http.StatusBadRequest, err.Error())
		return
	}

	var files []contentstore.File
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeIPFSError(w, http.StatusBadRequest, err.Error())
			return
		}
		data, err := io.ReadAll(part)
		if err != nil {
			writeIPFSError(w, http.StatusBadRequest, err.Error())
			return
		}
		files = append(files, contentstore.File{Name: part.FileName(), Data: data})
	}
	if len(files) == 0 {
		writeIPFSError(w, http.StatusBadRequest, "no files given")
		return
	}

	ctx := r.Context()
	var entries []ipfsAddEntry
	for _, f := range files {
		c, err := s.Store.Publish(ctx, f.Name, f.Data)
		if err != nil {
			writeIPFSError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, ipfsAddEntry{Name: f.Name, Hash: c.String(), Size: fmt.Sprint(len(f.Data))})
	}

	if query.Get("wrap-with-directory") == "true" {
		c, err := s.Store.PublishDirectory(ctx, files)
		if err != nil {
			writeIPFSError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, ipfsAddEntry{Name: "", Hash: c.String()})
	}

	enc := json.NewEncoder(w)
	for _, entry := range entries {
		_ = enc.Encode(entry)
	}
}

func (s *IPFSServer) handleRefs(w http.ResponseWriter, r *http.Request) {
	s.refs.Inc()

	root, err := cid.Decode(r.URL.Query().Get("arg"))
	if err != nil {
		writeIPFSError(w, http.StatusBadRequest, err.Error())
		return
	}

	all, err := s.Store.EnumerateBlocks(r.Context(), root)
	if err != nil {
		writeIPFSError(w, http.StatusInternalServerError, err.Error())
		return
	}

	enc := json.NewEncoder(w)
	for _, c := range all[1:] {
		_ = enc.Encode(map[string]string{"Ref": c.String(), "Err": ""})
	}
}

func (s *IPFSServer) handleBlockGet(w http.ResponseWriter, r *http.Request) {
	s.fetches.Inc()

	c, err := cid.Decode(r.URL.Query().Get("arg"))
	if err != nil {
		writeIPFSError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.Store.Fetch(r.Context(), c)
	if errors.Is(err, blobs.ErrNotFound) {
		writeIPFSError(w, http.StatusInternalServerError, "block was not found locally (offline)")
		return
	}
	if err != nil {
		writeIPFSError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func writeIPFSError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"Message": message,
		"Code":    0,
		"Type":    "error",
	})
}
