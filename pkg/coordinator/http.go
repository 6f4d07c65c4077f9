package coordinator

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/blockstore/pkg/log"
	"github.com/cuemby/blockstore/pkg/metrics"
	"github.com/cuemby/blockstore/pkg/types"
)

// Server exposes the control plane described in §6: a plain net/http
// mux routed by method+pattern (Go 1.22+), mirroring the JSON-over-
// HTTP helper shape the pack's torua repo uses for its own cluster
// endpoints, since the teacher's own control plane is grpc end-to-end
// and has no directly reusable HTTP handler shape.
type Server struct {
	coord  *Coordinator
	logger zerolog.Logger
	mux    *http.ServeMux
}

func NewServer(coord *Coordinator) *Server {
	s := &Server{coord: coord, logger: log.WithComponent("http")}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.withMetrics(s.mux) }

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /files", s.handleCreateFile)
	s.mux.HandleFunc("GET /files/{id}", s.handleGetFile)
	s.mux.HandleFunc("DELETE /files/{id}", s.handleDeleteFile)
	s.mux.HandleFunc("GET /files/path/{path...}", s.handleGetFileByPath)
	s.mux.HandleFunc("GET /files/info/{path...}", s.handleFileInfo)

	s.mux.HandleFunc("GET /blocks/{id}", s.handleGetBlock)
	s.mux.HandleFunc("PUT /blocks/{id}", s.handlePutBlock)
	s.mux.HandleFunc("POST /blocks", s.handleRegisterBlock)
	s.mux.HandleFunc("POST /blocks/{id}/locations", s.handleAddLocation)
	s.mux.HandleFunc("DELETE /blocks/{id}/locations/{node_id}", s.handleRemoveLocation)
	s.mux.HandleFunc("POST /blocks/{id}/placement", s.handlePlaceBlock)

	s.mux.HandleFunc("POST /datanodes/register", s.handleRegisterNode)
	s.mux.HandleFunc("GET /datanodes", s.handleListNodes)
	s.mux.HandleFunc("GET /datanodes/{id}", s.handleGetNode)
	s.mux.HandleFunc("POST /datanodes/{id}/heartbeat", s.handleHeartbeat)

	s.mux.HandleFunc("POST /directories", s.handleCreateDirectory)
	s.mux.HandleFunc("DELETE /directories", s.handleDeleteDirectory)
	s.mux.HandleFunc("GET /directories/{path...}", s.handleListDirectory)

	s.mux.HandleFunc("GET /system/stats", s.handleStats)
	s.mux.HandleFunc("POST /cluster/join", s.handleClusterJoin)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case types.IsNotFound(err):
		status = http.StatusNotFound
	case types.IsConflict(err):
		status = http.StatusConflict
	case types.IsValidation(err):
		status = http.StatusBadRequest
	case types.IsCapacityExhausted(err):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createFileRequest struct {
	Path  string          `json:"path"`
	Type  types.EntryType `json:"type"`
	Owner string          `json:"owner"`
	Size  int64           `json:"size"`
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	if req.Type == "" {
		req.Type = types.EntryTypeFile
	}
	entry, err := s.coord.CreateEntry(req.Path, req.Type, req.Owner, req.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	entry, err := s.coord.GetByID(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.DeleteFile(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetFileByPath(w http.ResponseWriter, r *http.Request) {
	entry, err := s.coord.GetByPath(normalizeWildcard(r.PathValue("path")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	path := normalizeWildcard(r.PathValue("path"))
	entry, err := s.coord.GetByPath(path)
	if err != nil {
		writeError(w, err)
		return
	}
	blocks, err := s.coord.ListBlocksForFile(entry.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	locs := make(map[string][]*types.BlockLocation, len(blocks))
	for _, b := range blocks {
		l, err := s.coord.ListLocations(b.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		live := make([]*types.BlockLocation, 0, len(l))
		for _, loc := range l {
			if n, err := s.coord.GetNode(loc.NodeID); err == nil && n.Status == types.NodeStatusActive {
				live = append(live, loc)
			}
		}
		locs[b.ID] = live
	}
	writeJSON(w, http.StatusOK, &types.FileStats{FileEntry: *entry, Blocks: blocks, Locations: locs})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	b, err := s.coord.GetBlock(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handlePutBlock re-registers block metadata idempotently — PUT
// semantics per the §6 table's /blocks/{id} row.
func (s *Server) handlePutBlock(w http.ResponseWriter, r *http.Request) {
	var req registerBlockArgs
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	req.BlockID = r.PathValue("id")
	if err := s.coord.RegisterBlock(req.BlockID, req.FileID, req.Index, req.Size, req.Checksum); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.coord.GetBlock(req.BlockID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRegisterBlock(w http.ResponseWriter, r *http.Request) {
	var req registerBlockArgs
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	if err := s.coord.RegisterBlock(req.BlockID, req.FileID, req.Index, req.Size, req.Checksum); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.coord.GetBlock(req.BlockID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type addLocationRequest struct {
	NodeID   string `json:"node_id"`
	IsLeader bool   `json:"is_leader"`
}

func (s *Server) handleAddLocation(w http.ResponseWriter, r *http.Request) {
	var req addLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	if err := s.coord.AddLocation(r.PathValue("id"), req.NodeID, req.IsLeader); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveLocation(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.RemoveLocation(r.PathValue("id"), r.PathValue("node_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// placeBlockRequest drives §4.2's placement policy on behalf of a
// client preparing a PUT, or retrying one after a per-node failure;
// this endpoint is not in §6's original table but is required by
// §4.3(c)'s "request placement" step, which names no other surface.
type placeBlockRequest struct {
	Size    int64    `json:"size"`
	Exclude []string `json:"exclude,omitempty"`
}

func (s *Server) handlePlaceBlock(w http.ResponseWriter, r *http.Request) {
	var req placeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	exclude := make(map[string]bool, len(req.Exclude))
	for _, id := range req.Exclude {
		exclude[id] = true
	}
	nodes, err := s.coord.PlaceBlock(req.Size, exclude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

type registerNodeRequest struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	StorageCapacity int64  `json:"storage_capacity"`
	AvailableSpace  int64  `json:"available_space"`
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req registerNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	node, err := s.coord.RegisterNode(req.Host, req.Port, req.StorageCapacity, req.AvailableSpace)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	status := types.NodeStatus(r.URL.Query().Get("status"))
	nodes, err := s.coord.ListNodes(status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.coord.GetNode(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type heartbeatRequest struct {
	AvailableSpace int64    `json:"available_space"`
	ReportedBlocks []string `json:"reported_blocks"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	if err := s.coord.Heartbeat(r.PathValue("id"), req.AvailableSpace, req.ReportedBlocks); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type directoryRequest struct {
	Path      string `json:"path"`
	Owner     string `json:"owner"`
	Recursive bool   `json:"recursive"`
}

func (s *Server) handleCreateDirectory(w http.ResponseWriter, r *http.Request) {
	var req directoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	entry, err := s.coord.CreateEntry(req.Path, types.EntryTypeDirectory, req.Owner, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteDirectory(w http.ResponseWriter, r *http.Request) {
	var req directoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	if err := s.coord.DeleteDirectory(req.Path, req.Recursive); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.coord.ListDirectory(normalizeWildcard(r.PathValue("path")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClusterJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ValidationError("invalid request body"))
		return
	}
	if err := s.coord.AddVoter(req.NodeID, req.RaftAddr); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// normalizeWildcard restores the leading slash Go 1.22's {path...}
// wildcard strips, so paths round-trip through the namespace exactly
// as clients supplied them.
func normalizeWildcard(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
