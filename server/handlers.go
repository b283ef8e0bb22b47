package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"videomoments/clips"
	"videomoments/config"
	"videomoments/core"
	"videomoments/ingest"
	"videomoments/search"
)

// Server wires the search engine, ingestion coordinator and clip cache
// behind the HTTP operations the API layer consumes.
type Server struct {
	engine      *search.Engine
	coordinator *ingest.Coordinator
	cache       *clips.Cache
	suggester   *Suggester
}

func New(engine *search.Engine, coordinator *ingest.Coordinator, cache *clips.Cache, cfg *config.Config) *Server {
	return &Server{
		engine:      engine,
		coordinator: coordinator,
		cache:       cache,
		suggester:   NewSuggester(cfg),
	}
}

// Routes registers all handlers on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/search", s.searchHandler)
	mux.HandleFunc("/intent-search", s.intentSearchHandler)
	mux.HandleFunc("/fused-search", s.fusedSearchHandler)
	mux.HandleFunc("/audio-search", s.audioSearchHandler)
	mux.HandleFunc("/process-video", s.processVideoHandler)
	mux.HandleFunc("/process-clips", s.processClipsHandler)
	mux.HandleFunc("/process-status", s.processStatusHandler)
	mux.HandleFunc("/captions-stats", s.captionsStatsHandler)
	mux.HandleFunc("/source-clips-list", s.sourceClipsHandler)
	mux.HandleFunc("/video-history", s.videoHistoryHandler)
	mux.HandleFunc("/health", s.healthHandler)

	mux.Handle("/clips/", http.StripPrefix("/clips/", http.FileServer(http.Dir(core.ClipsDir()))))
	mux.Handle("/frames/", http.StripPrefix("/frames/", http.FileServer(http.Dir(core.FramesDir()))))
	mux.Handle("/source_clips/", http.StripPrefix("/source_clips/", http.FileServer(http.Dir(core.SourceClipsDir()))))
}

type searchRequest struct {
	Query     string `json:"query"`
	AudioOnly bool   `json:"audio_only"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return searchRequest{}, false
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return searchRequest{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "query required"})
		return searchRequest{}, false
	}
	return req, true
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	spans, err := s.engine.Search(r.Context(), req.Query)
	if err != nil {
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if spans == nil {
		spans = []core.MomentSpan{}
	}
	core.WriteJSON(w, http.StatusOK, spans)
}

func (s *Server) intentSearchHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	intent, moments, err := s.engine.SearchWithIntent(r.Context(), req.Query)
	if err != nil {
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	moments = s.attachClips(moments)
	core.WriteJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"intent":  intent,
		"results": moments,
		"count":   len(moments),
	})
}

func (s *Server) fusedSearchHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	s.serveFused(w, r, req.Query, req.AudioOnly)
}

func (s *Server) audioSearchHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	s.serveFused(w, r, req.Query, true)
}

func (s *Server) serveFused(w http.ResponseWriter, r *http.Request, query string, audioOnly bool) {
	intent, moments, err := s.engine.FusedSearch(r.Context(), query, audioOnly)
	if err != nil {
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	moments = s.attachClips(moments)
	core.WriteJSON(w, http.StatusOK, map[string]any{
		"query":       query,
		"intent":      intent,
		"results":     moments,
		"count":       len(moments),
		"explanation": s.suggester.Explain(r.Context(), query, moments),
		"suggestions": s.suggester.Suggest(r.Context(), query, moments),
	})
}

// attachClips materializes the playable sub-clip for each adjusted
// window. A failed generation is reported on that result only; the
// search response still goes out.
func (s *Server) attachClips(moments []core.AdjustedMoment) []core.AdjustedMoment {
	for i := range moments {
		filename, err := s.cache.EnsureClip(moments[i].SourceID, moments[i].AdjStart, moments[i].AdjEnd)
		if err != nil {
			moments[i].ClipError = err.Error()
			continue
		}
		moments[i].ClipURL = "/clips/" + filename
	}
	return moments
}

func (s *Server) processVideoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	jobID, err := s.coordinator.StartYouTubeIngestion(req.URL)
	if err != nil {
		core.WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]string{"status": "started", "job_id": jobID})
}

func (s *Server) processClipsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := r.ParseMultipartForm(512 << 20); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	var files []ingest.UploadedFile
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			if !ingest.AllowedMedia(header.Filename) {
				continue
			}
			f, err := header.Open()
			if err != nil {
				continue
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				continue
			}
			files = append(files, ingest.UploadedFile{Name: header.Filename, Data: data})
		}
	}
	if len(files) == 0 {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "no valid video files (supported: mp4, mov, webm, avi, mkv)"})
		return
	}
	jobID, err := s.coordinator.StartClipIngestion(files)
	if err != nil {
		core.WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"status": "started", "job_id": jobID, "file_count": len(files)})
}

func (s *Server) processStatusHandler(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, s.coordinator.Status())
}

func (s *Server) captionsStatsHandler(w http.ResponseWriter, r *http.Request) {
	visualTotal, visualSources, err := s.engine.VisualStore().LogStats()
	if err != nil {
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	audioTotal, audioSources, err := s.engine.AudioStore().LogStats()
	if err != nil {
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{
		"total_captions":       visualTotal,
		"caption_sources":      visualSources,
		"total_transcriptions": audioTotal,
		"transcription_sources": audioSources,
	})
}

func (s *Server) sourceClipsHandler(w http.ResponseWriter, r *http.Request) {
	names := ingest.ListSources()
	list := make([]map[string]string, 0, len(names))
	for _, name := range names {
		list = append(list, map[string]string{"name": name, "url": "/source_clips/" + name})
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"clips": list})
}

func (s *Server) videoHistoryHandler(w http.ResponseWriter, r *http.Request) {
	videos := ingest.LoadHistory()
	core.WriteJSON(w, http.StatusOK, map[string]any{"videos": videos, "total": len(videos)})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
