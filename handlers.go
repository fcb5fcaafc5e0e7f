package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/maxgarvey/show_renamer/jobs"
	"github.com/maxgarvey/show_renamer/renamer"
	"github.com/maxgarvey/show_renamer/store"
	"github.com/maxgarvey/show_renamer/tmdb"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// metaStatus maps a metadata source failure to an HTTP status.
func metaStatus(err error) int {
	switch {
	case errors.Is(err, tmdb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tmdb.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// --- Handlers ---

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Root": s.root}
	if err := templates.ExecuteTemplate(w, "index.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"port":      s.port,
		"addresses": localAddresses(s.port),
	})
}

type folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *server) handleFolders(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Error("read root folder", "root", s.root, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	folders := []folder{}
	for _, e := range entries {
		p := filepath.Join(s.root, e.Name())
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			continue
		}
		folders = append(folders, folder{Name: e.Name(), Path: p})
	}
	sortFolders(folders)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "folders": folders})
}

// sortFolders orders folders by name ignoring case and accents.
func sortFolders(folders []folder) {
	coll := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)
	sort.SliceStable(folders, func(i, j int) bool {
		if c := coll.CompareString(folders[i].Name, folders[j].Name); c != 0 {
			return c < 0
		}
		return folders[i].Name < folders[j].Name
	})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter is required")
		return
	}
	shows, err := s.meta.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("search shows", "query", query, "error", err)
		writeError(w, metaStatus(err), err.Error())
		return
	}
	if shows == nil {
		shows = []tmdb.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shows": shows})
}

func (s *server) handleShow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid show id")
		return
	}
	show, err := s.meta.Show(r.Context(), id)
	if err != nil {
		s.logger.Error("fetch show", "show_id", id, "error", err)
		writeError(w, metaStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "show": show})
}

func (s *server) handleSeason(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid show id")
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "season"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid season number")
		return
	}
	season, err := s.meta.Season(r.Context(), id, n)
	if err != nil {
		s.logger.Error("fetch season", "show_id", id, "season", n, "error", err)
		writeError(w, metaStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "season": season})
}

// flexID accepts a JSON number or a numeric string.
type flexID int

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("showId: %w", err)
	}
	*f = flexID(n)
	return nil
}

type processRequest struct {
	FolderPath      string         `json:"folderPath"`
	ShowID          flexID         `json:"showId"`
	ConfirmRenames  bool           `json:"confirmRenames"`
	DownloadPosters *bool          `json:"downloadPosters"`
	MatchStrategy   string         `json:"matchStrategy"`
	Mapping         map[string]int `json:"mapping"`
	WriteTags       *bool          `json:"writeTags"`
}

func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FolderPath == "" || req.ShowID <= 0 {
		writeError(w, http.StatusBadRequest, "Folder path and show ID are required")
		return
	}
	strategy := strings.ToLower(strings.TrimSpace(req.MatchStrategy))
	if strategy == "" {
		strategy = s.matchStrategy
	}
	if _, err := renamer.NewMatcher(strategy, req.Mapping); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	show, err := s.meta.Show(r.Context(), int(req.ShowID))
	if err != nil {
		s.logger.Error("fetch show", "show_id", req.ShowID, "error", err)
		writeError(w, metaStatus(err), err.Error())
		return
	}

	info, err := os.Stat(req.FolderPath)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusNotFound, "Folder not found")
		return
	}

	downloadPosters := true
	if req.DownloadPosters != nil {
		downloadPosters = *req.DownloadPosters
	}
	writeTags := s.writeTags
	if req.WriteTags != nil {
		writeTags = *req.WriteTags
	}

	job, err := s.jobs.Start(r.Context(), jobs.Request{
		FolderPath:      req.FolderPath,
		ShowID:          int(req.ShowID),
		ShowName:        show.Name,
		ConfirmRenames:  req.ConfirmRenames,
		DownloadPosters: downloadPosters,
		WriteTags:       writeTags,
		MatchStrategy:   strategy,
		Mapping:         req.Mapping,
	})
	switch {
	case errors.Is(err, jobs.ErrFolderBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("start job", "folder", req.FolderPath, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("processing started", "job", job.ID, "folder", job.FolderPath, "show", show.Name)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Processing started",
		"showName": show.Name,
		"jobId":    job.ID,
	})
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	list, err := s.store.ListJobs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []store.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobs": list})
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	renames, err := s.store.ListRenames(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if renames == nil {
		renames = []store.Rename{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": job, "renames": renames})
}
