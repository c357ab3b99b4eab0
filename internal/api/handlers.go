package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
	"github.com/JakeFAU/creator-crawler/internal/session"
)

const (
	codeOK    = 0
	codeError = 1
)

// envelope is the response shape of every /api/xhs route.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: code, Msg: msg, Data: data})
}

type crawlRequest struct {
	TaskID     json.RawMessage `json:"taskId"`
	CreatorIDs []string        `json:"creatorIds"`
	Headless   bool            `json:"headless"`
}

type loginRequest struct {
	Account         string `json:"account"`
	Headless        bool   `json:"headless"`
	DownloadFromOss bool   `json:"downloadFromOss"`
	UploadToOss     bool   `json:"uploadToOss"`
}

// taskID renders a caller-supplied task ID, which may be a JSON number or string.
func taskID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, codeError, "invalid JSON", nil)
		return
	}
	targets := make([]string, 0, len(req.CreatorIDs))
	for _, id := range req.CreatorIDs {
		if id = strings.TrimSpace(id); id != "" {
			targets = append(targets, id)
		}
	}

	// A client disconnect must not fault a run that holds the guard.
	report, err := s.deps.Orchestrator.Submit(context.WithoutCancel(r.Context()), crawler.JobRequest{
		JobID:    taskID(req.TaskID),
		Targets:  targets,
		Headless: req.Headless,
	})
	if err != nil {
		if !errors.Is(err, crawler.ErrRejected) {
			s.logger.Error("crawl failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
		}
		writeEnvelope(w, codeError, err.Error(), nil)
		return
	}
	if report.List == nil {
		report.List = []crawler.ContentRecord{}
	}
	writeEnvelope(w, codeOK, "crawl completed", report)
}

func (s *Server) checkLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeOptional(r, &req); err != nil {
		writeEnvelope(w, codeError, "invalid JSON", false)
		return
	}
	valid, err := s.deps.Sessions.Check(r.Context(), req.Account, session.Options{
		Headless: req.Headless,
		Download: req.DownloadFromOss,
		Upload:   req.UploadToOss,
	})
	if err != nil {
		writeEnvelope(w, codeError, err.Error(), false)
		return
	}
	msg := "login invalid"
	if valid {
		msg = "login valid"
	}
	writeEnvelope(w, codeOK, msg, valid)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeOptional(r, &req); err != nil {
		writeEnvelope(w, codeError, "invalid JSON", nil)
		return
	}
	err := s.deps.Sessions.Login(r.Context(), req.Account, session.Options{
		Headless: req.Headless,
		Upload:   req.UploadToOss,
	})
	if err != nil {
		writeEnvelope(w, codeError, err.Error(), nil)
		return
	}
	writeEnvelope(w, codeOK, "login succeeded", nil)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, codeOK, "success", s.deps.Orchestrator.State())
}

func (s *Server) accounts(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, codeOK, "success", s.deps.Pool.Accounts())
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.GetJob(r.Context(), runID)
	if errors.Is(err, crawler.ErrNotFound) {
		writeEnvelope(w, codeError, "job not found", nil)
		return
	}
	if err != nil {
		s.logger.Error("get job failed", zap.String("run_id", runID), zap.Error(err))
		writeEnvelope(w, codeError, "failed to load job", nil)
		return
	}
	writeEnvelope(w, codeOK, "success", job)
}

// decodeOptional decodes a JSON body into v, treating an empty body as all defaults.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
