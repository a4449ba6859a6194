package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/storage"
)

// withSession runs fn inside a storage session released on every path
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(sess storage.Session)) {
	sess, err := s.store.Acquire(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to acquire storage session")
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sess.Release()

	fn(sess)
}

func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess storage.Session) {
		prompts, err := sess.ListPrompts(r.Context())
		if err != nil {
			s.internalError(w, err, "Failed to list prompts")
			return
		}
		s.render(w, "index.html", map[string]interface{}{"Prompts": prompts})
	})
}

func (s *Server) createPrompt(w http.ResponseWriter, r *http.Request) {
	name, text, ok := promptForm(w, r)
	if !ok {
		return
	}

	s.withSession(w, r, func(sess storage.Session) {
		if _, err := sess.CreatePrompt(r.Context(), name, text); err != nil {
			s.writeStoreError(w, err, "Failed to create prompt")
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

func (s *Server) editPromptForm(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}

	s.withSession(w, r, func(sess storage.Session) {
		prompt, err := sess.GetPrompt(r.Context(), id)
		if err != nil {
			s.internalError(w, err, "Failed to get prompt")
			return
		}
		if prompt == nil {
			http.Error(w, "Prompt not found", http.StatusNotFound)
			return
		}
		s.render(w, "edit.html", map[string]interface{}{"Prompt": prompt})
	})
}

func (s *Server) updatePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	name, text, ok := promptForm(w, r)
	if !ok {
		return
	}

	s.withSession(w, r, func(sess storage.Session) {
		if _, err := sess.UpdatePrompt(r.Context(), id, name, text); err != nil {
			s.writeStoreError(w, err, "Failed to update prompt")
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

func (s *Server) deletePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}

	s.withSession(w, r, func(sess storage.Session) {
		if err := sess.DeletePrompt(r.Context(), id); err != nil {
			s.writeStoreError(w, err, "Failed to delete prompt")
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

// health reports whether storage answers
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "healthy", "storage": "pass"}

	start := time.Now()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Health check failed")
		status = http.StatusServiceUnavailable
		body = map[string]string{"status": "unhealthy", "storage": "fail"}
	} else {
		body["latency"] = time.Since(start).String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("Failed to render template")
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, storage.ErrPromptNotFound):
		http.Error(w, "Prompt not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrDuplicatePrompt):
		http.Error(w, "Prompt with this name already exists", http.StatusConflict)
	default:
		s.internalError(w, err, msg)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func promptID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Prompt not found", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

// promptForm reads and validates the name and text fields
func promptForm(w http.ResponseWriter, r *http.Request) (name, text string, ok bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return "", "", false
	}

	name = strings.TrimSpace(r.PostForm.Get("name"))
	text = strings.TrimSpace(r.PostForm.Get("text"))
	if name == "" || text == "" {
		http.Error(w, "name and text are required", http.StatusBadRequest)
		return "", "", false
	}
	if strings.ContainsAny(name, " \t\n") {
		http.Error(w, "name must be a single word", http.StatusBadRequest)
		return "", "", false
	}
	return name, text, true
}
