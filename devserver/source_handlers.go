package devserver

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-agent-client/resources"
)

// maxUploadSize bounds a multipart source upload.
const maxUploadSize = 10 << 20

func (s *Server) ListSourcesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.data.listSources(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeData(w, http.StatusOK, list, "")
	}
}

func (s *Server) AddTextSourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in resources.TextSourceInput
		if !decodeBody(w, r, &in) {
			return
		}
		var problems []string
		if in.AgentID == "" {
			problems = append(problems, "agentId is required")
		}
		if strings.TrimSpace(in.Content) == "" {
			problems = append(problems, "content is required")
		}
		if len(problems) > 0 {
			writeError(w, http.StatusBadRequest, "invalid source", problems...)
			return
		}
		s.createSource(w, resources.Source{
			AgentID: in.AgentID,
			Kind:    resources.SourceText,
			Title:   in.Title,
			Content: in.Content,
			Size:    int64(len(in.Content)),
		}, nil)
	}
}

func (s *Server) AddURLSourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in resources.URLSourceInput
		if !decodeBody(w, r, &in) {
			return
		}
		var problems []string
		if in.AgentID == "" {
			problems = append(problems, "agentId is required")
		}
		if u, err := url.Parse(in.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, "url must be an absolute http(s) url")
		}
		if len(problems) > 0 {
			writeError(w, http.StatusBadRequest, "invalid source", problems...)
			return
		}
		title := in.Title
		if title == "" {
			title = in.URL
		}
		s.createSource(w, resources.Source{
			AgentID: in.AgentID,
			Kind:    resources.SourceURL,
			Title:   title,
			URL:     in.URL,
		}, nil)
	}
}

func (s *Server) UploadSourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload", "file is required")
			return
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
			return
		}
		agentID := r.FormValue("agentId")
		if agentID == "" {
			writeError(w, http.StatusBadRequest, "invalid upload", "agentId is required")
			return
		}
		title := r.FormValue("title")
		if title == "" {
			title = header.Filename
		}
		s.createSource(w, resources.Source{
			AgentID:  agentID,
			Kind:     resources.SourceFile,
			Title:    title,
			Filename: header.Filename,
			Size:     int64(len(content)),
		}, content)
	}
}

func (s *Server) createSource(w http.ResponseWriter, src resources.Source, content []byte) {
	created, err := s.data.addSource(src, content)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeData(w, http.StatusCreated, created, "source added")
}

func (s *Server) DeleteSourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.data.deleteSource(r.PathValue("id")); err != nil {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeData(w, http.StatusOK, nil, "source deleted")
	}
}

// DownloadSourceHandler streams the raw source content, not an envelope.
func (s *Server) DownloadSourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, content, err := s.data.sourceContent(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		name := src.Filename
		if name == "" {
			name = src.ID + ".txt"
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		_, _ = w.Write(content)
	}
}
