package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/model"
	"github.com/harborcare/careexport/internal/queue"
	"github.com/harborcare/careexport/internal/repository"
)

// handleForms accepts scanned paper-form PDFs and queues them for extraction.
func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxScanSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer part.Close()
	tmp, err := s.persistTemp(part)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()
	if tmp.contentType != "application/pdf" {
		respondError(w, http.StatusBadRequest, "only PDF scans supported")
		return
	}

	formID := uuid.NewString()
	objectKey := fmt.Sprintf("scans/%s/%s", formID, filepath.Base(tmp.filename))
	if _, err := tmp.f.Seek(0, 0); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store scan")
		return
	}
	if err := s.store.UploadScan(ctx, objectKey, tmp.f, tmp.size, tmp.contentType); err != nil {
		logrus.WithError(err).Error("upload scan failed")
		respondError(w, http.StatusInternalServerError, "failed to store scan")
		return
	}
	form := &model.FormSubmission{
		ID:         formID,
		FileName:   tmp.filename,
		ObjectKey:  objectKey,
		UploadedBy: actorID(r),
	}
	if err := s.forms.Create(ctx, form); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store metadata")
		return
	}
	if err := queue.EnqueueExtract(ctx, s.queue, queue.ExtractPayload{
		FormID:    formID,
		ObjectKey: objectKey,
		FileName:  tmp.filename,
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to queue extraction")
		return
	}
	s.recordAudit(r, model.ActionFormUploaded, "form_submission", formID, map[string]string{
		"fileName": tmp.filename,
	})
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     formID,
		"status": string(model.FormReceived),
	})
}

func (s *Server) handleFormRoute(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/forms/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	form, err := s.forms.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "form submission not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load form submission")
		return
	}
	respondJSON(w, http.StatusOK, form)
}

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

// persistTemp spools the multipart part to disk while sniffing its content
// type and enforcing the size limit.
func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "careexport-scan-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxScanSize {
				discard()
				return nil, fmt.Errorf("scan exceeds limit (%d bytes)", s.cfg.MaxScanSize)
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				discard()
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			discard()
			return nil, fmt.Errorf("read scan: %w", readErr)
		}
	}
	if written == 0 {
		discard()
		return nil, errors.New("empty file")
	}
	contentType := http.DetectContentType(sniff)
	if _, err := tmpFile.Seek(0, 0); err != nil {
		discard()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	filename := part.FileName()
	if filename == "" {
		filename = "scan.pdf"
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: contentType,
		filename:    filename,
	}, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}
