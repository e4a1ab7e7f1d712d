package exportjob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/model"
)

// Downloader retrieves completed export artifacts.
type Downloader struct {
	registry *Registry
	auditor  *AuditNotifier
	client   *http.Client
}

// NewDownloader constructs a Downloader sharing the client's registry and
// audit notifier.
func NewDownloader(registry *Registry, auditor *AuditNotifier) *Downloader {
	return &Downloader{
		registry: registry,
		auditor:  auditor,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Download fetches the artifact for a completed job into dir and returns the
// written path. The file name is derived from the job (export type,
// submission date, format, compression suffix).
//
// The precondition is a completed job with a download URL; anything else
// returns ErrNotCompleted. PHI exports record a download audit event before
// retrieval begins.
func (d *Downloader) Download(ctx context.Context, jobID, dir string) (string, error) {
	job, ok := d.registry.Get(jobID)
	if !ok {
		return "", ErrJobNotFound
	}
	if job.Status != model.StatusCompleted || job.DownloadURL == nil {
		return "", fmt.Errorf("job %s (%s): %w", job.ID, job.Status, ErrNotCompleted)
	}
	if model.ContainsPHI(job.ExportType) {
		d.auditor.Notify(ctx, model.ActionExportDownloaded, "export_job", job.ID, map[string]string{
			"exportType": string(job.ExportType),
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *job.DownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch artifact: unexpected status %s", resp.Status)
	}

	path := filepath.Join(dir, job.ArtifactName())
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}
	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"job":   job.ID,
		"path":  path,
		"bytes": written,
	}).Info("export artifact downloaded")
	return path, nil
}
