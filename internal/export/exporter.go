// Package export writes finished extraction runs to a blob store and
// announces them on a message topic.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contactfinder/internal/email"
	"github.com/JakeFAU/contactfinder/internal/extractor"
	"github.com/JakeFAU/contactfinder/internal/logging"
	"github.com/JakeFAU/contactfinder/internal/urlnorm"
)

const contentTypeJSON = "application/json"

// BlobStore persists exported result documents.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher announces exported runs.
type Publisher interface {
	Publish(ctx context.Context, attrs map[string]string, payload any) (string, error)
}

// Notification is the message published for every exported run.
type Notification struct {
	RunID      string                 `json:"run_id"`
	URL        string                 `json:"url"`
	Domain     string                 `json:"domain"`
	Mode       extractor.Mode         `json:"mode"`
	Emails     int                    `json:"emails"`
	Categories map[email.Category]int `json:"categories"`
	BlobURI    string                 `json:"blob_uri,omitempty"`
	ExportedAt time.Time              `json:"exported_at"`
}

// Exporter fans a result out to the configured sinks. Either sink may be nil.
type Exporter struct {
	blobs  BlobStore
	pub    Publisher
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// New builds an Exporter. prefix is prepended to every object path.
func New(blobs BlobStore, pub Publisher, prefix string, logger *zap.Logger) *Exporter {
	return &Exporter{
		blobs:  blobs,
		pub:    pub,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Enabled reports whether any sink is configured.
func (e *Exporter) Enabled() bool {
	return e != nil && (e.blobs != nil || e.pub != nil)
}

// ObjectPath returns where the document for runID is written.
func (e *Exporter) ObjectPath(rawURL, runID string) string {
	return path.Join(e.prefix, pathDomain(rawURL), runID+".json")
}

// Export writes res as JSON and publishes a Notification referencing it.
func (e *Exporter) Export(ctx context.Context, runID string, res *extractor.Result) (Notification, error) {
	if res == nil {
		return Notification{}, errors.New("result is required")
	}
	if strings.TrimSpace(runID) == "" {
		return Notification{}, errors.New("run id is required")
	}

	note := Notification{
		RunID:      runID,
		URL:        res.URL(),
		Domain:     urlnorm.Domain(res.URL()),
		Mode:       res.Mode(),
		Emails:     res.Len(),
		Categories: make(map[email.Category]int),
		ExportedAt: e.now().UTC(),
	}
	for cat, addrs := range res.ByCategory() {
		note.Categories[cat] = len(addrs)
	}
	if !e.Enabled() {
		return note, nil
	}

	if e.blobs != nil {
		body, err := json.Marshal(res)
		if err != nil {
			return note, fmt.Errorf("marshal result: %w", err)
		}
		objectPath := e.ObjectPath(res.URL(), runID)
		uri, err := e.blobs.PutObject(ctx, objectPath, contentTypeJSON, bytes.NewReader(body))
		if err != nil {
			return note, fmt.Errorf("put object %s: %w", objectPath, err)
		}
		note.BlobURI = uri
	}

	if e.pub != nil {
		attrs := map[string]string{
			"run_id": runID,
			"domain": note.Domain,
			"mode":   string(note.Mode),
		}
		msgID, err := e.pub.Publish(ctx, attrs, note)
		if err != nil {
			return note, fmt.Errorf("publish notification: %w", err)
		}
		e.logger.Debug("run notification published",
			zap.String("run_id", runID),
			zap.String("message_id", msgID),
		)
	}

	e.logger.Info("run exported",
		zap.String("run_id", runID),
		zap.String("url", note.URL),
		zap.String("blob_uri", note.BlobURI),
		zap.Int("emails", note.Emails),
	)
	return note, nil
}

func pathDomain(rawURL string) string {
	d := urlnorm.Domain(rawURL)
	d = strings.NewReplacer(":", "_", "[", "", "]", "").Replace(d)
	if d == "" {
		return "unknown"
	}
	return d
}
