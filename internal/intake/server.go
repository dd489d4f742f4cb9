package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clipforge/internal/config"
	"clipforge/internal/fileutil"
	"clipforge/internal/logging"
	"clipforge/internal/pipeline"
	"clipforge/internal/queue"
)

// maxFieldBytes caps text form fields; anything bigger is not a title.
const maxFieldBytes = 4 * 1024

// Submitter accepts upload requests for asynchronous rendering.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) (*queue.Job, error)
}

// Server is the upload-facing HTTP server.
type Server struct {
	cfg      *config.Config
	pipeline Submitter
	logger   *slog.Logger

	listener net.Listener
	server   *http.Server
}

// NewServer wires the router and middleware around the given pipeline.
func NewServer(cfg *config.Config, submitter Submitter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		pipeline: submitter,
		logger:   logger.With(logging.String("component", "intake")),
	}

	router := mux.NewRouter()
	router.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Use(requestLogger(logger), collectMetrics())

	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// Uploads can be large; the body read timeout has to cover them.
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the configured HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the configured address and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Paths.Bind)
	if err != nil {
		return fmt.Errorf("intake listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("intake server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("intake server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, draining in-flight requests briefly.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type uploadResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// handleUpload streams multipart uploads into the scratch directory and hands
// the resulting clip set to the pipeline. The response goes out as soon as the
// job is queued; render progress is reported on the delivery channel, not here.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}

	var (
		title     string
		startTime *float64
		endTime   *float64
		clips     []pipeline.ClipUpload
	)
	cleanupClips := func() {
		for _, clip := range clips {
			if _, err := fileutil.RemoveIfExists(clip.Path); err != nil {
				s.logger.Warn("upload scratch removal failed", logging.Error(err))
			}
		}
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanupClips()
			s.writeError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}

		switch part.FormName() {
		case "title":
			title, err = readField(part)
		case "startTime":
			startTime, err = readSecondsField(part)
		case "endTime":
			endTime, err = readSecondsField(part)
		case "videos":
			if len(clips) >= s.cfg.Intake.MaxFiles {
				cleanupClips()
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("too many files, limit is %d", s.cfg.Intake.MaxFiles))
				return
			}
			var clip pipeline.ClipUpload
			clip, err = s.saveClip(part)
			if err == nil {
				clips = append(clips, clip)
			} else if errors.Is(err, errFileTooLarge) {
				cleanupClips()
				s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file %q exceeds the %d byte limit", part.FileName(), s.cfg.Intake.MaxFileBytes))
				return
			}
		default:
			// Unknown fields are drained and ignored.
			_, err = io.Copy(io.Discard, part)
		}
		if err != nil {
			cleanupClips()
			s.logger.Warn("upload part failed", logging.Error(err))
			s.writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
	}

	if len(clips) == 0 {
		s.writeError(w, http.StatusBadRequest, "no video files in upload")
		return
	}

	req := pipeline.Request{Title: strings.TrimSpace(title), Clips: clips}
	// Trim bounds only mean anything for a single clip.
	if len(clips) == 1 {
		req.TrimStart = startTime
		req.TrimEnd = endTime
	}

	job, err := s.pipeline.Submit(r.Context(), req)
	if err != nil {
		cleanupClips()
		s.logger.Error("job submission failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to queue job")
		return
	}

	s.logger.Info("upload accepted",
		logging.String("job_id", job.ID),
		logging.Int("clips", len(clips)),
		logging.Bool("trim", job.TrimWindowSet()),
	)
	s.writeJSON(w, http.StatusAccepted, uploadResponse{JobID: job.ID, Status: string(job.Status)})
}

var errFileTooLarge = errors.New("file exceeds per-file limit")

// saveClip streams one uploaded file into the scratch directory, enforcing
// the per-file size cap as it copies.
func (s *Server) saveClip(part *multipart.Part) (pipeline.ClipUpload, error) {
	path := fileutil.ScratchName(s.cfg.Paths.TempDir, "clip", part.FileName())
	dst, err := createScratchFile(path)
	if err != nil {
		return pipeline.ClipUpload{}, err
	}

	written, err := io.Copy(dst, io.LimitReader(part, s.cfg.Intake.MaxFileBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.cfg.Intake.MaxFileBytes {
		err = errFileTooLarge
	}
	if err != nil {
		if _, removeErr := fileutil.RemoveIfExists(path); removeErr != nil {
			s.logger.Warn("upload scratch removal failed", logging.Error(removeErr))
		}
		return pipeline.ClipUpload{}, err
	}

	return pipeline.ClipUpload{
		Path:      path,
		Filename:  part.FileName(),
		SizeBytes: written,
	}, nil
}

func createScratchFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readSecondsField parses an optional numeric field. A value that does not
// parse is treated as absent rather than rejected; the planner already treats
// an incomplete window as no trim request.
func readSecondsField(part *multipart.Part) (*float64, error) {
	raw, err := readField(part)
	if err != nil {
		return nil, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, nil
	}
	return &value, nil
}
