// Package download materializes a model's file set from its remote origin
// onto disk. One download may be in flight per process; it is preemptible
// through a single shared cancellation token. A crash mid-transfer never
// presents a complete model: files are streamed to a temp path and renamed
// into place only when fully received, with their size recorded in the
// asset store's manifest.
package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lingolens/internal/assets"
	"lingolens/pkg/types"
)

const (
	// Connect/header timeouts are short; the overall receive timeout is
	// generous because single files run to multiple gigabytes.
	dialTimeout    = 30 * time.Second
	headerTimeout  = 60 * time.Second
	receiveTimeout = 30 * time.Minute

	// Progress ticks are throttled so a fast local transfer cannot flood
	// the UI channel. File-boundary ticks are always delivered.
	progressInterval = 100 * time.Millisecond

	copyBufSize = 128 * 1024
)

// DefaultBaseURL is the public model hosting origin used when a descriptor
// does not name its own.
const DefaultBaseURL = "https://huggingface.co"

// Callbacks receives download lifecycle notifications. Any field may be nil.
type Callbacks struct {
	OnProgress func(types.ModelDownloadState)
	OnComplete func(modelID string)
	OnError    func(modelID string, err error)
}

// Manager performs model downloads against an asset store.
type Manager struct {
	store    *assets.Store
	client   *http.Client
	baseURL  string
	clientID string
	log      zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc // single shared cancellation token
	activeID string
	states   map[string]types.ModelDownloadState
}

func NewManager(store *assets.Store, baseURL, clientID string, log zerolog.Logger) *Manager {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
		ResponseHeaderTimeout: headerTimeout,
	}
	return &Manager{
		store:    store,
		client:   &http.Client{Transport: transport, Timeout: receiveTimeout},
		baseURL:  baseURL,
		clientID: clientID,
		log:      log,
		states:   make(map[string]types.ModelDownloadState),
	}
}

// State returns the current download snapshot for a model, creating a
// default one on first query. Models already complete on disk report
// Downloaded even if this process never transferred them.
func (m *Manager) State(d types.ModelDescriptor) types.ModelDownloadState {
	m.mu.Lock()
	st, ok := m.states[d.ID]
	m.mu.Unlock()
	if ok {
		return st
	}
	st = types.ModelDownloadState{
		ModelID:    d.ID,
		Status:     types.DownloadNotStarted,
		FilesTotal: len(d.Files),
	}
	if m.store.IsDownloaded(d) {
		st.Status = types.DownloadDone
		st.Progress = 1.0
		st.FilesDone = len(d.Files)
	}
	m.mu.Lock()
	m.states[d.ID] = st
	m.mu.Unlock()
	return st
}

// Active reports the id of the model currently transferring, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID, m.cancel != nil
}

// Cancel signals the shared cancellation token and clears it. Safe to call
// when nothing is downloading.
func (m *Manager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Download fetches every missing file of the descriptor, in listed order.
// It blocks until the whole set is on disk, the context or shared token is
// cancelled, or a per-file transfer fails. Files already complete are
// skipped with a progress jump past their slot. A per-file failure removes
// the partial file and fails the whole download; the caller restarts from
// scratch, which skips the files that did land.
func (m *Manager) Download(ctx context.Context, d types.ModelDescriptor, cb Callbacks) error {
	m.mu.Lock()
	if m.cancel != nil {
		active := m.activeID
		m.mu.Unlock()
		return downloadActiveError{active: active, requested: d.ID}
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.activeID = d.ID
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		if m.activeID == d.ID {
			m.cancel = nil
			m.activeID = ""
		}
		m.mu.Unlock()
	}()

	dir := m.store.ModelDir(d)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		err = fmt.Errorf("create model dir: %w", err)
		m.fail(d, cb, err)
		return err
	}

	totalFiles := len(d.Files)
	m.log.Info().Str("model", d.ID).Int("files", totalFiles).Msg("download start")
	done := 0
	for i, name := range d.Files {
		target := filepath.Join(dir, name)
		if m.fileComplete(d, name, target) {
			done++
			m.tick(d, cb, types.ModelDownloadState{
				ModelID:    d.ID,
				Status:     types.DownloadInProgress,
				Progress:   float64(i+1) / float64(totalFiles),
				FilesDone:  done,
				FilesTotal: totalFiles,
			})
			continue
		}
		size, err := m.fetchFile(ctx, d, i, name, target, done, cb)
		if err != nil {
			m.fail(d, cb, err)
			return err
		}
		if err := m.store.RecordFileSize(d, name, size); err != nil {
			m.log.Warn().Err(err).Str("model", d.ID).Str("file", name).Msg("manifest write failed")
		}
		done++
		downloadFilesTotal.WithLabelValues(d.ID).Inc()
		m.tick(d, cb, types.ModelDownloadState{
			ModelID:    d.ID,
			Status:     types.DownloadInProgress,
			Progress:   float64(i+1) / float64(totalFiles),
			FilesDone:  done,
			FilesTotal: totalFiles,
		})
	}

	final := types.ModelDownloadState{
		ModelID:    d.ID,
		Status:     types.DownloadDone,
		Progress:   1.0,
		FilesDone:  totalFiles,
		FilesTotal: totalFiles,
	}
	m.setState(final)
	if cb.OnProgress != nil {
		cb.OnProgress(final)
	}
	if cb.OnComplete != nil {
		cb.OnComplete(d.ID)
	}
	m.log.Info().Str("model", d.ID).Msg("download complete")
	return nil
}

// fileComplete mirrors the asset store's per-file rule: present on disk
// and, when a manifest size is recorded, exactly that size.
func (m *Manager) fileComplete(d types.ModelDescriptor, name, target string) bool {
	fi, err := os.Stat(target)
	if err != nil {
		return false
	}
	if want, ok := m.store.ManifestSize(d, name); ok {
		return fi.Size() == want
	}
	return true
}

func (m *Manager) fetchFile(ctx context.Context, d types.ModelDescriptor, idx int, name, target string, done int, cb Callbacks) (int64, error) {
	base := d.BaseURL
	if base == "" {
		base = m.baseURL
	}
	url := fmt.Sprintf("%s/%s/resolve/main/%s", base, d.OriginRepo, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", m.clientID)
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: unexpected status %s", name, resp.Status)
	}

	tmp := target + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	// A failed or cancelled transfer leaves no partial file behind.
	defer os.Remove(tmp)

	totalFiles := len(d.Files)
	fileTotal := resp.ContentLength
	limiter := rate.NewLimiter(rate.Every(progressInterval), 1)
	var got int64
	buf := make([]byte, copyBufSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return 0, werr
			}
			got += int64(n)
			downloadBytesTotal.WithLabelValues(d.ID).Add(float64(n))
			// Byte-level ticks only when the remote reported a total;
			// otherwise mid-file progress is suppressed entirely rather
			// than propagating a bogus fraction.
			if fileTotal > 0 && limiter.Allow() {
				m.tick(d, cb, types.ModelDownloadState{
					ModelID:     d.ID,
					Status:      types.DownloadInProgress,
					Progress:    (float64(idx) + float64(got)/float64(fileTotal)) / float64(totalFiles),
					CurrentFile: name,
					FilesDone:   done,
					FilesTotal:  totalFiles,
				})
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("fetch %s: %w", name, rerr)
		}
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, target); err != nil {
		return 0, err
	}
	return got, nil
}

func (m *Manager) tick(d types.ModelDescriptor, cb Callbacks, st types.ModelDownloadState) {
	m.setState(st)
	if cb.OnProgress != nil {
		cb.OnProgress(st)
	}
}

func (m *Manager) fail(d types.ModelDescriptor, cb Callbacks, err error) {
	downloadFailuresTotal.WithLabelValues(d.ID).Inc()
	m.log.Warn().Err(err).Str("model", d.ID).Msg("download failed")
	st := types.ModelDownloadState{
		ModelID:    d.ID,
		Status:     types.DownloadFailed,
		FilesTotal: len(d.Files),
		LastError:  err.Error(),
	}
	m.setState(st)
	if cb.OnProgress != nil {
		cb.OnProgress(st)
	}
	if cb.OnError != nil {
		cb.OnError(d.ID, err)
	}
}

func (m *Manager) setState(st types.ModelDownloadState) {
	m.mu.Lock()
	m.states[st.ModelID] = st
	m.mu.Unlock()
}
