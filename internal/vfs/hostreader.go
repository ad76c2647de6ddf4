package vfs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pi-agent/pi-exthost/internal/hostcall"
	"github.com/pi-agent/pi-exthost/internal/logging"
	"github.com/pi-agent/pi-exthost/internal/pkg/fsutil"
)

// OSHostReader builds the hostRead callback New expects, projecting
// recognized text assets from the real filesystem under root. Each successful read is fingerprinted with
// fsutil.HashFile and logged once per distinct hash so repeated reads of an
// unchanged file produce a single audit line rather than one per call.
func OSHostReader(root string) func(hostPath string) ([]byte, error) {
	r := &osHostReader{root: root, seen: map[string]string{}}
	return r.read
}

type osHostReader struct {
	root string

	mu   sync.Mutex
	seen map[string]string // host path -> last logged content hash
}

func (r *osHostReader) read(hostPath string) ([]byte, error) {
	full := filepath.Join(r.root, hostPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	hash, hashErr := fsutil.HashFile(full)
	if hashErr == nil {
		r.mu.Lock()
		changed := r.seen[hostPath] != hash
		r.seen[hostPath] = hash
		r.mu.Unlock()
		if changed {
			logging.Default().Log("info", "vfs.hostRead", "host text asset read", hostcall.Correlation{}, map[string]any{
				"path": hostPath,
				"hash": hash,
			})
		}
	}

	return data, nil
}
