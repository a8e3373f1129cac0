package library

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/samplebank/internal/arena"
	"github.com/dgnsrekt/samplebank/internal/sample"
	"github.com/dgnsrekt/samplebank/internal/wavfile"
)

// DefaultArenaSize is the memory pool shared by a bank's samples.
const DefaultArenaSize = 64 << 20

// Options configures a bank.
type Options struct {
	// ArenaSize is the shared pool in bytes. Defaults to DefaultArenaSize.
	ArenaSize int
	// ClusterSizeMagnitude overrides the engine's cluster size.
	ClusterSizeMagnitude int
	// MaxRenderCacheBytes overrides the render cache ceiling.
	MaxRenderCacheBytes int
	// Watch enables marking samples unloadable when their files go away.
	Watch bool
	// Logger defaults to log.Default().
	Logger *log.Logger
}

type bankEntry struct {
	sample *sample.Sample
	closer io.Closer // nil for in-memory backing
	path   string
}

// Bank is a registry of open samples sharing one arena, one loader and
// one engine configuration. A Bank is owned by a single goroutine; only
// the loader queue and watcher buffer tolerate other goroutines.
type Bank struct {
	arena   *arena.Arena
	loader  *DiskLoader
	watcher *Watcher
	cfg     *sample.Config
	logger  *log.Logger

	samples map[string]*bankEntry
}

// NewBank creates a bank with its arena and loader.
func NewBank(opts Options) (*Bank, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	size := opts.ArenaSize
	if size == 0 {
		size = DefaultArenaSize
	}

	a, err := arena.New(arena.Config{Size: size, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("creating arena: %w", err)
	}

	loader := NewDiskLoader(logger)
	b := &Bank{
		arena:  a,
		loader: loader,
		logger: logger,
		cfg: &sample.Config{
			Arena:                a,
			Loader:               loader,
			ClusterSizeMagnitude: opts.ClusterSizeMagnitude,
			MaxRenderCacheBytes:  opts.MaxRenderCacheBytes,
			Logger:               logger,
		},
		samples: make(map[string]*bankEntry),
	}

	if opts.Watch {
		w, err := NewWatcher(logger)
		if err != nil {
			return nil, fmt.Errorf("starting watcher: %w", err)
		}
		b.watcher = w
	}
	return b, nil
}

// Open loads a sample's header and registers it. Opening an
// already-open path returns the existing sample. Files ending in .zst
// are decompressed into memory; plain files are streamed from disk.
func (b *Bank) Open(path string) (*sample.Sample, error) {
	if entry, ok := b.samples[path]; ok {
		return entry.sample, nil
	}

	var (
		info   wavfile.Info
		reader io.ReaderAt
		closer io.Closer
	)
	if strings.HasSuffix(path, ".zst") {
		raw, err := readCompressed(path)
		if err != nil {
			return nil, err
		}
		info, err = wavfile.ReadInfo(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		info, err = wavfile.ReadInfo(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		reader = f
		closer = f
	}

	s, err := sample.New(b.cfg, sample.Metadata{
		Name:                 filepath.Base(path),
		SampleRate:           info.SampleRate,
		NumChannels:          info.NumChannels,
		ByteDepth:            info.ByteDepth(),
		FileSizeBytes:        info.FileSize,
		AudioDataStartBytes:  info.AudioDataStart,
		AudioDataLengthBytes: info.AudioDataLength,
	})
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	b.loader.Register(s, reader)
	if b.watcher != nil && closer != nil {
		if err := b.watcher.Add(path); err != nil {
			b.logger.Warn("cannot watch sample file", "path", path, "err", err)
		}
	}

	b.samples[path] = &bankEntry{sample: s, closer: closer, path: path}
	b.logger.Debug("sample opened", "path", path,
		"lengthMs", s.LengthMSec(), "clusters", s.NumClusters())
	return s, nil
}

// Get returns an open sample.
func (b *Bank) Get(path string) (*sample.Sample, error) {
	entry, ok := b.samples[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownSample)
	}
	return entry.sample, nil
}

// CloseSample releases one sample's memory and backing file.
func (b *Bank) CloseSample(path string) error {
	entry, ok := b.samples[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrUnknownSample)
	}
	b.closeEntry(entry)
	delete(b.samples, path)
	return nil
}

func (b *Bank) closeEntry(entry *bankEntry) {
	b.loader.Unregister(entry.sample)
	entry.sample.Release()
	if entry.closer != nil {
		entry.closer.Close()
		if b.watcher != nil {
			b.watcher.Remove(entry.path)
		}
	}
}

// RunPending is the bank's cooperative checkpoint: it applies buffered
// media-removal events, then performs up to max background loads.
func (b *Bank) RunPending(max int) int {
	if b.watcher != nil {
		for _, path := range b.watcher.Drain() {
			if entry, ok := b.samples[path]; ok {
				entry.sample.MarkAsUnloadable()
			}
		}
	}
	return b.loader.RunPending(max)
}

// Arena exposes the shared arena for stats and direct allocation.
func (b *Bank) Arena() *arena.Arena { return b.arena }

// QueueStats returns the load queue counters.
func (b *Bank) QueueStats() QueueStats { return b.loader.Stats() }

// Len returns how many samples are open.
func (b *Bank) Len() int { return len(b.samples) }

// Close releases every sample and stops the watcher.
func (b *Bank) Close() error {
	for path, entry := range b.samples {
		b.closeEntry(entry)
		delete(b.samples, path)
	}
	if b.watcher != nil {
		return b.watcher.Close()
	}
	return nil
}

// readCompressed decompresses a zstd-compressed sample fully into
// memory. Compressed samples cannot be streamed cluster-by-cluster.
func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return raw, nil
}
