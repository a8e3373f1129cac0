package library

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/samplebank/internal/sample"
)

// DiskLoader reads cluster bytes out of registered backing readers and
// owns the background load queue. It implements sample.Loader.
//
// Synchronous loads and queue mutation may come from any goroutine; the
// queue is only drained from the bank owner's RunPending.
type DiskLoader struct {
	logger *log.Logger

	mu      sync.Mutex
	backing map[*sample.Sample]io.ReaderAt
	queue   []loadJob
	stats   QueueStats
}

type loadJob struct {
	sample  *sample.Sample
	cluster *sample.Cluster
}

// QueueStats tracks background load traffic.
type QueueStats struct {
	TotalEnqueued  uint64
	TotalLoaded    uint64
	TotalCancelled uint64
	TotalFailed    uint64
	CurrentSize    int
	PeakSize       int
}

// NewDiskLoader creates an empty loader.
func NewDiskLoader(logger *log.Logger) *DiskLoader {
	return &DiskLoader{
		logger:  logger,
		backing: make(map[*sample.Sample]io.ReaderAt),
	}
}

// Register attaches a backing reader to a sample. Loads for unregistered
// samples fail.
func (d *DiskLoader) Register(s *sample.Sample, r io.ReaderAt) {
	d.mu.Lock()
	d.backing[s] = r
	d.mu.Unlock()
}

// Unregister detaches a sample's backing reader and drops its queued
// loads.
func (d *DiskLoader) Unregister(s *sample.Sample) {
	d.mu.Lock()
	delete(d.backing, s)
	kept := d.queue[:0]
	for _, job := range d.queue {
		if job.sample == s {
			d.stats.TotalCancelled++
			continue
		}
		kept = append(kept, job)
	}
	d.queue = kept
	d.stats.CurrentSize = len(d.queue)
	d.mu.Unlock()
}

// LoadCluster implements sample.Loader. The cluster's buffer covers its
// nominal span plus overlap bytes; a short read at the file's tail
// zero-fills the remainder.
func (d *DiskLoader) LoadCluster(s *sample.Sample, c *sample.Cluster) error {
	d.mu.Lock()
	r, ok := d.backing[s]
	d.mu.Unlock()
	if !ok {
		return ErrNoBackingFile
	}

	buf := c.Data()
	off := int64(c.Index) << s.ClusterSizeMagnitude()
	n, err := r.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading cluster %d of %s: %w", c.Index, s.Name, err)
	}
	clear(buf[n:])
	return nil
}

// EnqueueLoad implements sample.Loader.
func (d *DiskLoader) EnqueueLoad(s *sample.Sample, c *sample.Cluster) {
	d.mu.Lock()
	d.queue = append(d.queue, loadJob{sample: s, cluster: c})
	d.stats.TotalEnqueued++
	d.stats.CurrentSize = len(d.queue)
	if d.stats.CurrentSize > d.stats.PeakSize {
		d.stats.PeakSize = d.stats.CurrentSize
	}
	d.mu.Unlock()
}

// CancelLoad implements sample.Loader.
func (d *DiskLoader) CancelLoad(c *sample.Cluster) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, job := range d.queue {
		if job.cluster == c {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			d.stats.TotalCancelled++
			d.stats.CurrentSize = len(d.queue)
			return true
		}
	}
	return false
}

// RunPending performs up to max queued loads (all of them when max <= 0)
// and returns how many completed. Called from the bank owner's
// checkpoint; the engine never sees a cluster flip to loaded mid-read.
func (d *DiskLoader) RunPending(max int) int {
	done := 0
	for max <= 0 || done < max {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			break
		}
		job := d.queue[0]
		d.queue = d.queue[1:]
		d.stats.CurrentSize = len(d.queue)
		d.mu.Unlock()

		if err := d.LoadCluster(job.sample, job.cluster); err != nil {
			d.mu.Lock()
			d.stats.TotalFailed++
			d.mu.Unlock()
			d.logger.Warn("background load failed",
				"sample", job.sample.Name, "cluster", job.cluster.Index, "err", err)
			job.sample.MarkAsUnloadable()
			continue
		}
		job.sample.MarkLoaded(job.cluster)
		done++
		d.mu.Lock()
		d.stats.TotalLoaded++
		d.mu.Unlock()
	}
	return done
}

// Stats returns a snapshot of queue counters.
func (d *DiskLoader) Stats() QueueStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
