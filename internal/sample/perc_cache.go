package sample

import (
	"fmt"
	"math"

	"github.com/dgnsrekt/samplebank/internal/arena"
)

// percCache holds one direction's percussive envelope: the list of
// already-computed zones plus the storage the envelope bytes live in.
// Short samples use a single flat buffer allocated once; long ones use a
// second table of stealable derived clusters. The choice is made on first
// fill and is stable thereafter.
type percCache struct {
	zones    []percZone
	flat     *arena.Block
	clusters []*Cluster
}

// PercPinner is the consumer-side contract for holding envelope data
// resident during real-time reads. FillPercCache pins every derived
// cluster the caller will touch through it; the caller releases the pins
// when it moves on.
type PercPinner interface {
	// RememberPercCluster pins a derived cluster for the consumer. A
	// cluster already remembered must not be pinned twice.
	RememberPercCluster(c *Cluster)
	// ReleaseLookahead drops provisional pins that were only held while
	// looking ahead for the next splice point.
	ReleaseLookahead()
}

// PercView is a readable window of envelope bytes plus the validity
// bounds around the requested position, in envelope-byte units.
type PercView struct {
	// Data holds envelope bytes; index with pos-DataStart.
	Data      []byte
	DataStart int
	// EarliestPos and LatestPos bound the positions Data answers for.
	EarliestPos int
	LatestPos   int
}

// ByteAt returns the envelope byte for a pixellated position.
func (v PercView) ByteAt(pos int) uint8 { return v.Data[pos-v.DataStart] }

func percClusterType(dir Direction) ClusterType {
	if dir == Reversed {
		return ClusterPercReversed
	}
	return ClusterPercForward
}

// percReducedLength is the envelope length in bytes: one byte per
// reduction window, never less than one.
func (s *Sample) percReducedLength() int {
	n := ((s.LengthInSamples - 1) >> percReductionMagnitude) + 1
	if n < 1 {
		n = 1
	}
	return n
}

// pastWaveformEnd reports whether pos is already beyond the waveform in
// the given direction.
func (s *Sample) pastWaveformEnd(pos int, dir Direction) bool {
	if dir == Forward {
		return pos >= s.LengthInSamples
	}
	return pos < 0
}

// avoidOwnClusters keeps a steal triggered by this sample's own
// allocations away from this sample's blocks: stealing one of its perc
// clusters would re-enter the zone list mid-mutation, and stealing the
// source cluster being read would yank the bytes out from under the fill.
func (s *Sample) avoidOwnClusters(b *arena.Block) bool {
	c, ok := b.Owner().(*Cluster)
	return ok && c.sample == s
}

// FillPercCache ensures the percussive envelope covers [startPos,endPos)
// in the playback direction, computing at most maxSamples source samples
// of it this call. Already-covered spans are pinned through the pinner
// instead of recomputed; a fill that would start within zoneCoalesceSlack
// samples of an existing zone's end resumes that zone. Returns
// ErrInsufficientRAM when a needed destination cluster cannot be
// allocated; the caller plays on without the envelope and retries later.
func (s *Sample) FillPercCache(pinner PercPinner, startPos, endPos int, dir Direction, maxSamples int) error {
	if s.pastWaveformEnd(startPos, dir) {
		return nil
	}

	if !s.enterPercLock("FillPercCache") {
		return nil
	}
	defer s.exitPercLock()

	pc := &s.perc[dir.index()]
	if err := s.ensurePercStorage(pc, dir); err != nil {
		return err
	}

	i, satisfied, startPos, err := s.locatePercZone(pinner, pc, startPos, endPos, dir)
	if satisfied || err != nil {
		return err
	}

	z := &pc.zones[i]
	endPos, nextLimit, willHitNext := s.clampPercFill(pc, i, startPos, endPos, dir, maxSamples)

	completed, fillErr := s.extendPercZone(pinner, pc, z, startPos, endPos, dir)
	if completed {
		d := int(dir)
		z.replaceLen = (z.end - z.start) * d
		if z.replaceLen < minReplaceLen {
			z.replaceLen = minReplaceLen
		}
		if willHitNext {
			i = s.mergePercZones(pc, i, endPos, nextLimit, dir)
		}
	}

	// Whatever happened, never leave a zero-length zone behind.
	if i >= 0 && i < len(pc.zones) && pc.zones[i].end == pc.zones[i].start {
		pc.zones = deleteZones(pc.zones, i, 1)
	}
	s.checkZoneOrder(dir)
	return fillErr
}

// ensurePercStorage sets up the envelope's backing store on first use:
// cluster-table for long samples, one flat buffer otherwise.
func (s *Sample) ensurePercStorage(pc *percCache, dir Direction) error {
	reduced := s.percReducedLength()
	if reduced >= s.cfg.clusterSize()>>1 {
		if pc.clusters == nil {
			s.percNumClusters = ((reduced - 1) >> s.cfg.ClusterSizeMagnitude) + 1
			pc.clusters = make([]*Cluster, s.percNumClusters)
		}
		return nil
	}
	if pc.flat == nil {
		block, err := s.cfg.Arena.Allocate(reduced, arena.AllocOptions{
			Kind:          percClusterType(dir).blockKind(),
			AllowStealing: true,
			Avoid:         s.avoidOwnClusters,
		})
		if err != nil {
			return ErrInsufficientRAM
		}
		pc.flat = block
	}
	return nil
}

// locatePercZone finds the zone to resume, applying the coalescing rule:
// a zone whose end is within zoneCoalesceSlack of startPos (against the
// playback direction) is resumed from its actual end. When the zone
// already reaches endPos the needed clusters are pinned and the request
// is satisfied with no computation. Otherwise returns the index of the
// zone to extend, inserting a fresh one if needed.
func (s *Sample) locatePercZone(pinner PercPinner, pc *percCache, startPos, endPos int, dir Direction) (i int, satisfied bool, resumePos int, err error) {
	d := int(dir)
	if dir == Forward {
		i = zoneSearchLT(pc.zones, startPos+1)
	} else {
		i = zoneSearchGE(pc.zones, startPos)
	}

	if i >= 0 && i < len(pc.zones) {
		z := &pc.zones[i]
		if (z.end-startPos)*d >= -zoneCoalesceSlack {
			// Resume from the zone's actual end; that is where data is
			// still guaranteed to exist. It can sit one past the
			// waveform, in which case there is nothing left to do.
			startPos = z.end
			if s.pastWaveformEnd(startPos, dir) {
				return i, true, startPos, nil
			}

			startClusterIndex := -1
			if pc.clusters != nil {
				startClusterIndex = startPos >> (s.cfg.ClusterSizeMagnitude + percReductionMagnitude)
				if startClusterIndex >= s.percNumClusters {
					s.cfg.Fatal(FatalPercIndexRange,
						fmt.Sprintf("perc cluster %d of %d at pos %d", startClusterIndex, s.percNumClusters, startPos))
					return i, true, startPos, nil
				}
				if here := pc.clusters[startClusterIndex]; here != nil {
					pinner.RememberPercCluster(here)
				} else if startPos&((1<<(s.cfg.ClusterSizeMagnitude+percReductionMagnitude))-1) != 0 {
					// Only the very start of an unallocated cluster may
					// be covered; anywhere else the steal path should
					// have trimmed the zone already.
					s.cfg.Fatal(FatalPercStaleCoverage,
						fmt.Sprintf("%s zone of %s covers pos %d with no cluster", dir, s.Name, startPos))
					return i, true, startPos, nil
				}
			}

			// Already extends past the requested end: pin and be done.
			if (z.end-endPos)*d >= 0 {
				if pc.clusters != nil {
					endClusterIndex := (endPos - d) >> (s.cfg.ClusterSizeMagnitude + percReductionMagnitude)
					if endClusterIndex != startClusterIndex {
						if endClusterIndex >= s.percNumClusters {
							s.cfg.Fatal(FatalPercIndexRange,
								fmt.Sprintf("perc cluster %d of %d at end pos %d", endClusterIndex, s.percNumClusters, endPos))
							return i, true, startPos, nil
						}
						if pc.clusters[endClusterIndex] == nil {
							s.cfg.Fatal(FatalPercStaleCoverage,
								fmt.Sprintf("%s zone of %s covers end pos %d with no cluster", dir, s.Name, endPos))
							return i, true, startPos, nil
						}
						pinner.RememberPercCluster(pc.clusters[endClusterIndex])
					}
				}
				// The span is secured in RAM now; lookahead pins on the
				// source clusters are no longer needed.
				pinner.ReleaseLookahead()
				return i, true, startPos, nil
			}

			return i, false, startPos, nil
		}
	}

	// No zone to resume: mint one at startPos.
	if dir == Forward {
		i++
	}
	pc.zones = insertZone(pc.zones, i, percZone{start: startPos, end: startPos})
	return i, false, startPos, nil
}

// clampPercFill bounds the requested end position: to the waveform, to
// the per-call sample budget, and to the next zone's replaceable lead-in
// so its settled data is never overwritten.
func (s *Sample) clampPercFill(pc *percCache, i, startPos, endPos int, dir Direction, maxSamples int) (clamped, nextLimit int, willHitNext bool) {
	d := int(dir)
	if dir == Forward {
		if endPos > s.LengthInSamples {
			endPos = s.LengthInSamples
		}
	} else {
		if endPos < -1 {
			endPos = -1
		}
	}

	if budget := startPos + maxSamples*d; (endPos-budget)*d >= 0 {
		endPos = budget
	}

	iNext := i + d
	if iNext >= 0 && iNext < len(pc.zones) {
		next := &pc.zones[iNext]
		if (endPos-next.start)*d >= 0 {
			willHitNext = true
			nextLimit = next.start + next.replaceLen*d
			if (endPos-nextLimit)*d >= 0 {
				endPos = nextLimit
			}
		}
	}
	return endPos, nextLimit, willHitNext
}

// extendPercZone runs the envelope computation from the zone's end to
// endPos: per source sample a rectified delta through the low-pass
// cascade, one compressed byte out per reduction window, crossing source
// and destination cluster boundaries as needed. Stops early, reporting
// completed=false, when a source cluster is not resident or a destination
// cluster cannot be allocated.
func (s *Sample) extendPercZone(pinner PercPinner, pc *percCache, z *percZone, startPos, endPos int, dir Direction) (completed bool, err error) {
	d := int(dir)
	bytesPerSample := s.BytesPerSample()
	posIncrement := bytesPerSample * d
	cs := s.cfg.clusterSize()
	mag := s.cfg.ClusterSizeMagnitude

	numSamples := (endPos - startPos) * d
	if numSamples <= 0 {
		return true, nil
	}
	srcBytePos := s.AudioDataStartBytes + startPos*bytesPerSample

	for numSamples > 0 {
		chunk := numSamples

		srcClusterIndex := srcBytePos >> mag
		if srcClusterIndex >= s.firstClusterIndexWithNoAudioData() || srcClusterIndex < s.firstClusterIndexWithAudioData() {
			return false, nil
		}

		var dest []byte
		destStart := 0 // global envelope index of dest[0]
		if pc.clusters != nil {
			percClusterIndex := startPos >> (mag + percReductionMagnitude)
			if percClusterIndex >= s.percNumClusters {
				s.cfg.Fatal(FatalPercIndexRange,
					fmt.Sprintf("perc cluster %d of %d at pos %d", percClusterIndex, s.percNumClusters, startPos))
				return false, nil
			}
			if pc.clusters[percClusterIndex] == nil {
				c, allocErr := s.allocateCluster(percClusterType(dir), percClusterIndex, true, s.avoidOwnClusters)
				if allocErr != nil {
					return false, ErrInsufficientRAM
				}
				pc.clusters[percClusterIndex] = c
				c.Loaded = true
			}
			pinner.RememberPercCluster(pc.clusters[percClusterIndex])
			dest = pc.clusters[percClusterIndex].Data()
			destStart = percClusterIndex << mag

			posWithinBig := startPos & (cs<<percReductionMagnitude - 1)
			var destLeft int
			if dir == Reversed {
				destLeft = posWithinBig + 1
			} else {
				destLeft = cs<<percReductionMagnitude - posWithinBig
			}
			if chunk > destLeft {
				chunk = destLeft
			}
		} else {
			dest = pc.flat.Bytes()
		}

		// Read the resident bytes directly; going through GetCluster
		// would add a reason and kick off loads, neither wanted here.
		src := s.clusters[srcClusterIndex]
		if src == nil || !src.Loaded {
			return false, nil
		}

		bytePosWithinCluster := srcBytePos & (cs - 1)
		if dir == Reversed {
			// No overlap bytes precede a cluster: the last frame read
			// must still start at offset >= 0.
			bytesLeft := bytePosWithinCluster + bytesPerSample
			if chunk*bytesPerSample > bytesLeft {
				chunk = bytesLeft / bytesPerSample
			}
		} else {
			// One frame may run past the boundary into the cluster's
			// trailing overlap bytes.
			bytesLeft := cs - bytePosWithinCluster + bytesPerSample - 1
			if chunk*bytesPerSample > bytesLeft+bytesPerSample {
				chunk = bytesLeft / bytesPerSample
			}
		}

		// Commit progress up front so a failure on the next cluster
		// still leaves this chunk recorded.
		numSamples -= chunk
		z.end += chunk * d
		srcBytePos += chunk * posIncrement

		off := bytePosWithinCluster
		for chunk > 0 {
			segment := segmentLeft(startPos, dir)
			if segment > chunk {
				segment = chunk
			}

			var angle int32
			for k := 0; k < segment; k++ {
				v := readFrame(src.Data(), off, s.ByteDepth, s.NumChannels)
				angle = v - z.lastSampleRead
				z.lastSampleRead = v
				if angle < 0 {
					angle = -angle
				}
				for p := range z.lpf {
					z.lpf[p] += (angle - z.lpf[p]) >> angleLPFShift
					angle = z.lpf[p]
				}
				off += posIncrement
				if k != segment-1 {
					z.lastAngle = angle
				}
			}

			startPos += segment * d

			// The window's center sample is where its byte gets written.
			if startPos&(percReductionSize-1) == percReductionSize>>1-dir.index() {
				diff := angle - z.lastAngle
				if diff < 0 {
					diff = -diff
				}
				var strength int32
				if angle != 0 {
					strength = int32((uint64(uint32(diff)) * 262144 / uint64(uint32(angle))) >> 1)
				}
				dest[(startPos>>percReductionMagnitude)-destStart] = compressPercByte(strength)
			}
			z.lastAngle = angle

			chunk -= segment
		}
	}
	return true, nil
}

// segmentLeft returns how many samples remain until the current reduction
// window's write point, offset by half a window so the byte lands on the
// window's center.
func segmentLeft(pos int, dir Direction) int {
	var n int
	if dir == Reversed {
		n = (pos + 1 + percReductionSize>>1) & (percReductionSize - 1)
	} else {
		n = percReductionSize - (pos+percReductionSize>>1)&(percReductionSize-1)
	}
	if n == 0 {
		n = percReductionSize
	}
	return n
}

// mergePercZones folds the just-extended zone at index i into its
// neighbor in the playback direction: absorbed outright when the fill
// reached past the neighbor's replaceable lead-in, otherwise the neighbor
// is trimmed forward to the fill's end. Returns the surviving index of
// the extended span.
func (s *Sample) mergePercZones(pc *percCache, i, endPos, nextLimit int, dir Direction) int {
	d := int(dir)
	iNext := i + d
	next := &pc.zones[iNext]

	if (endPos-nextLimit)*d >= 0 {
		z := &pc.zones[i]
		next.start = z.start
		next.replaceLen = z.replaceLen
		pc.zones = deleteZones(pc.zones, i, 1)
		if dir == Forward {
			return i // neighbor shifted into our slot
		}
		return i - 1
	}

	next.replaceLen -= (endPos - next.start) * d
	next.start = endPos
	return i
}

// compressPercByte saturates a transient-strength value into one
// envelope byte.
func compressPercByte(v int32) uint8 {
	t := math.Tanh(float64(v) / (1 << 23))
	return uint8(t*255 + 0.5)
}

// LookupPercCache returns a readable view of the envelope around the
// given pixellated position, or ok=false when that span has not been
// computed (or was stolen and not yet recomputed). Cluster-backed views
// are clamped to one cluster.
func (s *Sample) LookupPercCache(pixellatedPos int, dir Direction) (PercView, bool) {
	pc := &s.perc[dir.index()]
	d := int(dir)

	realPos := pixellatedPos<<percReductionMagnitude + percReductionSize>>1
	var i int
	if dir == Forward {
		i = zoneSearchLT(pc.zones, realPos+1)
	} else {
		i = zoneSearchGE(pc.zones, realPos)
	}
	if i < 0 || i >= len(pc.zones) {
		return PercView{}, false
	}
	z := &pc.zones[i]
	if (z.end-realPos)*d <= 0 {
		return PercView{}, false
	}

	view := PercView{
		EarliestPos: (z.start + percReductionSize>>1*d) >> percReductionMagnitude,
		LatestPos:   (z.end - percReductionSize>>1*d) >> percReductionMagnitude,
	}

	if pc.flat != nil {
		view.Data = pc.flat.Bytes()
		return view, true
	}

	ourCluster := pixellatedPos >> s.cfg.ClusterSizeMagnitude
	if pc.clusters == nil || ourCluster >= len(pc.clusters) || pc.clusters[ourCluster] == nil {
		s.cfg.Fatal(FatalPercMissingCluster,
			fmt.Sprintf("%s zone of %s covers pixel %d with no cluster", dir, s.Name, pixellatedPos))
		return PercView{}, false
	}

	// Constrain the bounds to this cluster; a view never spans two.
	first := ourCluster << s.cfg.ClusterSizeMagnitude
	last := (ourCluster+1)<<s.cfg.ClusterSizeMagnitude - 1
	if view.EarliestPos < first {
		view.EarliestPos = first
	} else if view.EarliestPos > last {
		view.EarliestPos = last
	}
	if view.LatestPos < first {
		view.LatestPos = first
	} else if view.LatestPos > last {
		view.LatestPos = last
	}

	view.Data = pc.clusters[ourCluster].Data()
	view.DataStart = first
	return view, true
}

// percClusterStolen corrects the zone list after the arena reclaims one
// of this sample's perc clusters, so no zone claims coverage over the
// hole: a zone ending inside it is trimmed back, a zone starting inside
// it is trimmed forward, and a zone spanning straight through is split in
// two around it. Runs inside the arena's steal path.
func (s *Sample) percClusterStolen(c *Cluster) {
	if !s.enterPercLock("percClusterStolen") {
		return
	}
	defer s.exitPercLock()

	var dir Direction
	switch c.Type {
	case ClusterPercForward:
		dir = Forward
	case ClusterPercReversed:
		dir = Reversed
	default:
		s.cfg.Fatal(FatalStolenWrongType, fmt.Sprintf("%s cluster routed to perc steal handler", c.Type))
		return
	}
	d := int(dir)
	rev := dir.index()
	pc := &s.perc[rev]

	if pc.clusters == nil || c.Index >= len(pc.clusters) || pc.clusters[c.Index] != c {
		s.cfg.Fatal(FatalPercMissingCluster,
			fmt.Sprintf("stolen %s cluster %d not in table of %s", dir, c.Index, s.Name))
		return
	}
	pc.clusters[c.Index] = nil

	s.cfg.Logger.Debug("perc cluster stolen", "sample", s.Name, "direction", dir.String(), "cluster", c.Index)

	leftBorder := c.Index << (s.cfg.ClusterSizeMagnitude + percReductionMagnitude)
	rightBorder := (c.Index + 1) << (s.cfg.ClusterSizeMagnitude + percReductionMagnitude)

	laterBorder := rightBorder
	earlierBorder := leftBorder
	if dir == Reversed {
		laterBorder = leftBorder - 1
		earlierBorder = rightBorder - 1
	}

	// Trim the zone reaching into the hole from the earlier side.
	var iEarlier int
	if dir == Forward {
		iEarlier = zoneSearchLT(pc.zones, earlierBorder)
	} else {
		iEarlier = zoneSearchGE(pc.zones, earlierBorder+1)
	}
	if iEarlier >= 0 && iEarlier < len(pc.zones) {
		earlier := &pc.zones[iEarlier]
		if (earlier.end-earlierBorder)*d > 0 {
			if (earlier.end-laterBorder)*d > 0 {
				// Spans straight through: split around the hole.
				oldStart := earlier.start
				oldReplaceLen := earlier.replaceLen
				earlier.start = laterBorder
				earlier.replaceLen = 0

				iNew := iEarlier
				if dir == Reversed {
					iNew = iEarlier + 1
				}
				head := percZone{start: oldStart, end: earlierBorder, replaceLen: oldReplaceLen}
				pc.zones = insertZone(pc.zones, iNew, head)
				s.checkZoneOrder(dir)
				return
			}
			earlier.resetEnd(earlierBorder)
		}
	}

	// Trim the zone reaching out of the hole on the later side, and
	// delete anything wholly inside.
	var iLater int
	if dir == Forward {
		iLater = zoneSearchLT(pc.zones, laterBorder)
	} else {
		iLater = zoneSearchGE(pc.zones, laterBorder+1)
	}
	if (iLater-iEarlier)*d > 0 && iLater >= 0 && iLater < len(pc.zones) {
		later := &pc.zones[iLater]
		if (later.end-laterBorder)*d > 0 {
			later.replaceLen -= (laterBorder - later.start) * d
			if later.replaceLen < 0 {
				later.replaceLen = 0
			}
			later.start = laterBorder
		} else {
			iLater += d
		}
	} else {
		iLater += d
	}

	if numToDelete := (iLater-iEarlier)*d - 1; numToDelete > 0 {
		deleteFrom := iEarlier + 1
		if dir == Reversed {
			deleteFrom = iLater + 1
		}
		pc.zones = deleteZones(pc.zones, deleteFrom, numToDelete)
	}
	s.checkZoneOrder(dir)
}

// deletePercCache returns both directions' envelope storage to the arena
// and empties the zone lists.
func (s *Sample) deletePercCache() {
	for rev := range s.perc {
		pc := &s.perc[rev]
		if pc.flat != nil {
			s.cfg.Arena.Deallocate(pc.flat)
			pc.flat = nil
		}
		for i, c := range pc.clusters {
			if c == nil {
				continue
			}
			if c.Reasons() != 0 {
				s.cfg.Fatal(FatalReleaseWhilePinned,
					fmt.Sprintf("perc cluster %d of %s released with %d reasons", i, s.Name, c.Reasons()))
			}
			s.cfg.Arena.Deallocate(c.block)
			pc.clusters[i] = nil
		}
		pc.clusters = nil
		pc.zones = nil
	}
}
