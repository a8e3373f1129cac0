package sample

// numCrossfadeAverages is how many consecutive windows get averaged when
// scoring a crossfade splice point.
const numCrossfadeAverages = 2

// AveragesForCrossfade fills totals with per-window sums of sample values
// around the midpoint of a prospective crossfade, so the time stretcher
// can compare signal levels on both sides of a splice. The windows sit
// back to back, centered on the crossfade's midpoint, each covering
// lengthToAverageEach samples summed across channels at reduced
// precision. Returns false when the span runs off the waveform or a
// needed cluster is not resident; the caller splices without the check.
func (s *Sample) AveragesForCrossfade(totals *[numCrossfadeAverages]int32, startBytePos, crossfadeLengthSamples int, dir Direction, lengthToAverageEach int) bool {
	d := int(dir)
	bytesPerSample := s.BytesPerSample()
	cs := s.cfg.clusterSize()

	startSamplePos := (startBytePos - s.AudioDataStartBytes) / bytesPerSample
	halfCrossfadeSamples := crossfadeLengthSamples >> 1
	midCrossfade := startSamplePos + halfCrossfadeSamples*d
	readSample := midCrossfade - (lengthToAverageEach*numCrossfadeAverages>>1)*d

	readByte := readSample*bytesPerSample + s.AudioDataStartBytes

	if dir == Forward {
		halfCrossfadeBytes := halfCrossfadeSamples * bytesPerSample
		if readByte < s.AudioDataStartBytes+halfCrossfadeBytes ||
			readByte >= s.AudioDataStartBytes+s.AudioDataLengthBytes-halfCrossfadeBytes {
			return false
		}
	}
	endReadByte := readByte + lengthToAverageEach*numCrossfadeAverages*bytesPerSample*d
	if endReadByte < s.AudioDataStartBytes-1 || endReadByte > s.AudioDataStartBytes+s.AudioDataLengthBytes {
		return false
	}

	for i := range totals {
		totals[i] = 0
		left := lengthToAverageEach

		for left > 0 {
			clusterIndex := readByte >> s.cfg.ClusterSizeMagnitude
			if clusterIndex < s.firstClusterIndexWithAudioData() || clusterIndex >= s.firstClusterIndexWithNoAudioData() {
				return false
			}
			c := s.clusters[clusterIndex]
			if c == nil || !c.Loaded {
				return false
			}

			bytePosWithinCluster := readByte & (cs - 1)
			n := left
			var bytesLeft int
			if dir == Reversed {
				bytesLeft = bytePosWithinCluster + bytesPerSample
			} else {
				bytesLeft = cs - bytePosWithinCluster + bytesPerSample - 1
			}
			if n*bytesPerSample > bytesLeft {
				n = bytesLeft / bytesPerSample
			}

			off := bytePosWithinCluster
			for k := 0; k < n; k++ {
				totals[i] += decodeValue(c.Data(), off, s.ByteDepth) >> 16
				if s.NumChannels == 2 {
					totals[i] += decodeValue(c.Data(), off+s.ByteDepth, s.ByteDepth) >> 16
				}
				off += bytesPerSample * d
			}

			readByte += n * bytesPerSample * d
			left -= n
		}
	}
	return true
}
