package sample

// PinSet is the standard PercPinner: it accumulates reasons on behalf of
// one consumer (a voice or time stretcher) and releases them in bulk.
// Lookahead pins are tracked separately so a satisfied envelope request
// can drop just those.
type PinSet struct {
	perc      []*Cluster
	lookahead []*Cluster
}

// RememberPercCluster pins an envelope cluster, ignoring duplicates.
func (p *PinSet) RememberPercCluster(c *Cluster) {
	for _, held := range p.perc {
		if held == c {
			return
		}
	}
	c.AddReason()
	p.perc = append(p.perc, c)
}

// AddLookahead pins a source cluster held only while scanning ahead for
// a splice point.
func (p *PinSet) AddLookahead(c *Cluster) {
	c.AddReason()
	p.lookahead = append(p.lookahead, c)
}

// ReleaseLookahead drops the provisional source pins.
func (p *PinSet) ReleaseLookahead() {
	for _, c := range p.lookahead {
		c.ReleaseReason()
	}
	p.lookahead = p.lookahead[:0]
}

// ReleaseAll drops every pin the set holds.
func (p *PinSet) ReleaseAll() {
	for _, c := range p.perc {
		c.ReleaseReason()
	}
	p.perc = p.perc[:0]
	p.ReleaseLookahead()
}

// Held returns how many envelope clusters the set is pinning.
func (p *PinSet) Held() int { return len(p.perc) }
