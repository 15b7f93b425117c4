package assimilate

// GageObservation is one gaged reach's observed flow and, where known, its
// long-term natural (unregulated) flow, used to scale how far the
// correction propagates to neighboring reaches.
type GageObservation struct {
	Rivid       int64
	StationFlow float64
	NaturalFlow float64 // 0 means "unknown"; corrections degrade to a flat carry-through
}

// GageStation names a reach instrumented with a USGS gage. Controllers
// resolve these into GageObservations once per cycle by querying the
// measurement service for the station's current flow (spec §4.4, §6);
// GageStation itself carries no flow reading.
type GageStation struct {
	Rivid     int64
	StationID string
}

// Corrector applies gage observations on top of a computed Qinit, nudging
// the gaged reach itself and propagating a scaled error to its immediate
// upstream and downstream neighbors (spec §4.4): the original Qinit is
// never lost, it is overwritten only where a correction applies.
type Corrector struct {
	network *Network
}

// NewCorrector builds a Corrector over network's topology.
func NewCorrector(network *Network) *Corrector {
	return &Corrector{network: network}
}

// Apply corrects flows in place (flows is keyed by rivid). A reach's
// gaged value always wins outright; each immediate neighbor's current
// value is increased by master_error*connected_natural/master_natural
// (clamped at zero) when both natural flows are known, or replaced by the
// gage's raw station flow otherwise. A neighbor that is
// itself gaged (station distance zero) is never overwritten by a
// different gage's correction, so two nearby gages cannot fight over the
// same reach.
func (c *Corrector) Apply(flows map[int64]float64, observations []GageObservation) {
	gaged := make(map[int64]bool, len(observations))
	for _, o := range observations {
		gaged[o.Rivid] = true
	}

	for _, o := range observations {
		idx, ok := c.network.indexFor(o.Rivid)
		if !ok {
			continue
		}
		priorInit := flows[o.Rivid]
		flows[o.Rivid] = o.StationFlow

		masterError := 0.0
		if o.NaturalFlow != 0 {
			masterError = o.StationFlow - priorInit
		}

		for _, upID := range c.network.UpIDs[idx] {
			c.propagate(flows, gaged, upID, o.StationFlow, masterError, o.NaturalFlow)
		}
		c.propagate(flows, gaged, c.network.DownID[idx], o.StationFlow, masterError, o.NaturalFlow)
	}
}

// propagate applies one neighbor's correction, unless that neighbor is
// itself a gaged reach (in which case its own observation governs).
func (c *Corrector) propagate(flows map[int64]float64, gaged map[int64]bool, neighborID int64, masterStationFlow, masterError, masterNatural float64) {
	if neighborID == 0 || gaged[neighborID] {
		return
	}
	idx, ok := c.network.indexFor(neighborID)
	if !ok {
		return
	}
	connectedNatural := c.neighborNatural(idx)
	if connectedNatural != 0 && masterNatural != 0 {
		corrected := flows[neighborID] + masterError*connectedNatural/masterNatural
		if corrected < 0 {
			corrected = 0
		}
		flows[neighborID] = corrected
	} else {
		flows[neighborID] = masterStationFlow
	}
}

// neighborNatural looks up idx's long-term natural flow from the network's
// per-reach table (loaded from usgs_gages.csv), which carries entries for
// any reach with a known natural flow, not only gaged ones. A reach absent
// from the table returns 0, falling back to the flat station-flow
// carry-through branch in propagate.
func (c *Corrector) neighborNatural(idx int) float64 {
	if c.network.NaturalFlow == nil {
		return 0
	}
	return c.network.NaturalFlow[c.network.Rivid[idx]]
}
