package pathcompute

import (
	"context"
	"math"
	"sort"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

// SlotSource reads available slots for a link. Store implements this
// directly; the Path Computer only ever reads, never writes — writes happen
// in the Connection Manager's transaction (spec.md §4.2, "Allocation is
// plan-only").
type SlotSource interface {
	GetAvailableSlots(ctx context.Context, linkID string) ([]int, error)
}

// Config carries the routing/spectrum parameters of spec.md §6.
type Config struct {
	SlotWidthGHz       float64
	SpectralEfficiency map[string]float64 // bit/s/Hz by modulation, e.g. "16QAM" -> 4
	DefaultSlots       int
}

// Request is a path-computation request.
type Request struct {
	SourcePop      string
	DestPop        string
	BandwidthGbps  float64
	Modulation     string
}

// Plan is the result of a successful computation: an ordered list of
// PathSegments with a slot allocation already chosen (but not yet written to
// the store) and an advisory OSNR estimate.
type Plan struct {
	Segments        []model.PathSegment
	TotalDistanceKM float64
	EstimatedOSNRdB float64
	RequiredSlots   int
}

// Computer is the Path Computer (spec.md §4.2).
type Computer struct {
	slots SlotSource
	cfg   Config
}

// New builds a Computer reading slot occupancy through slots.
func New(slots SlotSource, cfg Config) *Computer {
	if cfg.SlotWidthGHz <= 0 {
		cfg.SlotWidthGHz = 12.5
	}
	if cfg.DefaultSlots <= 0 {
		cfg.DefaultSlots = 4
	}
	return &Computer{slots: slots, cfg: cfg}
}

// requiredSlots computes ⌈(bandwidth / spectral_efficiency) / slot_width_ghz⌉,
// floored at 1 (spec.md §4.2 "Slot sizing").
func (c *Computer) requiredSlots(bandwidthGbps float64, modulation string) int {
	eff, ok := c.cfg.SpectralEfficiency[modulation]
	if !ok || eff <= 0 {
		return c.cfg.DefaultSlots
	}
	// bandwidthGbps is Gbps; spectral efficiency is bit/s/Hz, slot width is GHz —
	// both conversions cancel, so bandwidth/efficiency directly yields GHz needed.
	neededGHz := bandwidthGbps / eff
	n := int(math.Ceil(neededGHz / c.cfg.SlotWidthGHz))
	if n < 1 {
		n = 1
	}
	return n
}

// estimateOSNR returns the advisory OSNR estimate of spec.md §4.2, rounded
// to 2 decimals. Not used for admission.
func estimateOSNR(totalKM float64) float64 {
	if totalKM <= 0 {
		return 25 * 100
	}
	v := 25 * (100 / totalKM)
	return math.Round(v*100) / 100
}

// Compute produces an ordered PathSegment list with an already-chosen
// first-fit contiguous slot allocation, or an error (spec.md §4.2).
func (c *Computer) Compute(ctx context.Context, links []model.NetworkLink, req Request) (*Plan, error) {
	if req.SourcePop == req.DestPop {
		return nil, coreerrors.New(coreerrors.InvalidRequest, "Compute")
	}

	g := buildGraph(links)
	hops, err := g.shortestPath(req.SourcePop, req.DestPop)
	if err != nil {
		return nil, err
	}

	required := c.requiredSlots(req.BandwidthGbps, req.Modulation)

	// Gather each hop's current free slots (read-only, not written here).
	perLinkFree := make([][]int, len(hops))
	for i, h := range hops {
		free, err := c.slots.GetAvailableSlots(ctx, h.linkID)
		if err != nil {
			return nil, coreerrors.Wrap(coreerrors.StoreError, "Compute", err)
		}
		sort.Ints(free)
		perLinkFree[i] = free
	}

	chosen, err := firstFitContiguous(perLinkFree, required)
	if err != nil {
		return nil, err
	}

	segments := make([]model.PathSegment, len(hops))
	for i, h := range hops {
		segments[i] = model.PathSegment{
			LinkID:         h.linkID,
			SrcPop:         h.from,
			DstPop:         h.to,
			AllocatedSlots: chosen,
			SlotWidthGHz:   c.cfg.SlotWidthGHz,
		}
	}

	return &Plan{
		Segments:        segments,
		TotalDistanceKM: g.totalDistanceKM(hops),
		EstimatedOSNRdB: estimateOSNR(g.totalDistanceKM(hops)),
		RequiredSlots:   required,
	}, nil
}

// firstFitContiguous finds the lowest-indexed contiguous run of `required`
// slots present in every link's free set (spec.md §4.2 "Spectrum
// allocation"). A run is a candidate only if it is contiguous on the first
// link; slot continuity across the remaining links then requires the exact
// same indices, not merely the same run length — a path needing per-link
// slot conversion is rejected (spec.md "Slot continuity ... is required").
func firstFitContiguous(perLinkFree [][]int, required int) ([]int, error) {
	if len(perLinkFree) == 0 {
		return nil, coreerrors.New(coreerrors.NoSpectrum, "firstFitContiguous")
	}

	first := perLinkFree[0]
	if len(first) < required {
		return nil, coreerrors.New(coreerrors.NoSpectrum, "firstFitContiguous")
	}

	for i := 0; i+required <= len(first); i++ {
		run := first[i : i+required]
		if run[len(run)-1]-run[0] != required-1 {
			continue // not contiguous in the slot-index space
		}

		if allLinksHave(perLinkFree[1:], run) {
			out := make([]int, len(run))
			copy(out, run)
			return out, nil
		}
	}

	return nil, coreerrors.New(coreerrors.NoSpectrum, "firstFitContiguous")
}

func allLinksHave(rest [][]int, run []int) bool {
	for _, free := range rest {
		set := make(map[int]struct{}, len(free))
		for _, f := range free {
			set[f] = struct{}{}
		}
		for _, idx := range run {
			if _, ok := set[idx]; !ok {
				return false
			}
		}
	}
	return true
}
