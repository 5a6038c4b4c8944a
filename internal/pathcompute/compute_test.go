package pathcompute

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

// fakeSlotSource serves a fixed free-slot list per link id, set up by each
// test rather than read through a live store.
type fakeSlotSource map[string][]int

func (f fakeSlotSource) GetAvailableSlots(_ context.Context, linkID string) ([]int, error) {
	return f[linkID], nil
}

func singleLink(totalSlots int) []model.NetworkLink {
	return []model.NetworkLink{
		{ID: "LINK-AB", PopA: "POP-A", PopB: "POP-B", DistanceKM: 80, TotalSlots: totalSlots},
	}
}

func chain3Pop() []model.NetworkLink {
	return []model.NetworkLink{
		{ID: "LINK-AB", PopA: "POP-A", PopB: "POP-B", DistanceKM: 80, TotalSlots: 8},
		{ID: "LINK-BC", PopA: "POP-B", PopB: "POP-C", DistanceKM: 60, TotalSlots: 8},
	}
}

func testConfig() Config {
	return Config{
		SlotWidthGHz:       12.5,
		SpectralEfficiency: map[string]float64{"QPSK": 2},
		DefaultSlots:       4,
	}
}

// S1: every slot on the one link is free, so the request exactly fills the
// lowest-indexed contiguous run starting at 0.
func TestCompute_S1_ExactFillStartsAtZero(t *testing.T) {
	links := singleLink(8)
	slots := fakeSlotSource{"LINK-AB": {0, 1, 2, 3, 4, 5, 6, 7}}
	c := New(slots, testConfig())

	plan, err := c.Compute(context.Background(), links, Request{
		SourcePop: "POP-A", DestPop: "POP-B", BandwidthGbps: 50, Modulation: "QPSK",
	})
	require.NoError(t, err)
	require.Equal(t, 2, plan.RequiredSlots)
	require.Len(t, plan.Segments, 1)
	require.Equal(t, []int{0, 1}, plan.Segments[0].AllocatedSlots)
}

// S2: slot 0 is already occupied, so first-fit must skip the hole and land
// on the next contiguous run rather than failing.
func TestCompute_S2_FirstFitSkipsOccupiedHole(t *testing.T) {
	links := singleLink(8)
	slots := fakeSlotSource{"LINK-AB": {1, 2, 3, 4, 5, 6, 7}} // 0 occupied
	c := New(slots, testConfig())

	plan, err := c.Compute(context.Background(), links, Request{
		SourcePop: "POP-A", DestPop: "POP-B", BandwidthGbps: 50, Modulation: "QPSK",
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, plan.Segments[0].AllocatedSlots)
}

// S3: only one free slot remains but the request needs two, so the
// computation must fail with NO_SPECTRUM and produce no plan.
func TestCompute_S3_InsufficientSlotsIsNoSpectrum(t *testing.T) {
	links := singleLink(8)
	slots := fakeSlotSource{"LINK-AB": {3}}
	c := New(slots, testConfig())

	plan, err := c.Compute(context.Background(), links, Request{
		SourcePop: "POP-A", DestPop: "POP-B", BandwidthGbps: 50, Modulation: "QPSK",
	})
	require.Error(t, err)
	require.Nil(t, plan)
	require.Equal(t, coreerrors.NoSpectrum, coreerrors.CodeOf(err))
}

// S4: a 3-POP path over two links must carry the exact same slot indices on
// every segment, skipping a run that's occupied on only one of the links.
func TestCompute_S4_PathContinuityAcrossSegments(t *testing.T) {
	links := chain3Pop()
	slots := fakeSlotSource{
		"LINK-AB": {1, 2, 3, 4, 5, 6, 7}, // 0 occupied here only
		"LINK-BC": {0, 1, 2, 3, 4, 5, 6, 7},
	}
	c := New(slots, testConfig())

	plan, err := c.Compute(context.Background(), links, Request{
		SourcePop: "POP-A", DestPop: "POP-C", BandwidthGbps: 50, Modulation: "QPSK",
	})
	require.NoError(t, err)
	require.Len(t, plan.Segments, 2)
	require.Equal(t, []int{1, 2}, plan.Segments[0].AllocatedSlots)
	require.Equal(t, []int{1, 2}, plan.Segments[1].AllocatedSlots)
	require.Equal(t, "LINK-AB", plan.Segments[0].LinkID)
	require.Equal(t, "LINK-BC", plan.Segments[1].LinkID)
}

// firstFitContiguous directly: a candidate run that is present on the first
// link but not on every remaining link must be rejected even though its
// length matches, enforcing slot continuity rather than just run length.
func TestFirstFitContiguous_RejectsRunMissingOnOtherLink(t *testing.T) {
	perLinkFree := [][]int{
		{0, 1, 2, 3},
		{2, 3, 4, 5}, // 0,1 not free here
	}
	chosen, err := firstFitContiguous(perLinkFree, 2)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, chosen)
}

// A non-contiguous set of indices of the right count must not be mistaken
// for a valid run (e.g. {0,2} for a width-2 request).
func TestFirstFitContiguous_SkipsNonContiguousIndices(t *testing.T) {
	perLinkFree := [][]int{
		{0, 2, 3, 4},
	}
	chosen, err := firstFitContiguous(perLinkFree, 2)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, chosen)
}

func TestFirstFitContiguous_NoSpectrumWhenTooFewFree(t *testing.T) {
	_, err := firstFitContiguous([][]int{{5}}, 2)
	require.Error(t, err)
	require.Equal(t, coreerrors.NoSpectrum, coreerrors.CodeOf(err))
}

func TestAllLinksHave(t *testing.T) {
	rest := [][]int{{1, 2, 3}, {0, 1, 2, 3}}
	require.True(t, allLinksHave(rest, []int{1, 2}))
	require.False(t, allLinksHave(rest, []int{3, 4}))
}
