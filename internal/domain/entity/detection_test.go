package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBBoxCenter(t *testing.T) {
	b := BBox{X: 10, Y: 20, Width: 8, Height: 6}
	x, y := b.Center()
	require.Equal(t, 14, x)
	require.Equal(t, 23, y)
}

func TestBBoxClipTo(t *testing.T) {
	b := BBox{X: -5, Y: 90, Width: 20, Height: 20}
	clipped := b.ClipTo(100, 100)
	require.Equal(t, BBox{X: 0, Y: 90, Width: 15, Height: 10}, clipped)

	outside := BBox{X: 200, Y: 200, Width: 10, Height: 10}
	require.Equal(t, 0, outside.ClipTo(100, 100).Area())
}

func TestBBoxIoU(t *testing.T) {
	a := BBox{X: 0, Y: 0, Width: 10, Height: 10}
	b := BBox{X: 5, Y: 0, Width: 10, Height: 10}
	require.InDelta(t, 50.0/150.0, a.IoU(b), 1e-9)

	c := BBox{X: 50, Y: 50, Width: 10, Height: 10}
	require.Zero(t, a.IoU(c))
	require.InDelta(t, 1.0, a.IoU(a), 1e-9)
}

func TestSortDetectionsStableOrder(t *testing.T) {
	dets := []Detection{
		{Type: ComponentJoint, Box: BBox{X: 5, Y: 5, Width: 10, Height: 10}, Confidence: 0.5},
		{Type: ComponentNutBolt, Box: BBox{X: 1, Y: 1, Width: 10, Height: 10}, Confidence: 0.9},
		{Type: ComponentInsulator, Box: BBox{X: 1, Y: 3, Width: 10, Height: 10}, Confidence: 0.5},
	}
	SortDetections(dets)
	require.Equal(t, ComponentNutBolt, dets[0].Type)
	// Одинаковая уверенность — порядок по верхнему левому углу.
	require.Equal(t, ComponentInsulator, dets[1].Type)
	require.Equal(t, ComponentJoint, dets[2].Type)
}

func TestMergeDetectionsKeepsHigherConfidence(t *testing.T) {
	dets := []Detection{
		{Type: ComponentJoint, Box: BBox{X: 0, Y: 0, Width: 10, Height: 10}, Confidence: 0.9},
		{Type: ComponentNutBolt, Box: BBox{X: 1, Y: 1, Width: 10, Height: 10}, Confidence: 0.6},
		{Type: ComponentConductor, Box: BBox{X: 50, Y: 50, Width: 20, Height: 5}, Confidence: 0.7},
	}
	merged := MergeDetections(dets, 0.5)
	require.Len(t, merged, 2)
	require.Equal(t, ComponentJoint, merged[0].Type)
	require.Equal(t, ComponentConductor, merged[1].Type)
}

func TestMergeDetectionsIdempotent(t *testing.T) {
	dets := []Detection{
		{Type: ComponentJoint, Box: BBox{X: 0, Y: 0, Width: 10, Height: 10}, Confidence: 0.9},
		{Type: ComponentNutBolt, Box: BBox{X: 2, Y: 2, Width: 10, Height: 10}, Confidence: 0.8},
		{Type: ComponentInsulator, Box: BBox{X: 30, Y: 0, Width: 8, Height: 24}, Confidence: 0.4},
	}
	once := MergeDetections(dets, 0.5)
	twice := MergeDetections(once, 0.5)
	require.Equal(t, once, twice)
}
