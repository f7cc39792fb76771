package entity

import "sort"

// ComponentType тип электрического компонента
type ComponentType string

const (
	ComponentNutBolt   ComponentType = "nut_bolt"  // болтовое соединение
	ComponentJoint     ComponentType = "joint"     // соединительный зажим
	ComponentInsulator ComponentType = "insulator" // изолятор
	ComponentConductor ComponentType = "conductor" // провод
	ComponentUnknown   ComponentType = "unknown"
)

// DetectorSource какой детектор дал результат
type DetectorSource string

const (
	SourcePrimary  DetectorSource = "primary"  // обученная модель
	SourceFallback DetectorSource = "fallback" // детерминированный запасной детектор
)

// BBox прямоугольная область в пикселях, X/Y — левый верхний угол
type BBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Area возвращает площадь области в пикселях.
func (b BBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Center возвращает координаты центра области.
func (b BBox) Center() (x, y int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// ClipTo обрезает область до границ изображения width x height.
func (b BBox) ClipTo(width, height int) BBox {
	x0 := maxInt(b.X, 0)
	y0 := maxInt(b.Y, 0)
	x1 := minInt(b.X+b.Width, width)
	y1 := minInt(b.Y+b.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return BBox{X: x0, Y: y0}
	}
	return BBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// IoU возвращает отношение пересечения к объединению двух областей.
func (b BBox) IoU(other BBox) float64 {
	x0 := maxInt(b.X, other.X)
	y0 := maxInt(b.Y, other.Y)
	x1 := minInt(b.X+b.Width, other.X+other.Width)
	y1 := minInt(b.Y+b.Height, other.Y+other.Height)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	inter := (x1 - x0) * (y1 - y0)
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Detection найденный компонент
type Detection struct {
	Type       ComponentType
	Box        BBox
	Confidence float64 // уверенность детектора, [0,1]
	Source     DetectorSource
}

// SortDetections сортирует по убыванию уверенности, при равенстве — по
// левому верхнему углу построчно. Порядок стабилен для одинакового входа.
func SortDetections(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		if dets[i].Confidence != dets[j].Confidence {
			return dets[i].Confidence > dets[j].Confidence
		}
		if dets[i].Box.Y != dets[j].Box.Y {
			return dets[i].Box.Y < dets[j].Box.Y
		}
		return dets[i].Box.X < dets[j].Box.X
	})
}

// MergeDetections сливает пересекающиеся области: из пары с IoU выше порога
// остаётся более уверенная (её класс и рамка). Результат отсортирован,
// повторное слияние того же набора ничего не меняет.
func MergeDetections(dets []Detection, iouThreshold float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	SortDetections(sorted)

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		overlaps := false
		for _, k := range kept {
			if d.Box.IoU(k.Box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
