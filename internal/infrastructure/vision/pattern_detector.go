package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"math"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"gonum.org/v1/gonum/stat"

	"thermal-eye/internal/domain/entity"
)

// ErrUndecodableImage изображение не удалось декодировать
var ErrUndecodableImage = errors.New("image bytes cannot be decoded")

// PatternDetector детерминированный запасной детектор компонентов.
// Работает на геометрических эвристиках (градиент, связные области, форма)
// и для любого декодируемого изображения возвращает ответ, пусть и пустой.
type PatternDetector struct {
	MinAreaRatio   float64
	MinAspectRatio float64
	MaxAspectRatio float64
	MaxSide        int
	EdgeSigma      float64 // порог градиента в сигмах над средним
}

// NewPatternDetector создаёт детектор с типовыми порогами.
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{
		MinAreaRatio:   0.001,
		MinAspectRatio: 0.1,
		MaxAspectRatio: 10.0,
		MaxSide:        1024,
		EdgeSigma:      1.5,
	}
}

// Name возвращает имя детектора.
func (d *PatternDetector) Name() string { return "pattern-fallback" }

// Detect ищет компоненты по плотности границ и регулярности формы.
// Результат отсортирован и детерминирован для одинакового входа.
func (d *PatternDetector) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	_ = ctx
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, ErrUndecodableImage
	}

	gray, scale := d.grayscale(img)
	w := len(gray[0])
	h := len(gray)

	magnitude := sobelMagnitude(gray)

	// Адаптивный порог: среднее плюс EdgeSigma сигм по всем пикселям.
	flat := make([]float64, 0, w*h)
	for _, row := range magnitude {
		flat = append(flat, row...)
	}
	mean := stat.Mean(flat, nil)
	sigma := stat.StdDev(flat, nil)
	threshold := mean + d.EdgeSigma*sigma

	mask := make([][]bool, h)
	for y := range mask {
		mask[y] = make([]bool, w)
		for x := 0; x < w; x++ {
			mask[y][x] = magnitude[y][x] > threshold
		}
	}

	minArea := int(float64(w*h) * d.MinAreaRatio)
	var dets []entity.Detection
	for _, comp := range connectedComponents(mask) {
		box := comp.box
		area := box.Area()
		if area < minArea || box.Height == 0 {
			continue
		}
		aspect := float64(box.Width) / float64(box.Height)
		if aspect < d.MinAspectRatio || aspect > d.MaxAspectRatio {
			continue
		}

		fill := float64(comp.pixels) / float64(area)
		areaRatio := float64(area) / float64(w*h)
		ct := classifyShape(aspect, fill, areaRatio)

		conf := 0.3 + 0.5*fill
		if conf > 0.6 {
			conf = 0.6 // запасной детектор не претендует на высокую уверенность
		}

		dets = append(dets, entity.Detection{
			Type: ct,
			Box: entity.BBox{
				X:      int(float64(box.X) / scale),
				Y:      int(float64(box.Y) / scale),
				Width:  int(float64(box.Width) / scale),
				Height: int(float64(box.Height) / scale),
			},
			Confidence: conf,
			Source:     entity.SourceFallback,
		})
	}

	entity.SortDetections(dets)
	return dets, nil
}

// classifyShape угадывает тип компонента по форме области.
func classifyShape(aspect, fill, areaRatio float64) entity.ComponentType {
	switch {
	case aspect >= 3.0:
		return entity.ComponentConductor // вытянутая горизонтальная полоса
	case aspect <= 1.0/3.0:
		return entity.ComponentInsulator // вытянутая вертикальная гирлянда
	case fill >= 0.30 && areaRatio < 0.01:
		return entity.ComponentNutBolt // маленькая плотная область
	case fill >= 0.15:
		return entity.ComponentJoint
	default:
		return entity.ComponentUnknown
	}
}

// grayscale переводит изображение в яркостную матрицу, ужимая длинную
// сторону до MaxSide для стабильных порогов. Возвращает масштаб уменьшения.
func (d *PatternDetector) grayscale(img image.Image) ([][]float64, float64) {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	scale := 1.0
	longest := srcW
	if srcH > longest {
		longest = srcH
	}
	if longest > d.MaxSide {
		scale = float64(d.MaxSide) / float64(longest)
	}
	w := int(float64(srcW) * scale)
	h := int(float64(srcH) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	gray := make([][]float64, h)
	for y := 0; y < h; y++ {
		gray[y] = make([]float64, w)
		srcY := bounds.Min.Y + int(float64(y)/scale)
		for x := 0; x < w; x++ {
			srcX := bounds.Min.X + int(float64(x)/scale)
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			// Яркость по BT.601.
			gray[y][x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray, scale
}

// sobelMagnitude считает величину градиента оператором Собеля.
func sobelMagnitude(gray [][]float64) [][]float64 {
	h := len(gray)
	w := len(gray[0])
	out := make([][]float64, h)
	for y := range out {
		out[y] = make([]float64, w)
	}
	if w < 3 || h < 3 {
		return out
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -gray[y-1][x-1] + gray[y-1][x+1] +
				-2*gray[y][x-1] + 2*gray[y][x+1] +
				-gray[y+1][x-1] + gray[y+1][x+1]
			gy := -gray[y-1][x-1] - 2*gray[y-1][x] - gray[y-1][x+1] +
				gray[y+1][x-1] + 2*gray[y+1][x] + gray[y+1][x+1]
			out[y][x] = math.Hypot(gx, gy)
		}
	}
	return out
}

type component struct {
	box    entity.BBox
	pixels int
}

// connectedComponents собирает связные области маски (8-связность) обходом
// в ширину. Порядок областей детерминирован: скан сверху вниз, слева направо.
func connectedComponents(mask [][]bool) []component {
	h := len(mask)
	w := len(mask[0])
	visited := make([][]bool, h)
	for y := range visited {
		visited[y] = make([]bool, w)
	}

	var comps []component
	var queue [][2]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y][x] || visited[y][x] {
				continue
			}

			minX, minY, maxX, maxY := x, y, x, y
			pixels := 0
			queue = queue[:0]
			queue = append(queue, [2]int{x, y})
			visited[y][x] = true
			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				px, py := p[0], p[1]
				pixels++
				if px < minX {
					minX = px
				}
				if px > maxX {
					maxX = px
				}
				if py < minY {
					minY = py
				}
				if py > maxY {
					maxY = py
				}
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := px+dx, py+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						if mask[ny][nx] && !visited[ny][nx] {
							visited[ny][nx] = true
							queue = append(queue, [2]int{nx, ny})
						}
					}
				}
			}

			comps = append(comps, component{
				box:    entity.BBox{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1},
				pixels: pixels,
			})
		}
	}
	return comps
}
