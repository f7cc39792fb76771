package flir

import (
	"bytes"
	"errors"
	"image"
	"math"

	// Регистрируем декодеры форматов, которые принимает загрузка.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"thermal-eye/internal/domain/entity"
)

// ErrUndecodableImage изображение не декодируется ни одним известным форматом
var ErrUndecodableImage = errors.New("image bytes cannot be decoded")

// ControlPoint опорная точка палитры: цвет и соответствующая температура
type ControlPoint struct {
	R, G, B uint8
	Temp    float64 // °C
}

// PaletteDecoder оценивает температуры по видимым цветам тепловизорной палитры.
// Запасной путь на случай отсутствия радиометрических данных: результат
// приблизительный и помечается Radiometric=false.
type PaletteDecoder struct {
	points  []ControlPoint
	minTemp float64
	maxTemp float64
}

// NewPaletteDecoder создаёт декодер по списку опорных точек и диапазону сцены.
// Точек должно быть не меньше двух.
func NewPaletteDecoder(points []ControlPoint, minTemp, maxTemp float64) (*PaletteDecoder, error) {
	if len(points) < 2 {
		return nil, errors.New("palette needs at least two control points")
	}
	if minTemp >= maxTemp {
		return nil, errors.New("scene range is empty")
	}
	return &PaletteDecoder{points: points, minTemp: minTemp, maxTemp: maxTemp}, nil
}

// DefaultIronPalette опорные точки палитры iron на диапазоне сцены [minTemp, maxTemp].
func DefaultIronPalette(minTemp, maxTemp float64) []ControlPoint {
	// Характерные цвета градиента iron от холодного к горячему.
	ramp := []struct {
		r, g, b uint8
		frac    float64
	}{
		{0, 0, 20, 0.0},
		{48, 8, 92, 0.15},
		{120, 24, 128, 0.35},
		{200, 60, 80, 0.55},
		{240, 120, 24, 0.75},
		{252, 200, 48, 0.90},
		{255, 255, 220, 1.0},
	}
	points := make([]ControlPoint, len(ramp))
	for i, p := range ramp {
		points[i] = ControlPoint{
			R:    p.r,
			G:    p.g,
			B:    p.b,
			Temp: minTemp + p.frac*(maxTemp-minTemp),
		}
	}
	return points
}

// Decode строит приблизительную температурную матрицу из пикселей изображения.
// После успешного декодирования пикселей ошибок не бывает: пиксель вне гаммы
// палитры получает температуру ближайшей опорной точки.
func (p *PaletteDecoder) Decode(data []byte) (*entity.TemperatureMatrix, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrUndecodableImage
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	m := entity.NewTemperatureMatrix(width, height, false)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			t := p.tempForColor(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			m.Set(x, y, t)
		}
	}
	return m, nil
}

// tempForColor интерполирует температуру между двумя ближайшими опорными
// точками по перцептивному расстоянию до цвета пикселя.
func (p *PaletteDecoder) tempForColor(r, g, b uint8) float64 {
	best, second := -1, -1
	bestDist, secondDist := math.Inf(1), math.Inf(1)
	for i, cp := range p.points {
		d := colorDistance(r, g, b, cp.R, cp.G, cp.B)
		switch {
		case d < bestDist:
			second, secondDist = best, bestDist
			best, bestDist = i, d
		case d < secondDist:
			second, secondDist = i, d
		}
	}

	if bestDist == 0 || second == -1 {
		return p.clamp(p.points[best].Temp)
	}
	// Вес обратно пропорционален расстоянию до точки.
	w := secondDist / (bestDist + secondDist)
	t := w*p.points[best].Temp + (1-w)*p.points[second].Temp
	return p.clamp(t)
}

func (p *PaletteDecoder) clamp(t float64) float64 {
	if t < p.minTemp {
		return p.minTemp
	}
	if t > p.maxTemp {
		return p.maxTemp
	}
	return t
}

// colorDistance взвешенная евклидова метрика redmean: дешёвое приближение
// перцептивного расстояния между цветами.
func colorDistance(r1, g1, b1, r2, g2, b2 uint8) float64 {
	rMean := (float64(r1) + float64(r2)) / 2
	dr := float64(r1) - float64(r2)
	dg := float64(g1) - float64(g2)
	db := float64(b1) - float64(b2)
	return math.Sqrt((2+rMean/256)*dr*dr + 4*dg*dg + (2+(255-rMean)/256)*db*db)
}
