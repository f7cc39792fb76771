package entity

import "math"

// Физически осмысленный диапазон температур для матрицы (°C).
const (
	TempMinC = -40.0
	TempMaxC = 600.0
)

// ThermalImage исходное изображение и признак наличия радиометрических данных
type ThermalImage struct {
	Data        []byte // сырые байты файла
	Radiometric bool   // найден ли радиометрический блок
}

// CalibrationParameters параметры калибровки для обратного преобразования Планка
type CalibrationParameters struct {
	Emissivity     float64 // коэффициент излучения объекта
	Transmission   float64 // пропускание атмосферы
	Distance       float64 // расстояние до объекта, м
	ReflectedTempK float64 // отражённая температура, K
	PlanckR1       float64
	PlanckR2       float64
	PlanckB        float64
	PlanckF        float64
	PlanckO        float64
}

// DefaultCalibration возвращает типовые параметры FLIR, если тег калибровки отсутствует.
func DefaultCalibration() CalibrationParameters {
	return CalibrationParameters{
		Emissivity:     0.95,
		Transmission:   0.95,
		Distance:       1.0,
		ReflectedTempK: 293.15,
		PlanckR1:       21106.77,
		PlanckR2:       0.012545258,
		PlanckB:        1501.0,
		PlanckF:        1.0,
		PlanckO:        -7340.0,
	}
}

// TemperatureMatrix температурная сетка в °C, начало координат — левый верхний угол
type TemperatureMatrix struct {
	Width       int
	Height      int
	Cells       []float64 // строки подряд, длина Width*Height
	Radiometric bool      // true — абсолютные температуры, false — оценка по палитре
}

// NewTemperatureMatrix создаёт пустую матрицу заданного размера.
func NewTemperatureMatrix(width, height int, radiometric bool) *TemperatureMatrix {
	return &TemperatureMatrix{
		Width:       width,
		Height:      height,
		Cells:       make([]float64, width*height),
		Radiometric: radiometric,
	}
}

// At возвращает температуру ячейки без проверки границ.
func (m *TemperatureMatrix) At(x, y int) float64 {
	return m.Cells[y*m.Width+x]
}

// Set записывает температуру ячейки.
func (m *TemperatureMatrix) Set(x, y int, t float64) {
	m.Cells[y*m.Width+x] = t
}

// Validate проверяет, что каждая ячейка конечна и лежит в физическом диапазоне.
// Одна выпавшая ячейка бракует матрицу целиком.
func (m *TemperatureMatrix) Validate() bool {
	if m == nil || m.Width <= 0 || m.Height <= 0 || len(m.Cells) != m.Width*m.Height {
		return false
	}
	for _, t := range m.Cells {
		if math.IsNaN(t) || math.IsInf(t, 0) || t < TempMinC || t > TempMaxC {
			return false
		}
	}
	return true
}

// RegionStats считает максимум и среднее по области, обрезанной до границ матрицы.
// Для пустой области возвращает ok=false.
func (m *TemperatureMatrix) RegionStats(box BBox) (maxT, meanT float64, ok bool) {
	clipped := box.ClipTo(m.Width, m.Height)
	if clipped.Area() == 0 {
		return 0, 0, false
	}

	maxT = math.Inf(-1)
	sum := 0.0
	for y := clipped.Y; y < clipped.Y+clipped.Height; y++ {
		for x := clipped.X; x < clipped.X+clipped.Width; x++ {
			t := m.At(x, y)
			if t > maxT {
				maxT = t
			}
			sum += t
		}
	}
	meanT = sum / float64(clipped.Area())
	return maxT, meanT, true
}
