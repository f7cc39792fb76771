package port

import "thermal-eye/internal/domain/entity"

// RadiometricExtractor интерфейс разбора встроенных радиометрических данных
type RadiometricExtractor interface {
	// Extract строит откалиброванную температурную матрицу из байтов файла
	Extract(data []byte) (*entity.TemperatureMatrix, entity.CalibrationParameters, error)
}

// FallbackDecoder интерфейс запасной оценки температур по видимым пикселям
type FallbackDecoder interface {
	// Decode строит приблизительную температурную матрицу из пикселей
	Decode(data []byte) (*entity.TemperatureMatrix, error)
}
