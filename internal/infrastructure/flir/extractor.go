package flir

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"thermal-eye/internal/domain/entity"
)

var (
	// ErrUnsupportedFormat радиометрический блок в файле не найден
	ErrUnsupportedFormat = errors.New("radiometric data block is not found")
	// ErrCorruptMetadata блок найден, но разобрать его не удалось
	ErrCorruptMetadata = errors.New("radiometric metadata is corrupt")
)

const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerEOI  = 0xD9
	markerAPP1 = 0xE1

	fffRecordRawData    = 0x0001
	fffRecordCameraInfo = 0x0020

	// Разумный потолок размера сенсорной матрицы.
	maxSensorSide = 4096

	kelvinOffset = 273.15
)

var flirSignature = []byte{'F', 'L', 'I', 'R', 0}
var fffMagic = []byte{'F', 'F', 'F', 0}

// Extractor разбирает радиометрические данные FLIR из JPEG
type Extractor struct{}

// NewExtractor создаёт экстрактор радиометрических данных.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract ищет FLIR-блок в файле и строит откалиброванную температурную матрицу.
// Любые байты на входе допустимы: мусор даёт ErrUnsupportedFormat, а найденный,
// но битый блок — ErrCorruptMetadata. Обе ошибки нефатальны для конвейера.
func (e *Extractor) Extract(data []byte) (*entity.TemperatureMatrix, entity.CalibrationParameters, error) {
	calib := entity.DefaultCalibration()

	payload, err := collectFlirPayload(data)
	if err != nil {
		return nil, calib, err
	}

	raw, width, height, calibBlock, err := parseFFF(payload)
	if err != nil {
		return nil, calib, err
	}
	if calibBlock != nil {
		calib = *calibBlock
	}

	matrix, err := convertCounts(raw, width, height, calib)
	if err != nil {
		return nil, calib, err
	}
	return matrix, calib, nil
}

// collectFlirPayload сканирует сегменты JPEG и склеивает куски FLIR-блока
// из APP1 в порядке их индексов.
func collectFlirPayload(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, ErrUnsupportedFormat
	}

	type chunk struct {
		index int
		data  []byte
	}
	var chunks []chunk
	total := -1

	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			// Разметка сегментов сбилась: дальше искать нечего.
			break
		}
		marker := data[pos+1]
		if marker == markerEOI {
			break
		}
		if marker == markerSOS {
			// Начались сжатые данные, метаданных дальше не бывает.
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if segLen < 2 || pos+2+segLen > len(data) {
			break
		}
		body := data[pos+4 : pos+2+segLen]

		if marker == markerAPP1 && len(body) >= len(flirSignature)+2 &&
			string(body[:len(flirSignature)]) == string(flirSignature) {
			idx := int(body[len(flirSignature)])
			cnt := int(body[len(flirSignature)+1])
			if total == -1 {
				total = cnt
			}
			if cnt != total {
				return nil, ErrCorruptMetadata
			}
			chunks = append(chunks, chunk{index: idx, data: body[len(flirSignature)+2:]})
		}
		pos += 2 + segLen
	}

	if len(chunks) == 0 {
		return nil, ErrUnsupportedFormat
	}
	if total <= 0 || len(chunks) != total {
		return nil, ErrCorruptMetadata
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].index < chunks[j].index })
	var payload []byte
	for i, c := range chunks {
		if c.index != i {
			return nil, ErrCorruptMetadata
		}
		payload = append(payload, c.data...)
	}
	return payload, nil
}

// parseFFF разбирает склеенный FFF-контейнер: заголовок, каталог записей,
// блок сырых отсчётов и блок калибровки.
func parseFFF(payload []byte) (raw []uint16, width, height int, calib *entity.CalibrationParameters, err error) {
	// Заголовок: magic[4] creator[16] version[4] indexOffset[4] indexCount[4].
	const headerSize = 32
	if len(payload) < headerSize || string(payload[:4]) != string(fffMagic) {
		return nil, 0, 0, nil, ErrCorruptMetadata
	}
	indexOffset := int(binary.LittleEndian.Uint32(payload[24:28]))
	indexCount := int(binary.LittleEndian.Uint32(payload[28:32]))
	if indexCount <= 0 || indexCount > 64 {
		return nil, 0, 0, nil, ErrCorruptMetadata
	}

	const recordSize = 12
	if indexOffset < headerSize || indexOffset+indexCount*recordSize > len(payload) {
		return nil, 0, 0, nil, ErrCorruptMetadata
	}

	for i := 0; i < indexCount; i++ {
		rec := payload[indexOffset+i*recordSize:]
		recType := binary.LittleEndian.Uint16(rec[0:2])
		offset := int(binary.LittleEndian.Uint32(rec[4:8]))
		length := int(binary.LittleEndian.Uint32(rec[8:12]))
		if offset < 0 || length < 0 || offset+length > len(payload) {
			return nil, 0, 0, nil, ErrCorruptMetadata
		}
		block := payload[offset : offset+length]

		switch recType {
		case fffRecordRawData:
			raw, width, height, err = parseRawData(block)
			if err != nil {
				return nil, 0, 0, nil, err
			}
		case fffRecordCameraInfo:
			calib = parseCameraInfo(block)
		}
	}

	if raw == nil {
		return nil, 0, 0, nil, ErrCorruptMetadata
	}
	return raw, width, height, calib, nil
}

// parseRawData читает блок сырых отсчётов: width[2] height[2] и матрицу uint16.
func parseRawData(block []byte) ([]uint16, int, int, error) {
	if len(block) < 4 {
		return nil, 0, 0, ErrCorruptMetadata
	}
	width := int(binary.LittleEndian.Uint16(block[0:2]))
	height := int(binary.LittleEndian.Uint16(block[2:4]))
	if width <= 0 || height <= 0 || width > maxSensorSide || height > maxSensorSide {
		return nil, 0, 0, ErrCorruptMetadata
	}
	if len(block) != 4+2*width*height {
		return nil, 0, 0, fmt.Errorf("%w: raw data size mismatch for %dx%d", ErrCorruptMetadata, width, height)
	}

	raw := make([]uint16, width*height)
	for i := range raw {
		raw[i] = binary.LittleEndian.Uint16(block[4+2*i:])
	}
	return raw, width, height, nil
}

// parseCameraInfo читает блок калибровки: девять float32 подряд.
// Неполный или физически бессмысленный блок игнорируется — остаются умолчания.
func parseCameraInfo(block []byte) *entity.CalibrationParameters {
	const infoSize = 9 * 4
	if len(block) < infoSize {
		return nil
	}
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(block[i*4:])))
	}
	c := entity.CalibrationParameters{
		Emissivity:     f(0),
		Transmission:   f(1),
		Distance:       f(2),
		ReflectedTempK: f(3),
		PlanckR1:       f(4),
		PlanckR2:       f(5),
		PlanckB:        f(6),
		PlanckF:        f(7),
		PlanckO:        f(8),
	}
	if c.Emissivity <= 0 || c.Emissivity > 1 ||
		c.Transmission <= 0 || c.Transmission > 1 ||
		c.ReflectedTempK <= 0 ||
		c.PlanckR1 <= 0 || c.PlanckR2 <= 0 || c.PlanckB <= 0 {
		return nil
	}
	return &c
}

// convertCounts переводит сырые отсчёты в °C обратным преобразованием Планка.
// Преобразование монотонно по отсчёту; любая ячейка вне домена или вне
// физического диапазона бракует всю матрицу.
func convertCounts(raw []uint16, width, height int, calib entity.CalibrationParameters) (*entity.TemperatureMatrix, error) {
	// Вклад отражённого излучения при температуре фона.
	rawRefl := calib.PlanckR1/(calib.PlanckR2*(math.Exp(calib.PlanckB/calib.ReflectedTempK)-calib.PlanckF)) - calib.PlanckO
	gain := calib.Emissivity * calib.Transmission

	m := entity.NewTemperatureMatrix(width, height, true)
	for i, s := range raw {
		rawObj := (float64(s) - (1-gain)*rawRefl) / gain
		arg := calib.PlanckR1/(calib.PlanckR2*(rawObj+calib.PlanckO)) + calib.PlanckF
		if arg <= 1 || math.IsNaN(arg) || math.IsInf(arg, 0) {
			return nil, fmt.Errorf("%w: count %d is out of the conversion domain", ErrCorruptMetadata, s)
		}
		tempC := calib.PlanckB/math.Log(arg) - kelvinOffset
		if tempC < entity.TempMinC || tempC > entity.TempMaxC {
			return nil, fmt.Errorf("%w: temperature %.1f is out of physical range", ErrCorruptMetadata, tempC)
		}
		m.Cells[i] = tempC
	}
	return m, nil
}
