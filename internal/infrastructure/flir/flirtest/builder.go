// Package flirtest собирает синтетические радиометрические JPEG для тестов.
package flirtest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"thermal-eye/internal/domain/entity"
)

// CountForTemp возвращает сырой отсчёт сенсора, который после обратного
// преобразования Планка даст температуру tempC.
func CountForTemp(tempC float64, calib entity.CalibrationParameters) uint16 {
	tempK := tempC + 273.15
	rawRefl := calib.PlanckR1/(calib.PlanckR2*(math.Exp(calib.PlanckB/calib.ReflectedTempK)-calib.PlanckF)) - calib.PlanckO
	rawObj := calib.PlanckR1/(calib.PlanckR2*(math.Exp(calib.PlanckB/tempK)-calib.PlanckF)) - calib.PlanckO
	gain := calib.Emissivity * calib.Transmission
	s := gain*rawObj + (1-gain)*rawRefl
	return uint16(math.Round(s))
}

// BuildPayload собирает FFF-контейнер с матрицей отсчётов и блоком калибровки.
func BuildPayload(counts []uint16, width, height int, calib *entity.CalibrationParameters) []byte {
	rawBlock := make([]byte, 4+2*len(counts))
	binary.LittleEndian.PutUint16(rawBlock[0:2], uint16(width))
	binary.LittleEndian.PutUint16(rawBlock[2:4], uint16(height))
	for i, c := range counts {
		binary.LittleEndian.PutUint16(rawBlock[4+2*i:], c)
	}

	var infoBlock []byte
	if calib != nil {
		infoBlock = make([]byte, 9*4)
		fields := []float64{
			calib.Emissivity, calib.Transmission, calib.Distance, calib.ReflectedTempK,
			calib.PlanckR1, calib.PlanckR2, calib.PlanckB, calib.PlanckF, calib.PlanckO,
		}
		for i, f := range fields {
			binary.LittleEndian.PutUint32(infoBlock[i*4:], math.Float32bits(float32(f)))
		}
	}

	recordCount := 1
	if infoBlock != nil {
		recordCount = 2
	}
	const headerSize = 32
	const recordSize = 12
	dataOffset := headerSize + recordCount*recordSize

	payload := make([]byte, 0, dataOffset+len(rawBlock)+len(infoBlock))
	header := make([]byte, headerSize)
	copy(header[0:4], []byte{'F', 'F', 'F', 0})
	copy(header[4:20], []byte("thermal-eye test"))
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], headerSize)
	binary.LittleEndian.PutUint32(header[28:32], uint32(recordCount))
	payload = append(payload, header...)

	rec := func(recType uint16, offset, length int) []byte {
		r := make([]byte, recordSize)
		binary.LittleEndian.PutUint16(r[0:2], recType)
		binary.LittleEndian.PutUint32(r[4:8], uint32(offset))
		binary.LittleEndian.PutUint32(r[8:12], uint32(length))
		return r
	}
	payload = append(payload, rec(0x0001, dataOffset, len(rawBlock))...)
	if infoBlock != nil {
		payload = append(payload, rec(0x0020, dataOffset+len(rawBlock), len(infoBlock))...)
	}
	payload = append(payload, rawBlock...)
	payload = append(payload, infoBlock...)
	return payload
}

// WrapJPEG вставляет FFF-контейнер в настоящий JPEG сразу после SOI,
// разбивая его на APP1-сегменты FLIR. Итог декодируется image/jpeg как обычно.
func WrapJPEG(payload []byte, width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 60, B: 140, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	encoded := buf.Bytes()

	// Делим полезную нагрузку на куски не длиннее 60000 байт.
	const chunkSize = 60000
	var chunks [][]byte
	for len(payload) > 0 {
		n := len(payload)
		if n > chunkSize {
			n = chunkSize
		}
		chunks = append(chunks, payload[:n])
		payload = payload[n:]
	}

	out := make([]byte, 0, len(encoded)+len(chunks)*16)
	out = append(out, encoded[:2]...) // SOI
	for i, c := range chunks {
		seg := make([]byte, 0, len(c)+9)
		seg = append(seg, 'F', 'L', 'I', 'R', 0, byte(i), byte(len(chunks)))
		seg = append(seg, c...)
		out = append(out, 0xFF, 0xE1)
		lenBytes := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBytes, uint16(len(seg)+2))
		out = append(out, lenBytes...)
		out = append(out, seg...)
	}
	out = append(out, encoded[2:]...)
	return out
}

// BuildRadiometricJPEG строит JPEG с матрицей отсчётов, дающей ровно temps.
// temps — строки подряд, как в TemperatureMatrix.
func BuildRadiometricJPEG(temps []float64, width, height int, calib entity.CalibrationParameters) []byte {
	counts := make([]uint16, len(temps))
	for i, t := range temps {
		counts[i] = CountForTemp(t, calib)
	}
	return WrapJPEG(BuildPayload(counts, width, height, &calib), width, height)
}
