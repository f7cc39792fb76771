//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"thermal-eye/internal/domain/entity"
)

// ModelDetector первичный детектор на обученной YOLO-модели (ONNX, gocv DNN).
// После загрузки сеть только читается и безопасна для параллельных анализов
// при внешнем ограничении числа одновременных вызовов.
type ModelDetector struct {
	net       gocv.Net
	inputSize int
	confFloor float64
}

// NewModelDetector загружает веса модели, предварительно проверив их целостность.
func NewModelDetector(modelPath, expectedSHA256 string) (*ModelDetector, error) {
	if err := VerifyModelIntegrity(modelPath, expectedSHA256); err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: cannot read network from %s", ErrModelUnavailable, modelPath)
	}

	return &ModelDetector{
		net:       net,
		inputSize: 640,
		confFloor: 0.05,
	}, nil
}

// Name возвращает имя детектора.
func (d *ModelDetector) Name() string { return "yolo-primary" }

// Close освобождает сеть.
func (d *ModelDetector) Close() error { return d.net.Close() }

// Detect запускает модель и разбирает её выход в список обнаружений.
func (d *ModelDetector) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := decodeToMat(imageData)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	srcW := float64(mat.Cols())
	srcH := float64(mat.Rows())

	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	data, err := prob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	// Выход YOLO: строки cx, cy, w, h, objectness и оценки классов.
	stride := 5 + len(modelClasses)
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("%w: unexpected output shape %d", ErrModelUnavailable, len(data))
	}

	scaleX := srcW / float64(d.inputSize)
	scaleY := srcH / float64(d.inputSize)

	var dets []entity.Detection
	for i := 0; i+stride <= len(data); i += stride {
		objectness := float64(data[i+4])
		if objectness < d.confFloor {
			continue
		}

		bestClass := 0
		bestScore := float64(data[i+5])
		for c := 1; c < len(modelClasses); c++ {
			if s := float64(data[i+5+c]); s > bestScore {
				bestScore = s
				bestClass = c
			}
		}

		conf := objectness * bestScore
		if conf < d.confFloor {
			continue
		}

		cx := float64(data[i]) * scaleX
		cy := float64(data[i+1]) * scaleY
		w := float64(data[i+2]) * scaleX
		h := float64(data[i+3]) * scaleY

		dets = append(dets, entity.Detection{
			Type: modelClasses[bestClass],
			Box: entity.BBox{
				X:      int(cx - w/2),
				Y:      int(cy - h/2),
				Width:  int(w),
				Height: int(h),
			},
			Confidence: conf,
			Source:     entity.SourcePrimary,
		})
	}

	entity.SortDetections(dets)
	return dets, nil
}

// decodeToMat превращает байты изображения в gocv.Mat.
func decodeToMat(imageData []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	if !mat.Empty() {
		mat.Close()
	}
	return gocv.NewMat(), errors.New("failed to decode image")
}
