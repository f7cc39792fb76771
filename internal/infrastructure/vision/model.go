package vision

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"thermal-eye/internal/domain/entity"
)

var (
	// ErrModelUnavailable модель не загружена или сборка без поддержки DNN
	ErrModelUnavailable = errors.New("detection model is unavailable")
	// ErrModelIntegrity контрольная сумма весов не совпала
	ErrModelIntegrity = errors.New("model integrity check failed")
)

// modelClasses порядок классов в выходе обученной модели.
var modelClasses = []entity.ComponentType{
	entity.ComponentNutBolt,
	entity.ComponentJoint,
	entity.ComponentInsulator,
	entity.ComponentConductor,
}

// VerifyModelIntegrity сверяет sha256 файла весов с ожидаемой суммой.
// Пустая ожидаемая сумма отключает проверку.
func VerifyModelIntegrity(path, expectedSHA256 string) error {
	if expectedSHA256 == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if got != expectedSHA256 {
		return fmt.Errorf("%w: expected %s, got %s", ErrModelIntegrity, expectedSHA256, got)
	}
	return nil
}
