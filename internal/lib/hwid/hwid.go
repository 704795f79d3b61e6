// Package hwid вычисляет односторонний хэш аппаратного идентификатора устройства.
// Сырое значение HWID не сохраняется и не сравнивается нигде, кроме этого пакета.
package hwid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// keyContext - контекст производного ключа BLAKE3. Менять нельзя: все сохранённые хэши станут недействительны.
const keyContext = "entitlement-service 2025 hwid hash v1"

// ErrEmpty - после нормализации HWID пуст.
var ErrEmpty = errors.New("hwid is empty")

// Hasher вычисляет keyed BLAKE3 хэш HWID. Безопасен для конкурентного использования.
type Hasher struct {
	key [32]byte
}

// New создаёт Hasher из секрета конфигурации.
func New(secret string) (*Hasher, error) {
	const op = "hwid.New"
	if secret == "" {
		return nil, fmt.Errorf("%s: empty secret", op)
	}
	h := &Hasher{}
	blake3.DeriveKey(keyContext, []byte(secret), h.key[:])
	return h, nil
}

// Hash нормализует HWID (обрезает пробелы, приводит к верхнему регистру)
// и возвращает hex-представление его хэша.
func (h *Hasher) Hash(raw string) (string, error) {
	const op = "hwid.Hash"
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmpty)
	}

	hasher, err := blake3.NewKeyed(h.key[:])
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	_, _ = hasher.Write([]byte(normalized))
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
