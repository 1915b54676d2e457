package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/grader/internal/model"
)

// DecodeQuestionBank parses a question bank file. Files ending in .yaml or
// .yml are read as YAML, everything else as JSON. Unknown fields are rejected.
func DecodeQuestionBank(fileName string, data []byte) (model.QuestionBank, error) {
	var b model.QuestionBank
	switch strings.ToLower(path.Ext(fileName)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&b); err != nil {
			return b, fmt.Errorf("%w: decode %s: %v", model.ErrInvalidQuestionBank, fileName, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			return b, fmt.Errorf("%w: decode %s: %v", model.ErrInvalidQuestionBank, fileName, err)
		}
	}
	if b.Name == "" {
		b.Name = strings.TrimSuffix(path.Base(fileName), path.Ext(fileName))
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	return b, nil
}

// ImportQuestionBank stores the question bank in data unless a file with the
// same content was imported before. It returns the bank id and whether a new
// bank was created.
func (s *Store) ImportQuestionBank(fileName string, data []byte) (int64, bool, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	id, err := s.ImportedBank(hash)
	if err != nil {
		return 0, false, fmt.Errorf("check import: %w", err)
	}
	if id != 0 {
		return id, false, nil
	}

	b, err := DecodeQuestionBank(fileName, data)
	if err != nil {
		return 0, false, err
	}
	id, err = s.CreateQuestionBank(b)
	if err != nil {
		return 0, false, fmt.Errorf("create question bank: %w", err)
	}
	if err := s.RecordImport(hash, id); err != nil {
		return 0, false, fmt.Errorf("record import: %w", err)
	}
	return id, true, nil
}
