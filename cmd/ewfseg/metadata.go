package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meigma/ewf"
)

// acquisitionFile is the YAML acquisition metadata accepted by acquire.
type acquisitionFile struct {
	Case        string    `yaml:"case"`
	Evidence    string    `yaml:"evidence"`
	Description string    `yaml:"description"`
	Examiner    string    `yaml:"examiner"`
	Notes       string    `yaml:"notes"`
	Acquired    time.Time `yaml:"acquired,omitempty"`
}

func loadAcquisitionFile(path string) (ewf.Header, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path supplied by the operator
	if err != nil {
		return ewf.Header{}, err
	}
	var meta acquisitionFile
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return ewf.Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return ewf.Header{
		CaseNumber:     meta.Case,
		EvidenceNumber: meta.Evidence,
		Description:    meta.Description,
		Examiner:       meta.Examiner,
		Notes:          meta.Notes,
		AcquiredAt:     meta.Acquired,
	}, nil
}

// imageInfo is the report printed by info.
type imageInfo struct {
	Format      string            `yaml:"format"`
	MediaType   string            `yaml:"media_type"`
	Size        uint64            `yaml:"size"`
	ChunkSize   int               `yaml:"chunk_size"`
	Chunks      uint64            `yaml:"chunks"`
	SetID       string            `yaml:"set_identifier"`
	Segments    []string          `yaml:"segments"`
	Header      map[string]string `yaml:"header"`
	MD5         string            `yaml:"md5,omitempty"`
	SHA1        string            `yaml:"sha1,omitempty"`
	DeltaChunks []uint64          `yaml:"delta_chunks,omitempty"`
}

func writeYAML(v any) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	check(enc.Encode(v))
	check(enc.Close())
}
