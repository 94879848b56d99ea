// Package models resolves which recognizer family and files to load.
package models

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file looked up in the model directory.
const ManifestName = "manifest.yaml"

// ErrNoModelFound reports that neither a manifest nor any known model layout exists.
var ErrNoModelFound = errors.New("no recognizer model found")

// Family identifies a recognizer architecture.
type Family string

const (
	FamilySenseVoice     Family = "sense_voice"
	FamilyWhisper        Family = "whisper"
	FamilyTransducer     Family = "transducer"
	FamilyNemoTransducer Family = "nemo_transducer"
	FamilyParaformer     Family = "paraformer"
	FamilyTeleSpeechCTC  Family = "telespeech_ctc"
	FamilyMoonshine      Family = "moonshine"
	FamilyHMM            Family = "hmm"
)

var requiredRoles = map[Family][]string{
	FamilySenseVoice:     {"model"},
	FamilyWhisper:        {"encoder", "decoder"},
	FamilyTransducer:     {"encoder", "decoder", "joiner"},
	FamilyNemoTransducer: {"encoder", "decoder", "joiner"},
	FamilyParaformer:     {"model"},
	FamilyTeleSpeechCTC:  {"model"},
	FamilyMoonshine:      {"preprocessor", "encoder", "uncached_decoder", "cached_decoder"},
	FamilyHMM:            {"acoustic", "language", "lexicon"},
}

// Families lists every known family in probe order.
func Families() []Family {
	return []Family{
		FamilySenseVoice,
		FamilyWhisper,
		FamilyTransducer,
		FamilyNemoTransducer,
		FamilyParaformer,
		FamilyTeleSpeechCTC,
		FamilyMoonshine,
		FamilyHMM,
	}
}

// RequiredRoles returns the file roles a family needs.
func RequiredRoles(f Family) []string {
	return slices.Clone(requiredRoles[f])
}

// NeedsTokens reports whether the family reads a tokens table.
func NeedsTokens(f Family) bool {
	return f != FamilyHMM
}

// Options carries per-family decoding switches.
type Options struct {
	Language string `yaml:"language"`
	UseITN   bool   `yaml:"use_itn"`
}

// Set is a fully resolved model selection with absolute paths.
type Set struct {
	Dir     string
	Family  Family
	Files   map[string]string
	Tokens  string
	VAD     string
	Options Options
	// Source is "manifest" or "probe".
	Source string
}

// File returns the path for role, or "".
func (s Set) File(role string) string {
	return s.Files[role]
}

// Manifest is the on-disk form of manifest.yaml.
type Manifest struct {
	Family  Family            `yaml:"family"`
	Files   map[string]string `yaml:"files"`
	Tokens  string            `yaml:"tokens"`
	VAD     string            `yaml:"vad"`
	Options Options           `yaml:"options"`
}

// Validate checks that the manifest names a known family and all its roles.
func (m Manifest) Validate() error {
	roles, ok := requiredRoles[m.Family]
	if !ok {
		return fmt.Errorf("manifest family %q is not supported", m.Family)
	}

	var missing []string
	for _, role := range roles {
		if strings.TrimSpace(m.Files[role]) == "" {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("manifest family %q is missing files: %s", m.Family, strings.Join(missing, ", "))
	}
	if NeedsTokens(m.Family) && strings.TrimSpace(m.Tokens) == "" {
		return fmt.Errorf("manifest family %q requires tokens", m.Family)
	}
	return nil
}

// Resolve loads dir/manifest.yaml, or falls back to Probe when it is absent.
func Resolve(dir string) (Set, error) {
	if strings.TrimSpace(dir) == "" {
		return Set{}, fmt.Errorf("%w: model directory is empty", ErrNoModelFound)
	}

	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Probe(dir)
	case err != nil:
		return Set{}, fmt.Errorf("read manifest %s: %w", path, err)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return Set{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return manifest.resolve(dir)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, err
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m Manifest) resolve(dir string) (Set, error) {
	set := Set{
		Dir:     dir,
		Family:  m.Family,
		Files:   make(map[string]string, len(m.Files)),
		Options: m.Options,
		Source:  "manifest",
	}

	for role, file := range m.Files {
		p := join(dir, file)
		if !exists(p) {
			return Set{}, fmt.Errorf("%w: %s file %s does not exist", ErrNoModelFound, role, p)
		}
		set.Files[role] = p
	}
	if m.Tokens != "" {
		set.Tokens = join(dir, m.Tokens)
		if !exists(set.Tokens) {
			return Set{}, fmt.Errorf("%w: tokens file %s does not exist", ErrNoModelFound, set.Tokens)
		}
	}
	if m.VAD != "" {
		set.VAD = join(dir, m.VAD)
	}
	return set, nil
}

func join(dir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
