package models

import (
	"fmt"
	"path/filepath"
)

type layout struct {
	family Family
	files  map[string]string
}

// legacyLayouts is the fixed file naming used by model bundles without a
// manifest. The first layout whose files all exist wins.
var legacyLayouts = []layout{
	{FamilySenseVoice, map[string]string{"model": "sense-voice.onnx"}},
	{FamilyWhisper, map[string]string{
		"encoder": "whisper-encoder.onnx",
		"decoder": "whisper-decoder.onnx",
	}},
	{FamilyTransducer, map[string]string{
		"encoder": "transducer-encoder.onnx",
		"decoder": "transducer-decoder.onnx",
		"joiner":  "transducer-joiner.onnx",
	}},
	{FamilyNemoTransducer, map[string]string{
		"encoder": "nemo-transducer-encoder.onnx",
		"decoder": "nemo-transducer-decoder.onnx",
		"joiner":  "nemo-transducer-joiner.onnx",
	}},
	{FamilyParaformer, map[string]string{"model": "paraformer.onnx"}},
	{FamilyTeleSpeechCTC, map[string]string{"model": "telespeech.onnx"}},
	{FamilyMoonshine, map[string]string{
		"preprocessor":     "moonshine-preprocessor.onnx",
		"encoder":          "moonshine-encoder.onnx",
		"uncached_decoder": "moonshine-uncached-decoder.onnx",
		"cached_decoder":   "moonshine-cached-decoder.onnx",
	}},
	{FamilyHMM, map[string]string{
		"acoustic": "hmm-acoustic.bin",
		"language": "hmm-language.arpa",
		"lexicon":  "hmm-lexicon.txt",
	}},
}

const (
	legacyTokens = "tokens.txt"
	legacyVAD    = "silero_vad.onnx"
)

// Probe inspects dir for a legacy model layout.
func Probe(dir string) (Set, error) {
	for _, l := range legacyLayouts {
		if !exists(filepath.Join(dir, l.files[firstRole(l.family)])) {
			continue
		}

		set := Set{
			Dir:    dir,
			Family: l.family,
			Files:  make(map[string]string, len(l.files)),
			Source: "probe",
		}
		complete := true
		for role, name := range l.files {
			p := filepath.Join(dir, name)
			if !exists(p) {
				complete = false
				break
			}
			set.Files[role] = p
		}
		if !complete {
			return Set{}, fmt.Errorf("%w: %s bundle in %s is incomplete", ErrNoModelFound, l.family, dir)
		}

		if NeedsTokens(l.family) {
			set.Tokens = filepath.Join(dir, legacyTokens)
			if !exists(set.Tokens) {
				return Set{}, fmt.Errorf("%w: %s bundle in %s has no %s", ErrNoModelFound, l.family, dir, legacyTokens)
			}
		}
		if vad := filepath.Join(dir, legacyVAD); exists(vad) {
			set.VAD = vad
		}
		if l.family == FamilySenseVoice {
			set.Options.UseITN = true
		}
		return set, nil
	}

	return Set{}, fmt.Errorf("%w in %s", ErrNoModelFound, dir)
}

func firstRole(f Family) string {
	return requiredRoles[f][0]
}
