package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
}

func TestResolveManifest(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "enc.onnx", "dec.onnx", "tokens.txt")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(`
family: whisper
files:
  encoder: enc.onnx
  decoder: dec.onnx
tokens: tokens.txt
vad: silero_vad.onnx
options:
  language: en
`), 0o600))

	set, err := Resolve(dir)
	require.NoError(t, err)
	require.Equal(t, FamilyWhisper, set.Family)
	require.Equal(t, "manifest", set.Source)
	require.Equal(t, filepath.Join(dir, "enc.onnx"), set.File("encoder"))
	require.Equal(t, filepath.Join(dir, "tokens.txt"), set.Tokens)
	require.Equal(t, filepath.Join(dir, "silero_vad.onnx"), set.VAD)
	require.Equal(t, "en", set.Options.Language)
}

func TestParseManifestRejectsMissingRole(t *testing.T) {
	_, err := ParseManifest([]byte("family: transducer\nfiles:\n  encoder: a\n  decoder: b\ntokens: t\n"))
	require.ErrorContains(t, err, "missing files: joiner")
}

func TestParseManifestRejectsUnknownFields(t *testing.T) {
	_, err := ParseManifest([]byte("family: paraformer\nfiles:\n  model: a\ntokens: t\nbogus: 1\n"))
	require.Error(t, err)
}

func TestParseManifestRejectsUnknownFamily(t *testing.T) {
	_, err := ParseManifest([]byte("family: wav2vec\n"))
	require.ErrorContains(t, err, "not supported")
}

func TestParseManifestHMMNeedsNoTokens(t *testing.T) {
	m, err := ParseManifest([]byte("family: hmm\nfiles:\n  acoustic: am\n  language: lm.arpa\n  lexicon: dict.txt\n"))
	require.NoError(t, err)
	require.Equal(t, FamilyHMM, m.Family)
}

func TestResolveManifestMissingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("family: paraformer\nfiles:\n  model: p.onnx\ntokens: tokens.txt\n"), 0o600))

	_, err := Resolve(dir)
	require.ErrorIs(t, err, ErrNoModelFound)
}

func TestProbeOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "tokens.txt", "paraformer.onnx", "whisper-encoder.onnx", "whisper-decoder.onnx")

	set, err := Resolve(dir)
	require.NoError(t, err)
	require.Equal(t, FamilyWhisper, set.Family)
	require.Equal(t, "probe", set.Source)
	require.Empty(t, set.VAD)
}

func TestProbeSenseVoiceEnablesITN(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "tokens.txt", "sense-voice.onnx", "silero_vad.onnx")

	set, err := Probe(dir)
	require.NoError(t, err)
	require.Equal(t, FamilySenseVoice, set.Family)
	require.True(t, set.Options.UseITN)
	require.Equal(t, filepath.Join(dir, "silero_vad.onnx"), set.VAD)
}

func TestProbeHMM(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "hmm-acoustic.bin", "hmm-language.arpa", "hmm-lexicon.txt")

	set, err := Probe(dir)
	require.NoError(t, err)
	require.Equal(t, FamilyHMM, set.Family)
	require.Empty(t, set.Tokens)
}

func TestProbeIncompleteBundle(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "tokens.txt", "transducer-encoder.onnx")

	_, err := Probe(dir)
	require.ErrorIs(t, err, ErrNoModelFound)
	require.ErrorContains(t, err, "incomplete")
}

func TestProbeEmptyDir(t *testing.T) {
	_, err := Resolve(t.TempDir())
	require.ErrorIs(t, err, ErrNoModelFound)

	_, err = Resolve("")
	require.ErrorIs(t, err, ErrNoModelFound)
}

func TestRequiredRolesIsACopy(t *testing.T) {
	roles := RequiredRoles(FamilyWhisper)
	roles[0] = "changed"
	require.Equal(t, "encoder", RequiredRoles(FamilyWhisper)[0])
	require.Len(t, Families(), 8)
}
