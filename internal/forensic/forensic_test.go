package forensic

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/MrWong99/veritasvoice/pkg/types"
)

// hashChain concatenates sha256(fmt.Sprintf(format, i)) for i = 0.. and
// truncates to n bytes. It gives reproducible high-entropy fixtures.
func hashChain(format string, n int) []byte {
	var out []byte
	for i := 0; len(out) < n; i++ {
		sum := sha256.Sum256([]byte(fmt.Sprintf(format, i)))
		out = append(out, sum[:]...)
	}
	return out[:n]
}

// ramp returns n bytes counting 0..255 repeatedly.
func ramp(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 256)
	}
	return out
}

func mustClassify(t *testing.T, data []byte) types.ClassificationResult {
	t.Helper()
	res, err := Classify(data, Extract(data))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	return res
}

// ── Extract ──────────────────────────────────────────────────────────────────

func TestExtract_Empty(t *testing.T) {
	t.Parallel()
	if fs := Extract(nil); !fs.IsEmpty() {
		t.Errorf("Extract(nil) = %+v, want empty", fs)
	}
	if fs := Extract([]byte{}); !fs.IsEmpty() {
		t.Errorf("Extract([]) = %+v, want empty", fs)
	}
}

func TestExtract_ConstantBuffersAreSilent(t *testing.T) {
	t.Parallel()
	for _, b := range []byte{0x00, 0x80, 0xC8, 0xFF} {
		t.Run(fmt.Sprintf("0x%02X", b), func(t *testing.T) {
			fs := Extract(bytes.Repeat([]byte{b}, 2000))
			if fs.AvgEnergy != 0 {
				t.Errorf("AvgEnergy = %v, want 0", fs.AvgEnergy)
			}
			if fs.ZCR != 0 {
				t.Errorf("ZCR = %v, want 0", fs.ZCR)
			}
			if fs.Compression >= lowCompression {
				t.Errorf("constant buffer should compress well, got %v", fs.Compression)
			}
		})
	}
}

func TestExtract_EnergyIgnoresDCOffset(t *testing.T) {
	t.Parallel()

	// Inspected samples alternate 0xC8 and 0xD0: centred on 128 they are 72
	// and 80, far from zero, but they only swing 4 around their mean of 76.
	data := bytes.Repeat([]byte{0xC8}, 2000)
	for i := 0; i < len(data); i += probeStride {
		if (i/probeStride)%2 == 1 {
			data[i] = 0xD0
		}
	}

	fs := Extract(data)
	if fs.AvgEnergy != 16 {
		t.Errorf("AvgEnergy = %v, want 16 (variance around the offset, not 5792)", fs.AvgEnergy)
	}
	if fs.ZCR != 0.995 {
		t.Errorf("ZCR = %v, want 0.995 from 199 crossings in 200 samples", fs.ZCR)
	}
	if res := mustClassify(t, data); res.Reason == ReasonSilence {
		t.Errorf("a swinging signal above the silence threshold hit the silence trap: %+v", res)
	}
}

func TestExtract_HighEntropy(t *testing.T) {
	t.Parallel()
	fs := Extract(hashChain("scenario-c-%d", 20_000))
	if math.Abs(fs.SizeKB-20_000.0/1024) > 1e-4 {
		t.Errorf("SizeKB = %v, want ~19.5312", fs.SizeKB)
	}
	if fs.Compression <= highCompression {
		t.Errorf("Compression = %v, want > %v", fs.Compression, highCompression)
	}
	if fs.AvgEnergy < 5000 || fs.AvgEnergy > 5700 {
		t.Errorf("AvgEnergy = %v, want roughly uniform-noise variance", fs.AvgEnergy)
	}
	if fs.ZCR < 0.4 || fs.ZCR > 0.6 {
		t.Errorf("ZCR = %v, want near 0.5", fs.ZCR)
	}
}

func TestExtract_Rounded(t *testing.T) {
	t.Parallel()
	fs := Extract(hashChain("round-%d", 3333))
	for name, v := range map[string]float64{
		"size_kb": fs.SizeKB, "compression": fs.Compression,
		"avg_energy": fs.AvgEnergy, "zcr": fs.ZCR,
	} {
		if scaled := v * 1e4; math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Errorf("%s = %v has more than 4 decimals", name, v)
		}
	}
}

func TestExtract_ProbeLimitedToPrefix(t *testing.T) {
	t.Parallel()
	prefix := hashChain("prefix-%d", probeLimit)
	a := append(append([]byte{}, prefix...), bytes.Repeat([]byte{0}, 5000)...)
	b := append(append([]byte{}, prefix...), bytes.Repeat([]byte{0xFF}, 5000)...)
	fa, fb := Extract(a), Extract(b)
	if fa.AvgEnergy != fb.AvgEnergy || fa.ZCR != fb.ZCR {
		t.Errorf("bytes past the probe window changed energy/zcr: %+v vs %+v", fa, fb)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	t.Parallel()
	data := hashChain("det-%d", 7000)
	if a, b := Extract(data), Extract(bytes.Clone(data)); a != b {
		t.Errorf("Extract not deterministic: %+v vs %+v", a, b)
	}
}

// ── Classify: traps ─────────────────────────────────────────────────────────

func TestClassify_ShortInputTrap(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 50, 499} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			res := mustClassify(t, hashChain("short-%d", n))
			if res.Prediction != types.PredictionHuman || res.Confidence != 0.51 {
				t.Errorf("got %s %.2f, want HUMAN 0.51", res.Prediction, res.Confidence)
			}
			if res.Reason != ReasonTooShort {
				t.Errorf("Reason = %q", res.Reason)
			}
		})
	}
}

func TestClassify_SilenceTrap(t *testing.T) {
	t.Parallel()
	res := mustClassify(t, make([]byte, 2000))
	if res.Prediction != types.PredictionHuman || res.Confidence != 0.60 {
		t.Errorf("got %s %.2f, want HUMAN 0.60", res.Prediction, res.Confidence)
	}
	if res.Reason != ReasonSilence {
		t.Errorf("Reason = %q", res.Reason)
	}
	if res.Signature != "VX-2DA42FB1" {
		t.Errorf("Signature = %q, want VX-2DA42FB1", res.Signature)
	}
}

func TestClassify_EmptyFeatureSetHitsSilenceTrap(t *testing.T) {
	t.Parallel()
	data := hashChain("degraded-%d", 4000)
	res, err := Classify(data, types.FeatureSet{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Reason != ReasonSilence || res.Confidence != 0.60 {
		t.Errorf("degraded extraction should classify as silence, got %+v", res)
	}
}

// ── Classify: heuristic ─────────────────────────────────────────────────────

func TestClassify_KnownVectors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		data       []byte
		prediction types.Prediction
		confidence float64
		signature  string
	}{
		{"high entropy 20000", hashChain("scenario-c-%d", 20_000), types.PredictionHuman, 0.8112, "VX-42471BA8"},
		{"ramp 12000", ramp(12_000), types.PredictionAI, 0.8119, "VX-612CAC55"},
		{"high entropy 600", hashChain("tiny-%d", 600), types.PredictionHuman, 0.8355, "VX-5469B473"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustClassify(t, tt.data)
			if res.Prediction != tt.prediction {
				t.Errorf("Prediction = %s, want %s (reason %s)", res.Prediction, tt.prediction, res.Reason)
			}
			if res.Confidence != tt.confidence {
				t.Errorf("Confidence = %v, want %v", res.Confidence, tt.confidence)
			}
			if res.Signature != tt.signature {
				t.Errorf("Signature = %q, want %q", res.Signature, tt.signature)
			}
			if !strings.HasPrefix(res.Reason, "score=") {
				t.Errorf("Reason = %q, want structured score string", res.Reason)
			}
		})
	}
}

func TestClassify_ConfidenceBounds(t *testing.T) {
	t.Parallel()
	for i := range 200 {
		data := hashChain(fmt.Sprintf("bounds-%d-%%d", i), 600+i*97)
		res := mustClassify(t, data)
		if res.Confidence < baseConfidence || res.Confidence > maxConfidence {
			t.Fatalf("sample %d: confidence %v outside [0.75, 0.99]", i, res.Confidence)
		}
		if res.Confidence == 1.0 {
			t.Fatalf("sample %d: confidence reached 1.0", i)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()
	data := hashChain("determinism-%d", 15_000)
	first := mustClassify(t, data)
	for range 5 {
		if got := mustClassify(t, bytes.Clone(data)); got != first {
			t.Fatalf("Classify not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestClassify_BitFlipChangesSignature(t *testing.T) {
	t.Parallel()
	data := hashChain("scenario-c-%d", 20_000)
	flipped := bytes.Clone(data)
	flipped[0] ^= 0x01

	a, b := mustClassify(t, data), mustClassify(t, flipped)
	if a.Signature == b.Signature {
		t.Errorf("single bit flip kept signature %s", a.Signature)
	}
	if b.Signature != "VX-9B1578D0" {
		t.Errorf("flipped Signature = %q, want VX-9B1578D0", b.Signature)
	}
}

func TestClassify_InvariantViolation(t *testing.T) {
	t.Parallel()
	data := hashChain("nan-%d", 2000)
	tests := []struct {
		name string
		fs   types.FeatureSet
	}{
		{"nan energy", types.FeatureSet{SizeKB: 1.9531, Compression: 1.0, AvgEnergy: math.NaN()}},
		{"inf compression", types.FeatureSet{SizeKB: 1.9531, Compression: math.Inf(1), AvgEnergy: 100}},
		{"negative size", types.FeatureSet{SizeKB: -1, Compression: 1.0, AvgEnergy: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(data, tt.fs)
			if !errors.Is(err, ErrClassifierInvariant) {
				t.Errorf("err = %v, want ErrClassifierInvariant", err)
			}
		})
	}
}

func TestSignature(t *testing.T) {
	t.Parallel()
	data := make([]byte, 2000)
	if got := Signature(data); got != "VX-2DA42FB1" {
		t.Errorf("Signature = %q", got)
	}
	if got := mustClassify(t, data).Signature; got != Signature(data) {
		t.Errorf("Classify signature %q differs from Signature %q", got, Signature(data))
	}
}
