package forensic

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/MrWong99/veritasvoice/pkg/types"
)

// ErrClassifierInvariant is returned when the classifier is handed features
// or produces a verdict that violates its own contract. It indicates a bug,
// not bad input, and maps to an internal server error.
var ErrClassifierInvariant = errors.New("forensic: classifier invariant violated")

// SignaturePrefix marks every audit signature.
const SignaturePrefix = "VX-"

// Trap and heuristic constants.
const (
	minClassifyBytes = 500
	silenceEnergy    = 5.0

	shortConfidence   = 0.51
	silentConfidence  = 0.60
	baseConfidence    = 0.75
	maxConfidence     = 0.99
	confidenceSlope   = 0.5
	decisionThreshold = 0.55

	baseScore          = 0.5
	lowCompression     = 0.90
	lowCompressionGain = 0.20
	highCompression    = 0.98
	highCompressionHit = 0.10
	largeSizeKB        = 10.0
	largeSizeGain      = 0.10

	scoreWeight  = 0.7
	jitterWeight = 0.3
)

// Trap reasons.
const (
	ReasonTooShort = "input too short/empty"
	ReasonSilence  = "low energy/silence detected"
)

// Classify turns data and its FeatureSet into a verdict. Rules are evaluated
// in order and the first match wins:
//
//  1. fewer than 500 bytes: HUMAN at 0.51
//  2. average energy below 5: HUMAN at 0.60
//  3. weighted heuristic score blended with a content-hash jitter
//
// The only error is ErrClassifierInvariant.
func Classify(data []byte, fs types.FeatureSet) (types.ClassificationResult, error) {
	if err := checkFeatures(fs); err != nil {
		return types.ClassificationResult{}, err
	}

	sum := sha256.Sum256(data)
	sig := signature(sum)

	var res types.ClassificationResult
	switch {
	case len(data) < minClassifyBytes:
		res = types.ClassificationResult{
			Prediction: types.PredictionHuman,
			Confidence: shortConfidence,
			Signature:  sig,
			Reason:     ReasonTooShort,
		}
	case fs.AvgEnergy < silenceEnergy:
		res = types.ClassificationResult{
			Prediction: types.PredictionHuman,
			Confidence: silentConfidence,
			Signature:  sig,
			Reason:     ReasonSilence,
		}
	default:
		res = score(sum, sig, fs)
	}

	if err := checkResult(res); err != nil {
		return types.ClassificationResult{}, err
	}
	return res, nil
}

func score(sum [sha256.Size]byte, sig string, fs types.FeatureSet) types.ClassificationResult {
	s := baseScore
	if fs.Compression < lowCompression {
		s += lowCompressionGain
	}
	if fs.Compression > highCompression {
		s -= highCompressionHit
	}
	if fs.SizeKB > largeSizeKB {
		s += largeSizeGain
	}

	j := jitter(sum)
	final := scoreWeight*s + jitterWeight*j

	pred := types.PredictionHuman
	if final > decisionThreshold {
		pred = types.PredictionAI
	}
	conf := math.Min(baseConfidence+confidenceSlope*math.Abs(final-decisionThreshold), maxConfidence)

	return types.ClassificationResult{
		Prediction: pred,
		Confidence: scalar.Round(conf, precision),
		Signature:  sig,
		Reason: fmt.Sprintf("score=%.2f;jitter=%.4f;final=%.4f;compression=%.4f;energy=%.4f;size_kb=%.4f",
			s, j, final, fs.Compression, fs.AvgEnergy, fs.SizeKB),
	}
}

// jitter maps the first 16 bits of the content hash into [0, 1].
func jitter(sum [sha256.Size]byte) float64 {
	return float64(binary.BigEndian.Uint16(sum[:2])) / math.MaxUint16
}

func signature(sum [sha256.Size]byte) string {
	return SignaturePrefix + strings.ToUpper(hex.EncodeToString(sum[:4]))
}

// Signature returns the audit signature of data.
func Signature(data []byte) string {
	return signature(sha256.Sum256(data))
}

func checkFeatures(fs types.FeatureSet) error {
	for name, v := range map[string]float64{
		"size_kb":     fs.SizeKB,
		"compression": fs.Compression,
		"avg_energy":  fs.AvgEnergy,
		"zcr":         fs.ZCR,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: feature %s=%v", ErrClassifierInvariant, name, v)
		}
	}
	return nil
}

func checkResult(res types.ClassificationResult) error {
	switch {
	case !res.Prediction.IsValid():
		return fmt.Errorf("%w: prediction %q", ErrClassifierInvariant, res.Prediction)
	case math.IsNaN(res.Confidence) || res.Confidence <= 0 || res.Confidence >= 1:
		return fmt.Errorf("%w: confidence %v", ErrClassifierInvariant, res.Confidence)
	case len(res.Signature) != len(SignaturePrefix)+8:
		return fmt.Errorf("%w: signature %q", ErrClassifierInvariant, res.Signature)
	}
	return nil
}
