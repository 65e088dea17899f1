// Package forensic implements the deterministic local classifier: cheap
// signal proxies extracted from raw audio bytes and a trap-aware heuristic
// that turns them into an AI/HUMAN verdict.
//
// Everything in this package is pure. The same bytes always produce the same
// FeatureSet and the same ClassificationResult, so results can be audited by
// recomputing them from the signature's source content.
package forensic

import (
	"bytes"
	"compress/zlib"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/veritasvoice/pkg/types"
)

const (
	// probeLimit is the number of leading bytes inspected for energy and ZCR.
	probeLimit = 10_000

	// probeStride is the distance between inspected bytes.
	probeStride = 10

	// precision is the number of decimals features and confidences are
	// rounded to.
	precision = 4
)

// Extract computes the FeatureSet of data. It never fails: an empty input or
// an internal compression error yields the empty FeatureSet.
func Extract(data []byte) types.FeatureSet {
	if len(data) == 0 {
		return types.FeatureSet{}
	}

	ratio, err := compressionRatio(data)
	if err != nil {
		slog.Warn("forensic: compression probe failed", "err", err, "bytes", len(data))
		return types.FeatureSet{}
	}

	energy, zcr := probe(data)

	fs := types.FeatureSet{
		SizeKB:      scalar.Round(float64(len(data))/1024, precision),
		Compression: scalar.Round(ratio, precision),
		AvgEnergy:   scalar.Round(energy, precision),
		ZCR:         scalar.Round(zcr, precision),
	}
	if !finite(fs) {
		return types.FeatureSet{}
	}
	return fs
}

// compressionRatio returns len(zlib(data)) / len(data) at the default level.
func compressionRatio(data []byte) (float64, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return float64(buf.Len()) / float64(len(data)), nil
}

// probe subsamples the first probeLimit bytes with probeStride, treats each
// byte as an unsigned 8-bit sample centred on 128, removes the DC offset and
// returns the mean squared amplitude and the zero-crossing rate.
//
// DC removal keeps constant buffers (all zeros, all 0xFF) at zero energy so
// they are caught by the silence trap instead of reading as full-scale signal.
func probe(data []byte) (energy, zcr float64) {
	n := min(len(data), probeLimit)
	samples := make([]float64, 0, (n+probeStride-1)/probeStride)
	for i := 0; i < n; i += probeStride {
		samples = append(samples, float64(data[i])-128)
	}
	if len(samples) == 0 {
		return 0, 0
	}

	floats.AddConst(-stat.Mean(samples, nil), samples)
	energy = floats.Dot(samples, samples) / float64(len(samples))

	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	zcr = float64(crossings) / float64(len(samples))
	return energy, zcr
}

func finite(fs types.FeatureSet) bool {
	for _, v := range []float64{fs.SizeKB, fs.Compression, fs.AvgEnergy, fs.ZCR} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
