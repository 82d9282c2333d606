package audio

import (
	"fmt"
	"math"
)

// EncodePCM16 converts normalized float samples in [-1, 1] to 16-bit signed PCM.
// Out-of-range input is clamped, not rejected. Negative samples scale by 32768
// and positive ones by 32767 so both ends of the int16 range are reachable.
func EncodePCM16(samples []float32) []int16 {
	pcm := make([]int16, len(samples))
	EncodePCM16Into(pcm, samples)
	return pcm
}

// EncodePCM16Into encodes into a caller-provided destination to avoid
// allocating on every capture callback. dst must be at least len(samples).
func EncodePCM16Into(dst []int16, samples []float32) {
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		if s < 0 {
			dst[i] = int16(s * 32768)
		} else {
			dst[i] = int16(s * 32767)
		}
	}
}

// PCM16Bytes serializes 16-bit samples as little-endian bytes, the layout the
// streaming backend expects.
func PCM16Bytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodePCM16 converts little-endian PCM16 bytes back to samples.
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (got %d bytes)", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// DecodeFloat32 converts little-endian IEEE754 bytes to normalized samples,
// the layout capture devices deliver when they produce float blocks.
func DecodeFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 data length must be a multiple of 4 (got %d bytes)", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// Resample performs linear interpolation resampling. Capture devices that do
// not run natively at the backend's 16 kHz rate go through this before
// encoding.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// CalculateRMS calculates the root mean square of audio samples.
// Used by the silence gate to decide whether a window carries speech.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// RMSBytes computes RMS directly over little-endian PCM16 bytes.
func RMSBytes(data []byte) float64 {
	if len(data) < 2 {
		return 0.0
	}
	n := len(data) / 2
	sum := 0.0
	for i := 0; i < n; i++ {
		s := float64(int16(data[i*2]) | int16(data[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
