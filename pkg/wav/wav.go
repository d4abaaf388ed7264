// Package wav writes 32-bit float PCM WAV files incrementally.
//
// The header is written with zero sizes at create time and patched on
// Close, so a recording that is interrupted mid-write still has a valid
// RIFF structure up to the last flushed sample.
package wav

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/audiofold/go-tapcast/pkg/coreaudio"
)

const headerSize = 44

// wave_format_ieee_float
const formatFloat = 3

// Writer appends float32 PCM samples to a WAV file.
type Writer struct {
	f      *os.File
	format coreaudio.StreamFormat

	dataBytes uint32
	closed    bool
}

// Create opens path for writing and emits a float PCM WAV header for
// the given format. The format must be float linear PCM.
func Create(path string, format coreaudio.StreamFormat) (*Writer, error) {
	if !format.FloatPCM {
		return nil, fmt.Errorf("wav: format must be float PCM")
	}
	if format.SampleRate <= 0 || format.Channels == 0 {
		return nil, fmt.Errorf("wav: invalid format %+v", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &Writer{f: f, format: format}
	if err := w.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	var hdr [headerSize]byte

	sampleRate := uint32(w.format.SampleRate)
	channels := uint16(w.format.Channels)
	blockAlign := channels * 4
	byteRate := sampleRate * uint32(blockAlign)

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], headerSize-8+w.dataBytes)
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], formatFloat)
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], sampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], 32) // bits per sample

	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], w.dataBytes)

	_, err := w.f.WriteAt(hdr[:], 0)
	return err
}

// Append writes interleaved float32 samples in delivery order.
func (w *Writer) Append(samples []float32) error {
	if w.closed {
		return fmt.Errorf("wav: writer closed")
	}
	if len(samples) == 0 {
		return nil
	}

	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}

	n, err := w.f.Write(buf)
	w.dataBytes += uint32(n)
	if err != nil {
		return fmt.Errorf("wav: write failed: %w", err)
	}
	return nil
}

// Format returns the stream format the file was created with.
func (w *Writer) Format() coreaudio.StreamFormat {
	return w.format
}

// BytesWritten returns how many PCM data bytes have been appended.
func (w *Writer) BytesWritten() int {
	return int(w.dataBytes)
}

// Close patches the RIFF and data chunk sizes and closes the file.
// Safe to call once; further Appends fail.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	hdrErr := w.writeHeader()
	closeErr := w.f.Close()
	if hdrErr != nil {
		return hdrErr
	}
	return closeErr
}
