package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Archive writes every transmitted frame of one connection to a mono 16-bit
// WAV file, so an operator can audit exactly what the backend received.
type Archive struct {
	path string
	file *os.File
	enc  *wav.Encoder
	buf  *goaudio.IntBuffer
}

// CreateArchive opens dir/name.wav for writing.
func CreateArchive(dir, name string, sampleRate int) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name+".wav")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	return &Archive{
		path: path,
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, 16, 1, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Path is the file being written.
func (a *Archive) Path() string { return a.path }

// Write appends one encoded frame.
func (a *Archive) Write(f Frame) error {
	n := len(f.PCM) / 2
	if cap(a.buf.Data) < n {
		a.buf.Data = make([]int, n)
	}
	a.buf.Data = a.buf.Data[:n]
	for i := 0; i < n; i++ {
		a.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(f.PCM[i*2:])))
	}
	return a.enc.Write(a.buf)
}

// Close finalizes the WAV header and closes the file.
func (a *Archive) Close() error {
	if err := a.enc.Close(); err != nil {
		_ = a.file.Close()
		return err
	}
	return a.file.Close()
}
