package audio

import (
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps raw PCM in a RIFF/WAVE container so each segment is
// self-contained and decodable without out-of-band format metadata.
func EncodeWAV(pcm []byte, config Config) []byte {
	byteRate := config.BytesPerSecond()
	blockAlign := config.Channels * (config.BitsPerSample / 8)

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(config.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(config.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(config.BitsPerSample))

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// DecodeWAV extracts the PCM payload and format from a RIFF/WAVE container
// produced by EncodeWAV or any canonical PCM WAV writer.
func DecodeWAV(data []byte) ([]byte, Config, error) {
	if len(data) < wavHeaderSize {
		return nil, Config{}, fmt.Errorf("wav container too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Config{}, fmt.Errorf("not a RIFF/WAVE container")
	}
	if binary.LittleEndian.Uint16(data[20:22]) != 1 {
		return nil, Config{}, fmt.Errorf("unsupported wav encoding (want PCM)")
	}

	cfg := Config{
		Channels:      int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
	}

	dataLen := int(binary.LittleEndian.Uint32(data[40:44]))
	payload := data[wavHeaderSize:]
	if dataLen < len(payload) {
		payload = payload[:dataLen]
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, cfg, nil
}
