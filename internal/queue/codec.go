package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/sandbox/api"
)

const (
	EncodingAttribute = "content-encoding"
	EncodingZstd      = "zstd+base64"

	// compressThreshold keeps bodies well under the 256 KiB SQS limit.
	compressThreshold = 64 << 10
	maxDecodedSize    = 64 << 20
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
)

// EncodeJob returns the message body and its encoding. Small jobs are
// plain JSON with an empty encoding.
func EncodeJob(job api.Job) (body string, encoding string, err error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal job: %w", err)
	}
	if len(raw) < compressThreshold {
		return string(raw), "", nil
	}
	compressed := encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))
	return base64.StdEncoding.EncodeToString(compressed), EncodingZstd, nil
}

func DecodeJob(body string, encoding string) (api.Job, error) {
	var job api.Job
	raw := []byte(body)
	switch encoding {
	case "":
	case EncodingZstd:
		compressed, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return job, fmt.Errorf("failed to decode base64 body: %w", err)
		}
		raw, err = decoder.DecodeAll(compressed, nil)
		if err != nil {
			return job, fmt.Errorf("failed to decompress body: %w", err)
		}
	default:
		return job, fmt.Errorf("unknown encoding %q", encoding)
	}
	if err := json.Unmarshal(raw, &job); err != nil {
		return job, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.SubmissionID == "" {
		return job, fmt.Errorf("job has no submissionId")
	}
	return job, nil
}
