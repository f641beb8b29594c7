package service

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/rs/zerolog/log"
)

// ContainerLogSource is the part of the Docker API the log service reads from.
type ContainerLogSource interface {
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

// LogResult is the response of a log tail.
type LogResult struct {
	Type  string   `json:"type"`
	Logs  []string `json:"logs"`
	Count int      `json:"count"`
}

const containerLogPrefix = "container:"

// LogService tails host log files and container output.
type LogService struct {
	files    map[string]string // log type -> path
	docker   ContainerLogSource
	maxLines int
}

// NewLogService creates a log service. files maps the supported host log
// types (system, auth, kernel, docker) to paths. docker may be nil.
func NewLogService(files map[string]string, docker ContainerLogSource, maxLines int) *LogService {
	if maxLines < 1 {
		maxLines = 1000
	}
	return &LogService{files: files, docker: docker, maxLines: maxLines}
}

// Tail returns the last lines of the requested log. Unsupported types and
// unreadable sources yield a single descriptive line rather than an error.
func (s *LogService) Tail(ctx context.Context, logType string, lines int) LogResult {
	if lines <= 0 || lines > s.maxLines {
		lines = min(100, s.maxLines)
	}

	var out []string
	var err error
	switch {
	case strings.HasPrefix(logType, containerLogPrefix):
		out, err = s.tailContainer(ctx, strings.TrimPrefix(logType, containerLogPrefix), lines)
	default:
		path, ok := s.files[logType]
		if !ok {
			out = []string{fmt.Sprintf("Log type %q is not supported", logType)}
			break
		}
		out, err = tailFile(path, lines)
	}

	if err != nil {
		log.Debug().Err(err).Str("type", logType).Msg("Failed to read logs")
		out = []string{fmt.Sprintf("Unable to read %s logs: %v", logType, err)}
	}
	return LogResult{Type: logType, Logs: out, Count: len(out)}
}

func (s *LogService) tailContainer(ctx context.Context, id string, lines int) ([]string, error) {
	if id == "" {
		return nil, errors.New("container id is required")
	}
	if s.docker == nil {
		return nil, errors.New("container backend unavailable")
	}

	reader, err := s.docker.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       strconv.Itoa(lines),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}
	defer reader.Close()

	payload, err := demuxFrames(reader)
	if err != nil {
		return nil, err
	}
	return lastLines(strings.NewReader(string(payload)), lines)
}

// demuxFrames strips Docker's multiplexed stream headers. Each frame is an
// 8-byte header [stream, 0, 0, 0, size(4, big-endian)] followed by the payload.
func demuxFrames(r io.Reader) ([]byte, error) {
	var out []byte
	header := make([]byte, 8)
	buf := make([]byte, 32*1024)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("failed to read log header: %w", err)
		}

		size := binary.BigEndian.Uint32(header[4:])
		if size == 0 {
			continue
		}
		if size > uint32(len(buf)) {
			buf = make([]byte, size)
		}

		n, err := io.ReadFull(r, buf[:size])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return append(out, buf[:n]...), nil
			}
			return nil, fmt.Errorf("failed to read log payload: %w", err)
		}
		out = append(out, buf[:n]...)
	}
}

func tailFile(path string, lines int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return lastLines(f, lines)
}

// lastLines keeps a ring of the final n lines of r.
func lastLines(r io.Reader, n int) ([]string, error) {
	ring := make([]string, 0, n)
	start := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(ring) < n {
			ring = append(ring, line)
			continue
		}
		ring[start] = line
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(ring))
	out = append(out, ring[start:]...)
	out = append(out, ring[:start]...)
	return out, nil
}
