package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"lexcheck/internal/model"
)

// maxLineBytes bounds one JSONL record; OCR segments for a dense page
// stay well under this.
const maxLineBytes = 4 << 20

// ReadSegments parses one act's ordered segments from JSONL.
func ReadSegments(r io.Reader) ([]model.Segment, error) {
	var segments []model.Segment
	err := eachLine(r, func(lineNo int, data []byte) error {
		var seg model.Segment
		if err := json.Unmarshal(data, &seg); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		segments = append(segments, seg)
		return nil
	})
	return segments, err
}

// ReadCitations parses citations from JSONL.
func ReadCitations(r io.Reader) ([]model.Citation, error) {
	var citations []model.Citation
	err := eachLine(r, func(lineNo int, data []byte) error {
		var c model.Citation
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if c.ID == "" {
			return fmt.Errorf("line %d: citation without id", lineNo)
		}
		citations = append(citations, c)
		return nil
	})
	return citations, err
}

// ReadSegmentsFile reads segments from a JSONL file on disk.
func ReadSegmentsFile(path string) ([]model.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSegments(f)
}

// ReadCitationsFile reads citations from a JSONL file on disk.
func ReadCitationsFile(path string) ([]model.Citation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCitations(f)
}

func eachLine(r io.Reader, fn func(lineNo int, data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(lineNo, []byte(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
