package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedLog is returned by ReadLog for a line it cannot parse.
var ErrMalformedLog = errors.New("malformed sensor log")

// ReadLog parses a recorded sensor log and pushes its samples into feed,
// closing both inputs when r is exhausted. Lines are
//
//	H <RFC3339 time> <magnetic heading °> [accuracy °]
//	P <RFC3339 time> <pitch °>
//	R <RFC3339 time> <attitude pitch rad>
//	A <RFC3339 time> <ax> <ay> <az>
//
// R and A records are converted to pitch samples.
// Blank lines and lines starting with # are ignored.
func ReadLog(ctx context.Context, r io.Reader, feed *Feed) error {
	defer close(feed.headings)
	defer close(feed.pitches)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sample, err := parseLogLine(line)
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrMalformedLog, lineNo, err)
		}

		switch s := sample.(type) {
		case HeadingSample:
			select {
			case feed.headings <- s:
			case <-ctx.Done():
				return ctx.Err()
			}
		case PitchSample:
			select {
			case feed.pitches <- s:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return sc.Err()
}

func parseLogLine(line string) (any, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("want at least 3 fields, got %d", len(fields))
	}

	t, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return nil, fmt.Errorf("time %q: %w", fields[1], err)
	}
	v, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, fmt.Errorf("value %q: %w", fields[2], err)
	}

	switch strings.ToUpper(fields[0]) {
	case "H":
		s := HeadingSample{MagneticDeg: v, Time: t}
		if len(fields) > 3 {
			acc, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return nil, fmt.Errorf("accuracy %q: %w", fields[3], err)
			}
			s.AccuracyDeg = acc
		}
		return s, nil
	case "P":
		return PitchSample{PitchDeg: v, Time: t}, nil
	case "R":
		return PitchSample{PitchDeg: PitchFromAttitude(v), Time: t}, nil
	case "A":
		if len(fields) != 5 {
			return nil, fmt.Errorf("accelerometer record wants 3 components, got %d", len(fields)-2)
		}
		var g [2]float64
		for i, f := range fields[3:] {
			g[i], err = strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("value %q: %w", f, err)
			}
		}
		return PitchSample{PitchDeg: PitchFromAccel(v, g[0], g[1]), Time: t}, nil
	default:
		return nil, fmt.Errorf("unknown record %q", fields[0])
	}
}
