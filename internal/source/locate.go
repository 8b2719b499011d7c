// Package source finds the compressed packet stream inside a replay file
// and fetches replay files from disk or S3.
package source

import (
	"bytes"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("source: zlib stream not found")

// Strategy selects how Locate recognizes the start of the stream.
type Strategy int

const (
	// StrategyHeader matches the common zlib headers 78 01, 78 9C and 78 DA.
	StrategyHeader Strategy = iota
	// StrategyChecksum accepts any CMF=0x78 whose FLG passes the header check.
	StrategyChecksum
)

func (s Strategy) String() string {
	switch s {
	case StrategyHeader:
		return "header"
	case StrategyChecksum:
		return "checksum"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "header":
		return StrategyHeader, nil
	case "checksum":
		return StrategyChecksum, nil
	default:
		return 0, fmt.Errorf("source: unknown locate strategy %q", name)
	}
}

// knownHeaders in the order they are tried.
var knownHeaders = [][]byte{
	{0x78, 0x01},
	{0x78, 0x9C},
	{0x78, 0xDA},
}

// Location is where the stream starts.
type Location struct {
	Offset int
	Header [2]byte
}

// Locate returns the start of the zlib stream in data. With StrategyHeader
// the headers are tried one after another, and the first header that occurs
// anywhere wins even if another one occurs earlier.
func Locate(data []byte, s Strategy) (Location, error) {
	switch s {
	case StrategyHeader:
		for _, h := range knownHeaders {
			if i := bytes.Index(data, h); i >= 0 {
				return Location{Offset: i, Header: [2]byte{h[0], h[1]}}, nil
			}
		}
	case StrategyChecksum:
		for i := 0; i+1 < len(data); i++ {
			if data[i] == 0x78 && (uint(data[i])<<8|uint(data[i+1]))%31 == 0 {
				return Location{Offset: i, Header: [2]byte{data[i], data[i+1]}}, nil
			}
		}
	default:
		return Location{}, fmt.Errorf("source: unknown locate strategy %d", int(s))
	}
	return Location{}, ErrNotFound
}
