// Package shaderpack reads shader program descriptors and the SPIR-V bytecode
// they reference.
//
// A descriptor lists one stage per line in the form
//
//	{stage};{entrypoint}: {file}
//
// where stage is one of vertex-shader, fragment-shader or geometry-shader and
// file is relative to the descriptor's directory. Whitespace is ignored
// everywhere, lines starting with # are comments, and malformed lines are
// logged and skipped.
package shaderpack

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// DefaultDescriptor is the descriptor file name looked up inside a shader
// program directory.
const DefaultDescriptor = "shaders.meta"

const sampleLine = "fragment-shader;main: frag.spv"

// Kind is a programmable pipeline stage.
type Kind int

const (
	Vertex Kind = iota
	Fragment
	Geometry
)

var kindNames = map[string]Kind{
	"vertex-shader":   Vertex,
	"fragment-shader": Fragment,
	"geometry-shader": Geometry,
}

func (k Kind) String() string {
	switch k {
	case Vertex:
		return "vertex-shader"
	case Fragment:
		return "fragment-shader"
	case Geometry:
		return "geometry-shader"
	}
	return "unknown-shader"
}

// ParseKind maps a descriptor stage name to a Kind.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindNames[name]
	return k, ok
}

// Stage is one parsed descriptor line. Code is filled in by Load.
type Stage struct {
	Kind  Kind
	Entry string
	File  string
	Line  int
	Code  []byte
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Parse reads a descriptor from r. name is used in log messages only. Lines
// that cannot be parsed are logged at warn level and skipped; the returned
// error is only set when reading r fails.
func Parse(r io.Reader, name string, log *slog.Logger) ([]Stage, error) {
	if log == nil {
		log = slog.Default()
	}

	var stages []Stage
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := stripSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		at := slog.String("at", fmt.Sprintf("%s:%d", name, lineNum))

		head, file, ok := strings.Cut(line, ":")
		if !ok {
			log.Warn("shader descriptor line has no colon, skipping", at, slog.String("sample", sampleLine))
			continue
		}
		stageName, entry, ok := strings.Cut(head, ";")
		if !ok {
			log.Warn("shader descriptor line has no semicolon, skipping", at, slog.String("sample", sampleLine))
			continue
		}
		kind, ok := ParseKind(stageName)
		if !ok {
			log.Warn("unrecognized shader stage, skipping", at, slog.String("stage", stageName))
			continue
		}
		if entry == "" || file == "" {
			log.Warn("shader descriptor line has an empty entry point or file, skipping", at,
				slog.String("sample", sampleLine))
			continue
		}

		log.Debug("shader stage", at,
			slog.String("stage", kind.String()),
			slog.String("entry", entry),
			slog.String("file", file))
		stages = append(stages, Stage{Kind: kind, Entry: entry, File: file, Line: lineNum})
	}
	if err := sc.Err(); err != nil {
		return stages, errors.Wrapf(err, "reading shader descriptor %s", name)
	}
	return stages, nil
}
