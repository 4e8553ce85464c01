package shaderpack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Pack is a parsed descriptor together with the bytecode of every stage that
// could be loaded.
type Pack struct {
	Dir        string
	Descriptor string
	Stages     []Stage
}

// DescriptorPath returns the full path of the descriptor file.
func (p *Pack) DescriptorPath() string {
	return filepath.Join(p.Dir, p.Descriptor)
}

// Stage returns the first stage of kind k.
func (p *Pack) Stage(k Kind) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Kind == k {
			return s, true
		}
	}
	return Stage{}, false
}

// Load parses dir/descriptor and reads the bytecode of every listed stage in
// parallel. Stages whose bytecode is missing, unreadable or not SPIR-V sized
// are logged and dropped. Failing to read the descriptor itself is an error.
func Load(ctx context.Context, dir, descriptor string, log *slog.Logger) (*Pack, error) {
	if log == nil {
		log = slog.Default()
	}
	if descriptor == "" {
		descriptor = DefaultDescriptor
	}
	if trimmed := strings.TrimRight(dir, `/\`); trimmed != dir && trimmed != "" {
		log.Warn("shader program path has a trailing slash", slog.String("dir", dir))
		dir = trimmed
	}

	p := &Pack{Dir: dir, Descriptor: descriptor}
	path := p.DescriptorPath()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening shader program %s", dir)
	}
	stages, err := Parse(f, path, log)
	f.Close()
	if err != nil {
		return nil, err
	}

	loaded := make([]bool, len(stages))
	g, gctx := errgroup.WithContext(ctx)
	for i := range stages {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st := &stages[i]
			at := slog.String("at", fmt.Sprintf("%s:%d", path, st.Line))
			code, err := os.ReadFile(filepath.Join(dir, st.File))
			if err != nil {
				log.Warn("cannot read shader bytecode, skipping stage", at,
					slog.String("file", st.File), slog.Any("error", err))
				return nil
			}
			if len(code) == 0 || len(code)%4 != 0 {
				log.Warn("shader bytecode is not a whole number of SPIR-V words, skipping stage", at,
					slog.String("file", st.File), slog.Int("size", len(code)))
				return nil
			}
			st.Code = code
			loaded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, st := range stages {
		if loaded[i] {
			p.Stages = append(p.Stages, st)
		}
	}
	if len(p.Stages) == 0 {
		log.Warn("shader program has no loadable stages", slog.String("descriptor", path))
	}
	return p, nil
}
