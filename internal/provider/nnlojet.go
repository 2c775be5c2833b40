package provider

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nnpdf/pinefarm/internal/nnlojet"
	"github.com/nnpdf/pinefarm/internal/results"
)

// ErrUnsupported is returned by lifecycle steps a provider cannot perform.
var ErrUnsupported = errors.New("not supported by this provider")

// nnlojetProvider only prepares runcards; the runs themselves happen
// outside pinefarm.
type nnlojetProvider struct {
	*base
	runcards []string
}

// pinecardPath is runcards/<dataset>/<dataset without prefix>.yaml.
func (n *nnlojetProvider) pinecardPath() string {
	name := strings.TrimPrefix(n.env.Dataset, NNLOJETPrefix)
	return filepath.Join(n.source(), name+".yaml")
}

// Prepare writes warmup and production runcards for every active channel
// and the combine.ini, then asks the runner to stop.
func (n *nnlojetProvider) Prepare(ctx context.Context) (bool, error) {
	card, err := nnlojet.LoadPinecard(n.env.Schema, n.pinecardPath())
	if err != nil {
		return true, err
	}
	levels, err := card.ApplyTheory(n.env.Theory)
	if err != nil {
		return true, err
	}
	n.runcards, err = card.WriteRunset(ctx, n.dest, levels, nnlojet.RunsetOptions{
		Workers: n.env.Config.Workers,
		Logger:  n.log,
	})
	if err != nil {
		return true, err
	}
	n.log.Info("runcards written", zap.Int("count", len(n.runcards)), zap.String("dest", n.dest))
	return true, nil
}

func (n *nnlojetProvider) Execute(context.Context) error {
	return fmt.Errorf("nnlojet execute: %w", ErrUnsupported)
}

func (n *nnlojetProvider) ExtractGrid(context.Context) error {
	return fmt.Errorf("nnlojet grid extraction: %w", ErrUnsupported)
}

func (n *nnlojetProvider) CollectResults(context.Context) (*results.Table, error) {
	return nil, fmt.Errorf("nnlojet results: %w", ErrUnsupported)
}

func (n *nnlojetProvider) CollectVersions(context.Context) (map[string]string, error) {
	return map[string]string{"nnlojet_version": "secret"}, nil
}
