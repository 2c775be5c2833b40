package nnlojet

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunsetOptions configures WriteRunset.
type RunsetOptions struct {
	// Workers bounds concurrent runcard writes; zero means one.
	Workers int
	Warmup  RunOptions
	// Production defaults to DefaultRunOptions(Production) when zero.
	Production RunOptions
	Logger     *zap.Logger
}

// WriteRunset writes a warmup and a production runcard for every channel of
// every level below dest, then the combine.ini. It returns the runcard
// paths ordered by level, mode and channel.
func (p *Pinecard) WriteRunset(ctx context.Context, dest string, levels []Level, opts RunsetOptions) ([]string, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Warmup.Mode == "" {
		opts.Warmup = DefaultRunOptions(Warmup)
	}
	if opts.Production.Mode == "" {
		opts.Production = DefaultRunOptions(Production)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	type job struct {
		channel string
		run     RunOptions
	}
	var jobs []job
	for _, level := range levels {
		log.Info("preparing runcards", zap.String("level", level.Name), zap.Int("channels", len(level.Channels)))
		for _, run := range []RunOptions{opts.Warmup, opts.Production} {
			for _, ch := range level.Channels {
				jobs = append(jobs, job{channel: ch, run: run})
			}
		}
	}

	paths := make([]string, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := p.WriteRuncard(dest, j.channel, j.run)
			if err != nil {
				return fmt.Errorf("runcard %s/%s: %w", j.channel, j.run.Mode, err)
			}
			log.Debug("wrote runcard", zap.String("path", path))
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if _, err := p.WriteCombineIni(dest, levels); err != nil {
		return nil, err
	}
	return paths, nil
}
