package engine

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command/sshrunner"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/peer"
	"github.com/pronovic/cedarbackup/pkg/util"
)

// buildPeer turns one configured peer into a peer.Peer, wiring a
// sshrunner.Runner for remote peers.
func (e *ActionEngine) buildPeer(cfg config.PeerConfig) (peer.Peer, error) {
	if cfg.IsRemote() {
		ssh := sshrunner.New(e.Runner, cfg.LocalUser, e.IsRoot)
		return peer.NewRemotePeer(cfg, ssh, e.FS, e.Log)
	}
	return peer.NewLocalPeer(cfg.Name, cfg.CollectDir, cfg.IgnoreFailureMode, e.FS, e.IsRoot)
}

func (e *ActionEngine) stagePeers() []config.PeerConfig {
	if e.Config.Stage != nil && len(e.Config.Stage.Peers) > 0 {
		return e.Config.Stage.Peers
	}
	return e.Config.Peers
}

type stageResult struct {
	name string
	err  error
}

// ExecuteStage implements spec.md §4.6's stage action. Peer iteration is
// run through an errgroup capped at concurrency 1 (see DESIGN.md): this
// keeps execution strictly sequential and in order, matching spec.md
// §5's single-threaded framing, while giving every peer's outcome a
// uniform collect-don't-abort error path instead of a hand-rolled
// counter.
func (e *ActionEngine) ExecuteStage(ctx context.Context, full bool) error {
	if e.Config.Stage == nil {
		return cerrors.Config("stage is not configured")
	}
	stage := e.Config.Stage
	today := e.Now()
	datedDir := datedPath(stage.TargetDir, today)

	if err := e.mkdirChown(datedDir); err != nil {
		return err
	}

	peers := e.stagePeers()
	if len(peers) == 0 {
		return cerrors.Config("no peers are configured for staging")
	}

	todayIsStart := false
	if e.Config.Store != nil && e.Config.Store.StartingDay != "" {
		if start, err := util.IsStartOfWeek(e.Config.Store.StartingDay, today); err == nil {
			todayIsStart = start
		}
	}

	results := make([]stageResult, len(peers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)
	for i, cfg := range peers {
		i, cfg := i, cfg
		g.Go(func() error {
			results[i] = stageResult{name: cfg.Name, err: e.stageOnePeer(gctx, cfg, datedDir, full, todayIsStart)}
			return nil
		})
	}
	_ = g.Wait()

	// Per-peer copy failures do not abort the run (spec.md §4.6 step 4);
	// stageOnePeer returns them and they are logged here. The dated
	// directory's stage indicator is written once regardless of individual
	// peer outcomes.
	for _, r := range results {
		if r.err != nil {
			e.logf("peer %q failed to stage: %v", r.name, r.err)
		}
	}

	return e.writeIndicator(datedDir, stageIndicator)
}

// stageOnePeer stages a single peer into datedDir/<peer>, returning a
// non-nil error only when the failure isn't excused by the peer's
// ignoreFailureMode.
func (e *ActionEngine) stageOnePeer(ctx context.Context, cfg config.PeerConfig, datedDir string, full, todayIsStart bool) error {
	p, err := e.buildPeer(cfg)
	if err != nil {
		return err
	}

	targetDir := filepath.Join(datedDir, p.Name())
	if err := e.mkdirChown(targetDir); err != nil {
		return err
	}

	ready, err := p.CheckCollectIndicator(ctx, "")
	if err != nil || !ready {
		if peer.ShouldIgnoreFailure(p.IgnoreFailureMode(), full, todayIsStart) {
			e.logf("peer %q has no collect indicator; ignoring per ignoreFailureMode", p.Name())
			return nil
		}
		return cerrors.IO("peer %q has no collect indicator", p.Name())
	}

	var mode *os.FileMode
	if _, err := p.StagePeer(ctx, targetDir, nil, mode); err != nil {
		if peer.ShouldIgnoreFailure(p.IgnoreFailureMode(), full, todayIsStart) {
			e.logf("peer %q failed to stage (%v); ignoring per ignoreFailureMode", p.Name(), err)
			return nil
		}
		return err
	}
	if err := p.WriteStageIndicator(ctx, "", nil, mode); err != nil {
		if peer.ShouldIgnoreFailure(p.IgnoreFailureMode(), full, todayIsStart) {
			e.logf("peer %q failed to write stage indicator (%v); ignoring per ignoreFailureMode", p.Name(), err)
			return nil
		}
		return err
	}
	return nil
}
