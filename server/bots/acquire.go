// Package bots turns a bot id into a running process: download the
// artifact, unpack it, read its manifest and launch it through the
// language adapter.
package bots

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pokerarena/server/match"
	"pokerarena/server/sandbox"
)

const (
	ArchiveName = "bot.zip"
	BotDirName  = "bot"
	LogName     = "logs"
)

type Acquirer struct {
	Fetcher Fetcher
	Bucket  string
	Limits  sandbox.Limits
	Log     *zap.Logger
}

// Acquire prepares botID in dir and starts it for seat. Environment
// failures come back as Internal match errors; a failed launch is a
// RuntimeFailure charged to seat.
func (a *Acquirer) Acquire(ctx context.Context, botID string, seat match.Seat, dir string) (*sandbox.Process, error) {
	log := a.logger().With(zap.String("bot_id", botID), zap.Stringer("seat", seat))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, match.InternalError(fmt.Errorf("create bot dir: %w", err))
	}
	archive := filepath.Join(dir, ArchiveName)
	if err := a.Fetcher.Download(ctx, botID, archive, a.Bucket); err != nil {
		return nil, match.InternalError(err)
	}
	log.Debug("bot downloaded")
	if err := Unzip(archive, dir); err != nil {
		return nil, match.InternalError(err)
	}
	log.Debug("bot unzipped", zap.String("dir", dir))

	return a.Launch(ctx, seat, filepath.Join(dir, BotDirName), filepath.Join(dir, LogName))
}

// Launch starts an already unpacked bot directory, sending its stderr to
// logPath.
func (a *Acquirer) Launch(ctx context.Context, seat match.Seat, botDir, logPath string) (*sandbox.Process, error) {
	m, err := ReadManifest(botDir)
	if err != nil {
		return nil, match.InternalError(err)
	}
	adapter, err := sandbox.Lookup(m.Language)
	if err != nil {
		return nil, match.InternalError(err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, match.InternalError(fmt.Errorf("create log file: %w", err))
	}
	defer logFile.Close()

	p, err := adapter.Run(ctx, sandbox.RunConfig{Dir: botDir, Command: m.Run, Limits: a.Limits}, func(cmd *exec.Cmd) {
		cmd.Stderr = logFile
	})
	if err != nil {
		a.logger().Error("error running bot", zap.Stringer("seat", seat), zap.Error(err))
		return nil, match.SeatError(match.RuntimeFailure, seat, err)
	}
	a.logger().Debug("bot started", zap.Stringer("seat", seat), zap.Int("pid", p.Pid()), zap.String("language", m.Language))
	return p, nil
}

// AcquirePair acquires both seats concurrently into dirs. If either side
// fails, a process already started for the other side is killed.
func (a *Acquirer) AcquirePair(ctx context.Context, ids [2]string, dirs [2]string) ([2]*sandbox.Process, error) {
	var procs [2]*sandbox.Process
	g, gctx := errgroup.WithContext(ctx)
	for i := range ids {
		seat := match.Seat(i)
		g.Go(func() error {
			p, err := a.Acquire(gctx, ids[seat], seat, dirs[seat])
			procs[seat] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, p := range procs {
			if p != nil {
				p.Kill()
			}
		}
		return [2]*sandbox.Process{}, err
	}
	return procs, nil
}

func (a *Acquirer) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}
