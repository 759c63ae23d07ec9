package bots

import (
	"archive/zip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokerarena/server/match"
	"pokerarena/server/sandbox"
)

const bucket = "compiled-bots"

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func publish(t *testing.T, root, id string, files map[string]string) {
	writeZip(t, filepath.Join(root, bucket, id), files)
}

func echoBot(lang string) map[string]string {
	return map[string]string{
		"bot/bot.json": `{"run": "sh run.sh", "language": "` + lang + `"}`,
		"bot/run.sh":   "echo starting >&2\nwhile read l; do echo \"ack $l\"; done\n",
	}
}

func newAcquirer(root string) *Acquirer {
	return &Acquirer{Fetcher: DirFetcher{Root: root}, Bucket: bucket}
}

func TestAcquireLaunchesBot(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "bot-1", echoBot("python"))
	dir := filepath.Join(t.TempDir(), "bot_a")

	p, err := newAcquirer(root).Acquire(context.Background(), "bot-1", match.Defender, dir)
	require.NoError(t, err)
	defer p.Kill()

	require.NoError(t, p.WriteLine("P 0"))
	line, err := p.ReadLine(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ack P 0", line)

	assert.FileExists(t, filepath.Join(dir, ArchiveName))
	p.Kill()
	logs, err := os.ReadFile(filepath.Join(dir, LogName))
	require.NoError(t, err)
	assert.Contains(t, string(logs), "starting")
}

func TestAcquireFailuresAreInternal(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "cobol", echoBot("cobol"))
	publish(t, root, "no-manifest", map[string]string{"bot/run.sh": "true"})
	publish(t, root, "empty-run", map[string]string{"bot/bot.json": `{"run": "", "language": "go"}`})
	require.NoError(t, os.WriteFile(filepath.Join(root, bucket, "not-a-zip"), []byte("hello"), 0o644))

	for _, id := range []string{"missing", "not-a-zip", "no-manifest", "empty-run", "cobol"} {
		t.Run(id, func(t *testing.T) {
			_, err := newAcquirer(root).Acquire(context.Background(), id, match.Challenger, filepath.Join(t.TempDir(), "bot_b"))
			require.Error(t, err)
			var me *match.Error
			require.True(t, errors.As(err, &me))
			assert.Equal(t, match.Internal, me.Kind)
			if id == "cobol" {
				assert.ErrorIs(t, err, sandbox.ErrUnsupportedLanguage)
			}
		})
	}
}

func TestLaunchFailureIsRuntimeFailure(t *testing.T) {
	botDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(botDir, "bot.json"), []byte(`{"run":"true","language":"go"}`), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newAcquirer("").Launch(ctx, match.Challenger, botDir, filepath.Join(t.TempDir(), LogName))
	var me *match.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, match.RuntimeFailure, me.Kind)
	assert.Equal(t, match.Challenger, me.Seat)
}

// slowFailFetcher fails for one key, but only after the other seat's bot has
// written its pid.
type slowFailFetcher struct {
	DirFetcher
	failKey string
	pidFile string
}

func (f slowFailFetcher) Download(ctx context.Context, key, dest, bucket string) error {
	if key != f.failKey {
		return f.DirFetcher.Download(ctx, key, dest, bucket)
	}
	for i := 0; i < 200; i++ {
		if raw, err := os.ReadFile(f.pidFile); err == nil && strings.TrimSpace(string(raw)) != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("bucket unavailable")
}

func TestAcquirePairKillsSurvivor(t *testing.T) {
	root := t.TempDir()
	scratch := t.TempDir()
	pidFile := filepath.Join(scratch, "pid")
	publish(t, root, "good", map[string]string{
		"bot/bot.json": `{"run": "echo $$ > ` + pidFile + ` && exec sleep 30", "language": "rust"}`,
	})

	a := &Acquirer{Fetcher: slowFailFetcher{DirFetcher: DirFetcher{Root: root}, failKey: "bad", pidFile: pidFile}, Bucket: bucket}
	_, err := a.AcquirePair(context.Background(), [2]string{"good", "bad"},
		[2]string{filepath.Join(scratch, "bot_a"), filepath.Join(scratch, "bot_b")})
	require.Error(t, err)
	assert.Equal(t, match.Internal, match.AsError(err).Kind)

	raw, readErr := os.ReadFile(pidFile)
	require.NoError(t, readErr, "good bot never started")
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, convErr)
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH)
}

func TestAcquirePairSuccess(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "a", echoBot("python"))
	publish(t, root, "b", echoBot("go"))
	scratch := t.TempDir()

	procs, err := newAcquirer(root).AcquirePair(context.Background(), [2]string{"a", "b"},
		[2]string{filepath.Join(scratch, "bot_a"), filepath.Join(scratch, "bot_b")})
	require.NoError(t, err)
	for _, p := range procs {
		require.NotNil(t, p)
		p.Kill()
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+bucket+"/bot-9" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("zipbytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/", time.Second)
	dest := filepath.Join(t.TempDir(), ArchiveName)
	require.NoError(t, f.Download(context.Background(), "bot-9", dest, bucket))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "zipbytes", string(got))

	err = f.Download(context.Background(), "nope", dest, bucket)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=404")
}

func TestUnzipRejectsEscapingEntries(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "evil.zip")
	writeZip(t, archive, map[string]string{"../evil.txt": "x"})
	err := Unzip(archive, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestReadManifestYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bot.yaml"), []byte("run: ./bot\nlanguage: go\n"), 0o644))
	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, Manifest{Run: "./bot", Language: "go"}, m)
}
