package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/config"
)

const (
	baseYAML = `
server:
  log_level: info
webhook:
  verify_token: first
  app_secret: s3cret
`
	rotatedYAML = `
server:
  log_level: debug
webhook:
  verify_token: second
  app_secret: s3cret
`
	brokenYAML = `
server:
  log_level: bananas
`
)

type change struct{ old, new *config.Config }

// watchFixture is a config file on disk plus a watcher that reports every
// reload on a channel.
type watchFixture struct {
	path    string
	w       *config.Watcher
	changes chan change
	edits   int
}

func newWatchFixture(t *testing.T, initial string, opts ...config.WatcherOption) *watchFixture {
	t.Helper()
	f := &watchFixture{
		path:    filepath.Join(t.TempDir(), "voxdesk.yaml"),
		changes: make(chan change, 8),
	}
	f.write(t, initial)

	opts = append([]config.WatcherOption{
		config.WithInterval(20 * time.Millisecond),
		config.WithLookupEnv(func(string) (string, bool) { return "", false }),
	}, opts...)
	w, err := config.NewWatcher(f.path, func(old, new *config.Config) {
		f.changes <- change{old, new}
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	f.w = w
	return f
}

// write replaces the file and pushes its mtime forward so every write is
// visible to the poller regardless of filesystem timestamp granularity.
func (f *watchFixture) write(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(f.path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", f.path, err)
	}
	f.bump(t)
}

func (f *watchFixture) bump(t *testing.T) {
	t.Helper()
	f.edits++
	next := time.Now().Add(time.Duration(f.edits) * time.Second)
	if err := os.Chtimes(f.path, next, next); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func (f *watchFixture) expectChange(t *testing.T) change {
	t.Helper()
	select {
	case c := <-f.changes:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no reload observed")
		return change{}
	}
}

func (f *watchFixture) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.changes:
		t.Fatalf("unexpected reload to log level %q", c.new.Server.LogLevel)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_LoadsInitialFile(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t, baseYAML)

	cur := f.w.Current()
	if cur == nil {
		t.Fatal("Current() = nil")
	}
	if cur.Server.LogLevel != config.LogInfo || cur.Webhook.VerifyToken != "first" {
		t.Errorf("Current() = log %q token %q", cur.Server.LogLevel, cur.Webhook.VerifyToken)
	}
}

func TestWatcher_ReloadsRotatedSecrets(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t, baseYAML)

	f.write(t, rotatedYAML)
	c := f.expectChange(t)

	if c.old.Webhook.VerifyToken != "first" || c.new.Webhook.VerifyToken != "second" {
		t.Errorf("token %q -> %q, want first -> second", c.old.Webhook.VerifyToken, c.new.Webhook.VerifyToken)
	}
	if got := f.w.Current(); got != c.new {
		t.Error("Current() should return the config handed to the callback")
	}

	d := config.Diff(c.old, c.new)
	if !d.WebhookSecretsChanged || !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("Diff = %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestWatcher_KeepsEnvSecretsAcrossReloads(t *testing.T) {
	t.Parallel()
	env := func(k string) (string, bool) {
		if k == config.EnvAppSecret {
			return "from-env", true
		}
		return "", false
	}
	f := newWatchFixture(t, baseYAML, config.WithLookupEnv(env))

	if got := f.w.Current().Webhook.AppSecret; got != "from-env" {
		t.Fatalf("initial app secret = %q, want from-env", got)
	}

	f.write(t, rotatedYAML)
	c := f.expectChange(t)
	if c.new.Webhook.AppSecret != "from-env" {
		t.Errorf("reloaded app secret = %q, want from-env", c.new.Webhook.AppSecret)
	}
	if c.new.Webhook.VerifyToken != "second" {
		t.Errorf("reloaded verify token = %q, want second", c.new.Webhook.VerifyToken)
	}
}

func TestWatcher_IgnoredEdits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(t *testing.T, f *watchFixture)
	}{
		{
			name: "invalid config",
			edit: func(t *testing.T, f *watchFixture) { f.write(t, brokenYAML) },
		},
		{
			name: "touch only",
			edit: func(t *testing.T, f *watchFixture) { f.bump(t) },
		},
		{
			name: "same content rewritten",
			edit: func(t *testing.T, f *watchFixture) { f.write(t, baseYAML) },
		},
		{
			name: "file removed",
			edit: func(t *testing.T, f *watchFixture) {
				if err := os.Remove(f.path); err != nil {
					t.Fatalf("remove: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newWatchFixture(t, baseYAML)
			tt.edit(t, f)
			f.expectQuiet(t)
			if got := f.w.Current().Server.LogLevel; got != config.LogInfo {
				t.Errorf("Current() log level = %q, want previous %q", got, config.LogInfo)
			}
		})
	}
}

func TestWatcher_RecoversAfterInvalidEdit(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t, baseYAML)

	f.write(t, brokenYAML)
	f.expectQuiet(t)

	f.write(t, rotatedYAML)
	c := f.expectChange(t)
	if c.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log level = %q, want the last valid config", c.old.Server.LogLevel)
	}
}

func TestNewWatcher_Errors(t *testing.T) {
	t.Parallel()

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(broken, []byte(brokenYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	for name, path := range map[string]string{
		"missing file": filepath.Join(t.TempDir(), "absent.yaml"),
		"invalid file": broken,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			w, err := config.NewWatcher(path, nil)
			if err == nil {
				w.Stop()
				t.Fatal("NewWatcher should fail")
			}
		})
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()
	f := newWatchFixture(t, baseYAML)
	f.w.Stop()
	f.w.Stop()
}
