package remote_internal_ssh

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/ssh"

	"affab/src/remote"
	"affab/src/sshtest"
)

var userKey, hostKey, keyErr = sshtest.GenerateKeys(2048)

type testData struct {
	srv    *sshtest.Server
	runner *InternalSshRunner
}

func newTestData(t *testing.T, handler sshtest.Handler) *testData {
	t.Helper()
	if keyErr != nil {
		t.Fatal(keyErr)
	}

	srv, err := sshtest.Start(&userKey.PublicKey, hostKey, handler)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	cfg, err := sshtest.ClientConfig("deploy", userKey)
	if err != nil {
		t.Fatal(err)
	}
	cl, err := ssh.Dial("tcp", srv.Addr().String(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	r := &InternalSshRunner{SshClient: cl}
	t.Cleanup(func() { r.Close() })

	return &testData{srv: srv, runner: r}
}

func TestRun(t *testing.T) {
	var mu sync.Mutex
	var sawPty []bool
	td := newTestData(t, func(cmd string, pty bool) (sshtest.Process, bool) {
		mu.Lock()
		sawPty = append(sawPty, pty)
		mu.Unlock()
		switch cmd {
		case "/bin/bash -l -c uptime":
			return sshtest.Output("up 3 days\n", 0), true
		case "sudo -H /bin/bash -l -c 'pgrep -f foo'":
			return sshtest.Output("", 1), true
		}
		return nil, false
	})

	ctx := context.Background()

	out, err := td.runner.Run(ctx, &remote.Command{Line: "uptime", Pty: true})
	if err != nil {
		t.Fatal(err)
	}
	if out != "up 3 days\n" {
		t.Errorf("Run output = %q", out)
	}

	_, err = td.runner.Run(ctx, &remote.Command{Line: "pgrep -f foo", Sudo: true})
	var cmdErr *remote.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run returned %v; want CommandError", err)
	}
	if cmdErr.ExitStatus != 1 {
		t.Errorf("ExitStatus = %d; want 1", cmdErr.ExitStatus)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]bool{true, false}, sawPty); diff != "" {
		t.Errorf("pty requests mismatch (-want +got):\n%s", diff)
	}

	want := []string{"/bin/bash -l -c uptime", "sudo -H /bin/bash -l -c 'pgrep -f foo'"}
	if diff := cmp.Diff(want, td.srv.Commands()); diff != "" {
		t.Errorf("Commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRejected(t *testing.T) {
	td := newTestData(t, func(string, bool) (sshtest.Process, bool) { return nil, false })

	_, err := td.runner.Run(context.Background(), &remote.Command{Line: "uptime"})
	if err == nil {
		t.Fatal("Run succeeded unexpectedly")
	}
	var cmdErr *remote.CommandError
	if errors.As(err, &cmdErr) {
		t.Errorf("Run returned CommandError for a rejected request: %v", err)
	}
}

func TestRunContextCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	td := newTestData(t, func(string, bool) (sshtest.Process, bool) {
		return func(io.Reader, io.Writer, io.Writer) int {
			<-release
			return 0
		}, true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := td.runner.Run(ctx, &remote.Command{Line: "sleep 60"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run returned %v; want deadline exceeded", err)
	}
}

func TestShellOverInternalRunner(t *testing.T) {
	td := newTestData(t, func(cmd string, pty bool) (sshtest.Process, bool) {
		if strings.Contains(cmd, "test -e") {
			return sshtest.Output("", 1), true
		}
		return nil, false
	})

	sh := remote.NewShell(td.runner, "web1")
	ok, err := sh.Exists(context.Background(), "/usr/local/lib/.pyenv")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Exists = true; want false")
	}
}

func TestCloseUninitialized(t *testing.T) {
	r := &InternalSshRunner{}
	if err := r.Close(); err == nil {
		t.Error("Close succeeded without a client")
	}
	if _, err := r.Run(context.Background(), &remote.Command{Line: "true"}); err == nil {
		t.Error("Run succeeded without a client")
	}
}
