package process

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"

	"affab/src/affab_config"
	"affab/src/fake_runner"
	"affab/src/remote"
)

func TestPattern(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"sleep", "'[s]leep'"},
		{"ssh -f -N -p 22 u@h", "'[s]sh -f -N -p 22 u@h'"},
		{"/usr/bin/python app.py", "'[/]usr/bin/python app.py'"},
		{"/opt/app/server --port 80", "'[/]opt/app/server --port 80'"},
		{"./start.sh", "'[.]/start.sh'"},
		{"-server", "'[-]server'"},
		{"é-worker", "'[é]-worker'"},
		{"^anchored", "'^anchored'"},
		{"(a|b)", "'(a|b)'"},
		{"9lives", "'[9]lives'"},
		{"", "''"},
	} {
		if got := Pattern(tc.in); got != tc.want {
			t.Errorf("Pattern(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	for _, in := range []string{"sleep 100", "sleep 100 &", "  sleep 100  ", "& sleep 100&&"} {
		if got := Normalize(in); got != "sleep 100" {
			t.Errorf("Normalize(%q) = %q; want %q", in, got, "sleep 100")
		}
	}
}

func TestKillProcessesNoMatch(t *testing.T) {
	fr := fake_runner.New()
	sh := remote.NewShell(fr, "web1")

	if err := KillProcesses(context.Background(), sh, "celery worker"); err != nil {
		t.Fatalf("KillProcesses failed: %v", err)
	}

	want := []remote.Command{{Line: "pkill -f '[c]elery worker'", Sudo: true, Pty: true}}
	if diff := cmp.Diff(want, fr.Calls()); diff != "" {
		t.Errorf("Calls mismatch (-want +got):\n%s", diff)
	}
}

func TestKillProcessesTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	fr := fake_runner.New(fake_runner.PrefixHandler("pkill", fake_runner.Response{Err: boom}))
	sh := remote.NewShell(fr, "web1")

	if err := KillProcesses(context.Background(), sh, "x"); !errors.Is(err, boom) {
		t.Errorf("KillProcesses returned %v; want %v", err, boom)
	}
}

func TestBackgroundLine(t *testing.T) {
	got := BackgroundLine("./worker --queue default", map[string]string{
		"QUEUE":   "default",
		"APP_ENV": "prod stage",
	})
	want := "APP_ENV='prod stage' QUEUE=default nohup ./worker --queue default &> /dev/null &"
	if got != want {
		t.Errorf("BackgroundLine() = %q; want %q", got, want)
	}

	if got, want := BackgroundLine("sleep 10", nil), "nohup sleep 10 &> /dev/null &"; got != want {
		t.Errorf("BackgroundLine() = %q; want %q", got, want)
	}
}

func TestRunInBackground(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name    string
		environ map[string]string
		opts    BackgroundOptions
		want    []remote.Command
	}{
		{
			name: "default user",
			opts: BackgroundOptions{SudoAs: "app"},
			want: []remote.Command{
				{Line: "nohup sleep 100 &> /dev/null &", Sudo: true, User: "app"},
			},
		},
		{
			name:    "role override",
			environ: map[string]string{"WORKER_SUDO_AS": "celery"},
			opts:    BackgroundOptions{SudoAs: "app"},
			want: []remote.Command{
				{Line: "nohup sleep 100 &> /dev/null &", Sudo: true, User: "celery"},
			},
		},
		{
			name: "kill first",
			opts: BackgroundOptions{KillFirst: true, EnvVars: map[string]string{"A": "1"}},
			want: []remote.Command{
				{Line: "pkill -f '[s]leep 100'", Sudo: true, Pty: true},
				{Line: "A=1 nohup sleep 100 &> /dev/null &", Sudo: true},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env, err := affab_config.LoadEnvWith(ctx, envconfig.MapLookuper(tc.environ))
			if err != nil {
				t.Fatal(err)
			}

			fr := fake_runner.New(fake_runner.PrefixHandler("nohup", fake_runner.Response{}))
			fr.Handle(fake_runner.PrefixHandler("A=1 nohup", fake_runner.Response{}))
			sh := remote.NewShell(fr, "web1")

			if err := RunInBackground(ctx, sh, env, "sleep 100", "worker", tc.opts); err != nil {
				t.Fatalf("RunInBackground failed: %v", err)
			}

			if diff := cmp.Diff(tc.want, fr.Calls()); diff != "" {
				t.Errorf("Calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunInBackgroundFailure(t *testing.T) {
	fr := fake_runner.New(fake_runner.PrefixHandler("nohup", fake_runner.Response{ExitStatus: 1, Output: "sudo: unknown user"}))
	sh := remote.NewShell(fr, "web1")

	err := RunInBackground(context.Background(), sh, nil, "sleep 100", "", BackgroundOptions{SudoAs: "nobody-here"})
	var cmdErr *remote.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("RunInBackground returned %v; want CommandError", err)
	}
}

func TestAlreadyRunning(t *testing.T) {
	ctx := context.Background()
	running := fake_runner.ExactHandler("pgrep -f '[s]leep 100'", fake_runner.Response{Output: "4242\n"})
	script := fake_runner.ExactHandler("pgrep -f '[.]/start.sh --port 80'", fake_runner.Response{Output: "77\n"})
	// Answers only the unbracketed form, which also matches the sudo and
	// bash processes wrapping pgrep.
	wrapper := fake_runner.ExactHandler("pgrep -f /opt/app/server", fake_runner.Response{Output: "91\n"})

	for _, tc := range []struct {
		name     string
		handlers []fake_runner.Handler
		warnOnly bool
		command  string
		want     bool
	}{
		{name: "running", handlers: []fake_runner.Handler{running}, command: "sleep 100", want: true},
		{name: "decorated", handlers: []fake_runner.Handler{running}, command: " sleep 100 & ", want: true},
		{name: "not running", command: "sleep 100", want: false},
		{name: "warn only running", handlers: []fake_runner.Handler{running}, warnOnly: true, command: "sleep 100&", want: true},
		{name: "warn only not running", warnOnly: true, command: "sleep 100", want: false},
		{name: "relative path", handlers: []fake_runner.Handler{script}, command: "./start.sh --port 80 &", want: true},
		{name: "absolute path not running", handlers: []fake_runner.Handler{wrapper}, command: "/opt/app/server", want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sh := remote.NewShell(fake_runner.New(tc.handlers...), "web1")
			if tc.warnOnly {
				sh = sh.WarnOnly()
			}

			got, err := AlreadyRunning(ctx, sh, tc.command)
			if err != nil {
				t.Fatalf("AlreadyRunning failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("AlreadyRunning(%q) = %v; want %v", tc.command, got, tc.want)
			}
		})
	}
}

func TestWrappedRun(t *testing.T) {
	ctx := context.Background()
	pgrep := fake_runner.PrefixHandler("pgrep", fake_runner.Response{Output: "17"})
	failing := fake_runner.ExactHandler("make deploy", fake_runner.Response{ExitStatus: 2})

	for _, tc := range []struct {
		name      string
		handlers  []fake_runner.Handler
		opts      WrappedRunOptions
		wantRan   bool
		wantErr   bool
		wantLines []string
	}{
		{
			name:      "plain",
			handlers:  []fake_runner.Handler{fake_runner.ExactHandler("make deploy", fake_runner.Response{})},
			wantRan:   true,
			wantLines: []string{"make deploy"},
		},
		{
			name:      "skip when running",
			handlers:  []fake_runner.Handler{pgrep},
			opts:      WrappedRunOptions{SkipIfAlreadyRunning: true},
			wantLines: []string{"pgrep -f '[m]ake deploy'"},
		},
		{
			name:      "run when not running",
			handlers:  []fake_runner.Handler{fake_runner.ExactHandler("make deploy", fake_runner.Response{})},
			opts:      WrappedRunOptions{SkipIfAlreadyRunning: true},
			wantRan:   true,
			wantLines: []string{"pgrep -f '[m]ake deploy'", "make deploy"},
		},
		{
			name:      "failure propagates",
			handlers:  []fake_runner.Handler{failing},
			wantRan:   true,
			wantErr:   true,
			wantLines: []string{"make deploy"},
		},
		{
			name:      "failure silenced",
			handlers:  []fake_runner.Handler{failing},
			opts:      WrappedRunOptions{SilenceFailure: true, UseSudo: true},
			wantRan:   true,
			wantLines: []string{"make deploy"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fr := fake_runner.New(tc.handlers...)
			sh := remote.NewShell(fr, "web1")

			ran, err := WrappedRun(ctx, sh, "make deploy", tc.opts)
			if (err != nil) != tc.wantErr {
				t.Fatalf("WrappedRun error = %v; wantErr %v", err, tc.wantErr)
			}
			if ran != tc.wantRan {
				t.Errorf("WrappedRun ran = %v; want %v", ran, tc.wantRan)
			}
			if diff := cmp.Diff(tc.wantLines, fr.Lines()); diff != "" {
				t.Errorf("Lines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWrappedRunSudo(t *testing.T) {
	fr := fake_runner.New(fake_runner.ExactHandler("systemctl restart nginx", fake_runner.Response{}))
	sh := remote.NewShell(fr, "web1")

	if _, err := WrappedRun(context.Background(), sh, "systemctl restart nginx", WrappedRunOptions{UseSudo: true}); err != nil {
		t.Fatal(err)
	}

	want := []remote.Command{{Line: "systemctl restart nginx", Sudo: true, Pty: true}}
	if diff := cmp.Diff(want, fr.Calls()); diff != "" {
		t.Errorf("Calls mismatch (-want +got):\n%s", diff)
	}
}
