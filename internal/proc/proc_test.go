//go:build !windows

package proc

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOS_Run_Success(t *testing.T) {
	err := Run(context.Background(), OS{}, Command{Path: "sh", Args: []string{"-c", "exit 0"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestOS_Run_ExitCode(t *testing.T) {
	err := Run(context.Background(), OS{}, Command{Path: "sh", Args: []string{"-c", "exit 3"}})
	if err == nil {
		t.Fatal("Run should fail for non-zero exit")
	}
	code, ok := ExitCode(err)
	if !ok {
		t.Fatalf("ExitCode should recognise %v", err)
	}
	if code != 3 {
		t.Errorf("code = %d, want 3", code)
	}
}

func TestOS_Start_MissingBinary(t *testing.T) {
	_, err := OS{}.Start(context.Background(), Command{Path: "/nonexistent/python-xyz"})
	if err == nil {
		t.Fatal("Start should fail for a missing binary")
	}
	if _, ok := ExitCode(err); ok {
		t.Error("a start failure is not an exit status")
	}
}

func TestOutput_CombinesStreams(t *testing.T) {
	out, err := Output(context.Background(), OS{}, Command{
		Path: "sh",
		Args: []string{"-c", "echo out; echo err 1>&2"},
	})
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "out") || !strings.Contains(s, "err") {
		t.Errorf("Output = %q, want both streams", s)
	}
}

func TestOS_Env_Appended(t *testing.T) {
	out, err := Output(context.Background(), OS{}, Command{
		Path: "sh",
		Args: []string{"-c", "echo $EXPTRACK_PROC_TEST"},
		Env:  []string{"EXPTRACK_PROC_TEST=hello"},
	})
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("Output = %q, want hello", out)
	}
}

func TestOS_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := OS{}.Start(ctx, Command{Path: "sh", Args: []string{"-c", "sleep 30"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()
	if err := p.Wait(); err == nil {
		t.Fatal("Wait should report the killed process")
	}
}

func TestCommand_String(t *testing.T) {
	c := Command{Path: "python", Args: []string{"-m", "pip", "install", "-r", "my reqs.txt"}}
	want := `python -m pip install -r "my reqs.txt"`
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestExitCode_Wrapped(t *testing.T) {
	err := errors.Join(errors.New("context"), &ExitError{Command: "x", Code: 7})
	code, ok := ExitCode(err)
	if !ok || code != 7 {
		t.Errorf("ExitCode = (%d, %v), want (7, true)", code, ok)
	}
}
