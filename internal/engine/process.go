package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ProcessConfig configures a subprocess-backed engine.
type ProcessConfig struct {
	Path   string
	Args   []string // Passed before the operation kind
	Env    []string // Appended to the current environment
	Nice   int      // Nice value for engine processes (0 = disabled)
	Logger zerolog.Logger
}

// Process runs the engine executable once per evaluation. The kind's wire
// name is the last argument, the encoded request is written to stdin followed
// by a newline, and stdout minus one trailing newline is the result.
type Process struct {
	cfg ProcessConfig
	log zerolog.Logger
}

// NewProcess resolves the engine executable.
func NewProcess(cfg ProcessConfig) (*Process, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path required")
	}
	path, err := exec.LookPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("find engine: %w", err)
	}
	cfg.Path = path

	return &Process{
		cfg: cfg,
		log: cfg.Logger,
	}, nil
}

func (p *Process) command(kind Kind) *exec.Cmd {
	args := make([]string, 0, len(p.cfg.Args)+1)
	args = append(args, p.cfg.Args...)
	args = append(args, kind.String())

	if p.cfg.Nice != 0 {
		if nice, err := exec.LookPath("nice"); err == nil {
			args = append([]string{"-n", strconv.Itoa(p.cfg.Nice), p.cfg.Path}, args...)
			return exec.Command(nice, args...)
		}
	}
	return exec.Command(p.cfg.Path, args...)
}

// Evaluate runs one engine invocation to completion. There is no timeout or
// cancellation.
func (p *Process) Evaluate(kind Kind, input string) (string, error) {
	cmd := p.command(kind)
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), p.cfg.Env...)
	}
	cmd.Stdin = strings.NewReader(input + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.log.Warn().
				Str("kind", kind.String()).
				Int("exit_code", exitErr.ExitCode()).
				Dur("dur", dur).
				Msg("engine exited with error")
		}
		return "", &Failure{
			Kind:   kind,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}

	p.log.Debug().
		Str("kind", kind.String()).
		Int("output_bytes", stdout.Len()).
		Dur("dur", dur).
		Msg("engine call complete")

	return strings.TrimSuffix(stdout.String(), "\n"), nil
}
