package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/paperward/paperward/internal/jvm"
	"github.com/paperward/paperward/internal/logger"
)

// stopGracePeriod is how long a canceled launch waits for the server to
// shut down after SIGTERM before the process is killed.
const stopGracePeriod = 30 * time.Second

// Runner launches the server process and blocks until it exits.
type Runner interface {
	Run(ctx context.Context, jarPath string) error
}

// JavaRunner runs a server jar under a java runtime with the fixed G1GC
// tuning flag set.
type JavaRunner struct {
	// javaPath is the java executable, resolved via PATH when bare.
	javaPath string
	// memory is the JVM heap size passed as -Xms/-Xmx.
	memory string
}

// NewJavaRunner returns a runner launching jars with the given java
// executable and heap size.
func NewJavaRunner(javaPath, memory string) *JavaRunner {
	return &JavaRunner{
		javaPath: javaPath,
		memory:   memory,
	}
}

// Run launches the server and blocks until the process exits, however it
// exits. The child inherits stdout and stderr but not stdin, which stays
// with the restart prompt. When ctx is canceled the server receives
// SIGTERM and is killed after stopGracePeriod.
func (r *JavaRunner) Run(ctx context.Context, jarPath string) error {
	cmd := r.command(ctx, jarPath)

	logger.DebugKV(ctx, "Launching server process", "command", cmd.String())

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	return nil
}

// command assembles the launch invocation for the given jar. The server
// runs inside the jar's directory so its world data lands next to it.
func (r *JavaRunner) command(ctx context.Context, jarPath string) *exec.Cmd {
	args := jvm.Flags(r.memory)
	args = append(args, "-jar", filepath.Base(jarPath), "nogui")

	cmd := exec.CommandContext(ctx, r.javaPath, args...)
	cmd.Dir = filepath.Dir(jarPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Ask the server to save and stop before it is killed.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = stopGracePeriod

	return cmd
}
