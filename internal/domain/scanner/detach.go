package scanner

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog/log"
)

// InternalRescanFlag is the hidden argument that turns an invocation of
// the selector binary into a background scan worker.
const InternalRescanFlag = "--internal-rescan"

// SpawnDetached re-executes this binary as a fully detached rescan child:
// its own session, no inherited stdio, no parent wait. The short-lived
// pick-next process that triggered it returns immediately; the child
// synchronizes through the scan lock alone.
func SpawnDetached() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devnull.Close()

	cmd := exec.Command(exe, InternalRescanFlag)
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return err
	}

	log.Debug().Int("pid", pid).Msg("Detached rescan spawned")
	return nil
}
