package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

var multiSpaceRegex = regexp.MustCompile(" +")

// RunPreload executes a preload command with the given arguments string (split by spaces).
// Use RunPreloadArgs when arguments contain spaces that should be preserved.
func RunPreload(ctx context.Context, env []string, binary, cmdArgs string, nolog bool) (stdout, stderr []byte, err error) {
	cmdArgs = strings.TrimSpace(cmdArgs)
	cmdArgs = multiSpaceRegex.ReplaceAllString(cmdArgs, " ")

	var args []string
	if cmdArgs != "" {
		args = strings.Split(cmdArgs, " ")
	}

	return RunPreloadArgs(ctx, env, binary, args, nolog)
}

// RunPreloadArgs executes a preload command with pre-split arguments.
func RunPreloadArgs(ctx context.Context, env []string, binary string, args []string, nolog bool) (stdout, stderr []byte, err error) {
	var outData, errData bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &outData
	cmd.Stderr = &errData

	// Custom env goes after the host env, the last duplicated key wins.
	newEnv := append([]string{}, os.Environ()...)
	newEnv = append(newEnv, env...)
	if nolog {
		newEnv = append(newEnv, "PRELOAD_NO_LOG=true")
	}
	cmd.Env = newEnv

	err = cmd.Run()

	return outData.Bytes(), errData.Bytes(), err
}

// RunPreloadJSON executes a preload command with JSON output and no logs, and decodes
// stdout into out. Stdout is decoded even when the command fails, failing commands
// still print partial reports.
func RunPreloadJSON(ctx context.Context, env []string, binary, cmdArgs string, out any) (stderr []byte, err error) {
	stdout, stderr, runErr := RunPreload(ctx, env, binary, cmdArgs+" --format json", true)
	if len(stdout) > 0 {
		if err := json.Unmarshal(stdout, out); err != nil {
			return stderr, fmt.Errorf("could not decode output %q: %w", stdout, err)
		}
	}
	return stderr, runErr
}
