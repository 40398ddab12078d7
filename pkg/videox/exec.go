// Package videox probes video files and decodes sampled frames through ffmpeg
package videox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// RunAppCombinedOutput runs an executable such as "ffmpeg" or "ffprobe".
// args must not include the executable name as the first parameter.
// Returns stdout. On failure, the error includes whatever the app wrote to stderr.
func RunAppCombinedOutput(ctx context.Context, appName string, args []string) ([]byte, error) {
	appPath, err := exec.LookPath(appName)
	if err != nil {
		return nil, fmt.Errorf("Unable to find '%v' in your path (%w)", appName, err)
	}
	cmd := exec.CommandContext(ctx, appPath, args...)
	stdout := bytes.Buffer{}
	stderr := limitedBuffer{max: 4096}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%v execution failed: %w (%v)", appName, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// limitedBuffer keeps the first 'max' bytes written to it, and discards the rest.
// ffmpeg can be very chatty on stderr when a file is damaged.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(bytes.TrimSpace(b.buf.Bytes()))
}
