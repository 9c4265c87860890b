package captcha

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecClassifier shells out to an external solver. The challenge image is
// written to the command's stdin; the first line of stdout is the code.
type ExecClassifier struct {
	command string
}

func NewExecClassifier(command string) *ExecClassifier {
	return &ExecClassifier{command: command}
}

func (c *ExecClassifier) Classify(ctx context.Context, image []byte) (string, error) {
	if c.command == "" {
		return "", fmt.Errorf("captcha: no solver command configured")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", c.command)
	cmd.Stdin = bytes.NewReader(image)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("captcha: solver command: %w", err)
	}

	code, _, _ := strings.Cut(strings.TrimSpace(out.String()), "\n")
	return strings.TrimSpace(code), nil
}
