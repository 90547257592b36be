package runner

import (
	"context"
	"fmt"
	"strconv"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// NativeCwd delegates process listing to Base but answers cwd lookups via
// gopsutil, for hosts without lsof. The result is rendered in lsof field
// format so the cwd parser stays the same for both sources.
type NativeCwd struct {
	Base Runner
}

func (n NativeCwd) ListProcesses(ctx context.Context, format string) (string, error) {
	if n.Base == nil {
		return "", fmt.Errorf("native runner has no base runner")
	}
	return n.Base.ListProcesses(ctx, format)
}

func (n NativeCwd) OpenFiles(ctx context.Context, pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("invalid pid %d", pid)
	}
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", err
	}
	dir, err := p.CwdWithContext(ctx)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", nil
	}
	return "p" + strconv.Itoa(pid) + "\nfcwd\nn" + dir + "\n", nil
}
