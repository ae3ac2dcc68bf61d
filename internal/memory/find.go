package memory

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// FindProcess returns the PID of the first running process whose executable
// name matches name, ignoring case.
func FindProcess(name string) (uint32, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, fmt.Errorf("枚举进程失败: %w", err)
	}

	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if strings.EqualFold(pname, name) {
			return uint32(p.Pid), nil
		}
	}

	return 0, fmt.Errorf("未找到进程: %s", name)
}
