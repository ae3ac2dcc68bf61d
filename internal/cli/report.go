// Package cli provides command-line interface utilities.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/patch"
	"github.com/ZacharyZcR/VRShim/internal/serial"
	"github.com/ZacharyZcR/VRShim/internal/shim"
)

// Reporter formats and prints shim status, remap tables and import results.
type Reporter struct {
	out     io.Writer
	verbose bool
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// SetVerbose enables verbose mode (show every table entry).
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// PrintHeader prints the report banner.
func (r *Reporter) PrintHeader() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintln(r.out, "\n╔════════════════════════════════════════╗")
	_, _ = cyan.Fprintln(r.out, "║          VRShim 状态报告               ║")
	_, _ = cyan.Fprintln(r.out, "╚════════════════════════════════════════╝")
}

// PrintField prints one aligned name/value line.
func (r *Reporter) PrintField(name, value string) {
	r.field(name, value)
}

// Println ends the report with a blank line.
func (r *Reporter) Println() {
	fmt.Fprintln(r.out)
}

// PrintStatus outputs modules, build information and the state of every site.
func (r *Reporter) PrintStatus(st shim.Status) {
	r.section("【模块信息】")
	r.printModule("扩展模块", st.Extender)
	r.printModule("游戏模块", st.Game)

	r.field("架构", fmt.Sprintf("0x%04X", st.Build.Machine))
	r.field("链接时间戳", fmt.Sprintf("0x%08X", st.Build.TimeDateStamp))
	r.field("镜像大小", fmt.Sprintf("0x%X", st.Build.SizeOfImage))
	r.label("兼容性")
	if st.Compat != nil {
		r.bad("✗ %v", st.Compat)
	} else {
		r.good("✓ 兼容")
	}
	fmt.Fprintln(r.out)

	r.section("【补丁位置】")
	r.label("GameDataReadyOriginal")
	if st.LiteralErr != nil {
		r.bad("✗ %v", st.LiteralErr)
	} else {
		r.state(st.Literal.State)
		fmt.Fprintf(r.out, " (0x%016X)", st.Literal.Value)
	}
	fmt.Fprintln(r.out)

	r.label("SwitchDefault")
	switch {
	case st.HookErr != nil:
		r.bad("✗ %v", st.HookErr)
	case st.Hook.Installed != 0:
		r.good("已安装")
		fmt.Fprintf(r.out, " (调用 0x%X)", st.Hook.Installed)
	default:
		r.state(st.Hook.State)
		fmt.Fprintf(r.out, " (覆盖 %d 字节)", st.Hook.Covered)
	}
	fmt.Fprintln(r.out)

	if r.verbose && len(st.Hook.Original) > 0 {
		for _, inst := range st.Hook.Original {
			fmt.Fprintf(r.out, "       - %s\n", inst.String())
		}
		fmt.Fprintf(r.out, "       字节: % X\n", st.Hook.Live)
	}
}

// PrintResult outputs the outcome of every site written by shim.Init.
func (r *Reporter) PrintResult(res shim.Result) {
	r.section("【修补结果】")
	if res.Err != nil {
		r.bad("  ✗ %v\n", res.Err)
		return
	}
	for _, s := range res.Sites {
		r.label(s.Name)
		switch {
		case s.Err != nil:
			r.bad("✗ %s: %v", s.Outcome, s.Err)
		case s.Outcome == patch.Skipped:
			r.warn("%s", s.Outcome)
		default:
			r.good("✓ %s", s.Outcome)
		}
		fmt.Fprintln(r.out)
	}
}

// PrintTables outputs both remap tables.
func (r *Reporter) PrintTables(snap serial.Snapshot, err error) {
	if err != nil {
		r.section("【映射表】")
		r.bad("  ✗ %v\n", err)
		return
	}

	r.section(fmt.Sprintf("【常规插件映射】(共 %d 项)", len(snap.Regular)))
	regular := make([]uint16, len(snap.Regular))
	for i, v := range snap.Regular {
		regular[i] = uint16(v)
		if v == serial.NotLoaded {
			regular[i] = serial.LightNotLoaded
		}
	}
	r.printMap(regular)

	r.section(fmt.Sprintf("【轻量插件映射】(共 %d 项)", len(snap.Light)))
	r.printMap(snap.Light)
}

// PrintSummary outputs the entries of one plugin list import.
func (r *Reporter) PrintSummary(sum serial.Summary, err error) {
	r.section(fmt.Sprintf("【插件列表】(声明 %d 项, 解析 %d 项)", sum.Declared, len(sum.Entries)))

	fmt.Fprintln(r.out, strings.Repeat("-", 80))
	fmt.Fprintf(r.out, "  %-6s %-8s %-8s %-8s %s\n", "序号", "槽位", "新索引", "类型", "名称")
	fmt.Fprintln(r.out, strings.Repeat("-", 80))

	gray := color.New(color.FgHiBlack)
	for i, e := range sum.Entries {
		kind := "常规"
		if e.Light {
			kind = "轻量"
		}
		fmt.Fprintf(r.out, "  %-6d 0x%-6X ", i, e.Slot())
		if e.Loaded {
			_, _ = color.New(color.FgGreen).Fprintf(r.out, "0x%-6X ", e.Live)
		} else {
			_, _ = gray.Fprintf(r.out, "%-8s ", "未加载")
		}
		fmt.Fprintf(r.out, "%-8s %s", kind, e.Name)
		if !e.Recorded {
			_, _ = gray.Fprint(r.out, " (保留槽位, 未写入)")
		}
		fmt.Fprintln(r.out)
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 80))

	if err != nil {
		r.bad("  ✗ 导入中止: %v\n", err)
	} else if n := sum.Unresolved(); n > 0 {
		r.warn("  %d 个插件不在当前加载顺序中\n", n)
	}
}

func (r *Reporter) printMap(entries []uint16) {
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "  空")
		return
	}

	maxDisplay := 32
	if r.verbose {
		maxDisplay = len(entries)
	}
	displayCount := min(len(entries), maxDisplay)

	gray := color.New(color.FgHiBlack)
	for i := 0; i < displayCount; i++ {
		fmt.Fprintf(r.out, "  0x%03X -> ", i)
		if entries[i] == serial.LightNotLoaded {
			_, _ = gray.Fprintln(r.out, "未加载")
			continue
		}
		fmt.Fprintf(r.out, "0x%X\n", entries[i])
	}

	if len(entries) > maxDisplay {
		_, _ = gray.Fprintf(r.out, "  ... (还有 %d 项)\n", len(entries)-maxDisplay)
	}
}

func (r *Reporter) printModule(label string, m memory.Module) {
	r.label(label)
	if !m.Found() {
		r.bad("未找到")
		fmt.Fprintln(r.out)
		return
	}
	fmt.Fprintf(r.out, "%s @ 0x%X\n", m.Name, m.Base)
}

func (r *Reporter) state(s patch.SiteState) {
	switch s {
	case patch.StatePatched:
		r.good("%s", s)
	case patch.StateOriginal:
		r.warn("%s", s)
	default:
		r.bad("%s", s)
	}
}

func (r *Reporter) section(title string) {
	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(r.out, "\n%s\n", title)
}

func (r *Reporter) field(name, value string) {
	fmt.Fprintf(r.out, "  %-22s: %s\n", name, value)
}

func (r *Reporter) label(name string) {
	fmt.Fprintf(r.out, "  %-22s: ", name)
}

func (r *Reporter) good(format string, a ...any) {
	_, _ = color.New(color.FgGreen).Fprintf(r.out, format, a...)
}

func (r *Reporter) warn(format string, a ...any) {
	_, _ = color.New(color.FgYellow).Fprintf(r.out, format, a...)
}

func (r *Reporter) bad(format string, a ...any) {
	_, _ = color.New(color.FgRed, color.Bold).Fprintf(r.out, format, a...)
}
