// Package main provides the VRShim inspection CLI.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/VRShim/internal/cli"
	"github.com/ZacharyZcR/VRShim/internal/config"
	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/offsets"
	"github.com/ZacharyZcR/VRShim/internal/serial"
	"github.com/ZacharyZcR/VRShim/internal/shim"
)

// decodeBase is where the offline remap tables are mapped.
const decodeBase = 0x180000000

var (
	// Target flags.
	pid         = flag.Uint("pid", 0, "目标进程PID（默认按进程名查找）")
	processName = flag.String("process", offsets.GameModule, "目标进程名")
	imagePath   = flag.String("image", "", "检查磁盘上的扩展DLL而非运行中的进程")
	configPath  = flag.String("config", config.FileName, "配置文件路径")

	// Action flags.
	fix        = flag.Bool("fix", false, "修复 GameDataReady 地址（写入目标进程）")
	showTables = flag.Bool("tables", false, "显示插件映射表")
	decodeFile = flag.String("decode", "", "离线解析 PLGN 记录数据文件")
	modsFile   = flag.String("mods", "", "加载顺序文件（plugins.txt 格式，配合 -decode）")
	verbose    = flag.Bool("v", false, "详细模式：显示全部映射项和日志")
	initConfig = flag.Bool("init-config", false, "在 -config 指定的路径写入示例配置")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	var err error
	switch {
	case *initConfig:
		err = writeSample(*configPath)
	case *decodeFile != "":
		err = decodeRecord()
	case *imagePath != "":
		err = inspectImage()
	default:
		err = inspectProcess()
	}

	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newReporter(out io.Writer) *cli.Reporter {
	reporter := cli.NewReporter(out)
	reporter.SetVerbose(*verbose)
	return reporter
}

func inspectProcess() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	target := uint32(*pid)
	if target == 0 {
		if target, err = memory.FindProcess(*processName); err != nil {
			return err
		}
	}

	proc, err := memory.OpenProcess(target)
	if err != nil {
		return err
	}
	defer func() { _ = proc.Close() }()

	logger := newLogger()
	reporter := newReporter(os.Stdout)
	reporter.PrintHeader()
	reporter.PrintField("进程", fmt.Sprint(target))

	if *fix {
		// The dispatch hook needs a callback inside the target process.
		cfg.InstallPluginListHook = false
		reporter.PrintResult(shim.Init(proc, cfg, 0, logger))
	}

	return printStatus(proc, cfg, logger, reporter)
}

func inspectImage() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	img, err := memory.OpenImage(*imagePath)
	if err != nil {
		return err
	}
	defer func() { _ = img.Close() }()

	cfg.TargetModule = img.Module().Name

	reporter := newReporter(os.Stdout)
	reporter.PrintHeader()
	reporter.PrintField("文件路径", *imagePath)
	return printStatus(img, cfg, newLogger(), reporter)
}

func printStatus(env shim.Env, cfg config.Config, logger *slog.Logger, reporter *cli.Reporter) error {
	st, _, err := shim.Inspect(env, cfg, logger)
	if err != nil {
		return err
	}
	reporter.PrintStatus(st)
	if *showTables {
		reporter.PrintTables(st.Tables, st.TablesErr)
	}
	reporter.Println()
	return nil
}

func decodeRecord() error {
	if *modsFile == "" {
		return fmt.Errorf("-decode 需要配合 -mods 指定加载顺序")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	return decode(newReporter(os.Stdout), cfg, *decodeFile, *modsFile, newLogger())
}

// decode runs the importer over a saved PLGN payload against empty tables
// and prints the remapping it would produce.
func decode(reporter *cli.Reporter, cfg config.Config, payloadPath, modsPath string, logger *slog.Logger) error {
	f, err := os.Open(modsPath)
	if err != nil {
		return fmt.Errorf("打开加载顺序文件失败: %w", err)
	}
	order, err := serial.ParseLoadOrder(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return fmt.Errorf("读取记录文件失败: %w", err)
	}

	buf := memory.NewBuffer(decodeBase, int(cfg.Offsets.ExtenderEnd()))
	module := memory.Module{Name: cfg.TargetModule, Base: decodeBase, Size: uint32(len(buf.Data))}
	store := serial.NewRemapStore(buf, module, cfg.Offsets)
	importer := serial.NewImporter(store, order, logger)

	stream := serial.NewStreamReader(bytes.NewReader(payload))
	sum, importErr := importer.Import(stream)

	reporter.PrintHeader()
	reporter.PrintField("记录文件", fmt.Sprintf("%s (%d / %d 字节)", payloadPath, stream.Consumed(), len(payload)))
	reporter.PrintSummary(sum, importErr)
	reporter.PrintTables(store.Snapshot())
	reporter.Println()
	return nil
}

// writeSample writes the commented sample configuration, refusing to
// overwrite an existing file.
func writeSample(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("创建配置文件失败: %w", err)
	}
	if _, err := f.Write(config.Sample); err != nil {
		_ = f.Close()
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	fmt.Printf("已写入示例配置: %s\n", path)
	return nil
}

func printUsage() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Println("\nVRShim - F4SEVR 兼容补丁检查工具")

	fmt.Println("\n进程模式用法:")
	fmt.Println("  vrshim [-pid <PID> | -process <进程名>] [-fix] [-tables]")
	fmt.Println("\n镜像模式用法:")
	fmt.Println("  vrshim -image <f4sevr_1_2_72.dll>")
	fmt.Println("\n离线解析用法:")
	fmt.Println("  vrshim -decode <记录文件> -mods <plugins.txt>")
	fmt.Println("\n生成示例配置:")
	fmt.Println("  vrshim -init-config [-config vrshim.ini]")
	fmt.Println("\n选项:")
	flag.PrintDefaults()
	fmt.Println()
}
