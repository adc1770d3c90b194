// shapetool is a CLI utility for inspecting Darkstar shape assets and the
// volume archives that carry them.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jamesu/TribesViewer-sub000/internal/config"
	"github.com/jamesu/TribesViewer-sub000/internal/engine/anim"
	"github.com/jamesu/TribesViewer-sub000/internal/logger"
	"github.com/jamesu/TribesViewer-sub000/pkg/darkstar"
	"github.com/jamesu/TribesViewer-sub000/pkg/vol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(cfg, args)
	case "sequences", "seq":
		cmdSequences(cfg, args)
	case "nodes":
		cmdNodes(cfg, args)
	case "materials", "mat":
		cmdMaterials(cfg, args)
	case "animate":
		cmdAnimate(cfg, args)
	case "vol":
		cmdVol(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`shapetool - Darkstar shape and volume utility

Usage:
  shapetool <command> [options]

Commands:
  info <file.dts>                      Show shape information
  sequences <file.dts>                 List animation sequences
  nodes <file.dts>                     Print the node hierarchy
  materials <file.dts|file.dml>        List materials
  animate <file.dts> <sequence>        Step a sequence and print object states
  vol list <file.vol> [pattern]        List archive contents
  vol extract <file.vol> <name> [dir]  Extract a file from an archive

Examples:
  shapetool info harbinger.dts
  shapetool sequences -vol entities.vol lgoblin.dts
  shapetool animate -steps 8 lgoblin.dts run
  shapetool vol list entities.vol "*.dts"`)
}

// newManager builds the file source from config paths plus any -path/-vol
// flags already applied to cfg.
func newManager(cfg *config.Config) *vol.Manager {
	mgr := vol.NewManager()
	for _, p := range cfg.Data.Paths {
		mgr.AddPath(p)
	}
	for _, v := range cfg.Data.Volumes {
		if err := mgr.AddVolume(v); err != nil {
			logger.Warn("skipping volume", zap.String("path", v), zap.Error(err))
		}
	}
	return mgr
}

func addSourceFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.Func("path", "Extra loose data directory", func(s string) error {
		cfg.Data.Paths = append(cfg.Data.Paths, s)
		return nil
	})
	fs.Func("vol", "Extra volume archive", func(s string) error {
		cfg.Data.Volumes = append(cfg.Data.Volumes, s)
		return nil
	})
}

func loadShape(cfg *config.Config, name string) (*darkstar.Shape, *vol.Manager) {
	mgr := newManager(cfg)
	reg := darkstar.NewRegistry()
	asset, err := reg.LoadObject(mgr, name)
	if err != nil {
		mgr.Close()
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", name, err)
		os.Exit(1)
	}
	shape, ok := asset.(*darkstar.Shape)
	if !ok {
		mgr.Close()
		fmt.Fprintf(os.Stderr, "%s is not a shape (got %T)\n", name, asset)
		os.Exit(1)
	}
	return shape, mgr
}

func cmdInfo(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	addSourceFlags(fs, cfg)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shapetool info <file.dts>")
		os.Exit(1)
	}

	shape, mgr := loadShape(cfg, fs.Arg(0))
	defer mgr.Close()

	fmt.Printf("Shape:      %s\n", fs.Arg(0))
	fmt.Printf("Radius:     %.3f\n", shape.Radius)
	fmt.Printf("Center:     (%.3f, %.3f, %.3f)\n", shape.Center[0], shape.Center[1], shape.Center[2])
	fmt.Printf("Bounds:     (%.3f, %.3f, %.3f) .. (%.3f, %.3f, %.3f)\n",
		shape.MinBounds[0], shape.MinBounds[1], shape.MinBounds[2],
		shape.MaxBounds[0], shape.MaxBounds[1], shape.MaxBounds[2])
	fmt.Printf("Nodes:      %d\n", len(shape.Nodes))
	fmt.Printf("Objects:    %d\n", len(shape.Objects))
	fmt.Printf("Meshes:     %d\n", len(shape.Meshes))
	fmt.Printf("Sequences:  %d\n", len(shape.Sequences))
	fmt.Printf("Keyframes:  %d\n", len(shape.Keyframes))
	fmt.Printf("Transforms: %d\n", len(shape.Transforms))
	if shape.AlwaysNode >= 0 {
		fmt.Printf("AlwaysNode: %s\n", nodeName(shape, int32(shape.AlwaysNode)))
	}

	fmt.Println()
	fmt.Println("Details:")
	for i, d := range shape.Details {
		fmt.Printf("  %2d: root=%-24s size=%.2f\n", i, nodeName(shape, d.RootNode), d.Size)
	}

	if shape.Materials != nil {
		fmt.Printf("\nMaterials:  %d (%d detail rows)\n",
			len(shape.Materials.Materials), shape.Materials.NumDetails)
	}
}

func cmdSequences(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("sequences", flag.ExitOnError)
	addSourceFlags(fs, cfg)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shapetool sequences <file.dts>")
		os.Exit(1)
	}

	shape, mgr := loadShape(cfg, fs.Arg(0))
	defer mgr.Close()

	for i, seq := range shape.Sequences {
		kind := "clamped"
		if seq.Cyclic {
			kind = "cyclic"
		}
		fmt.Printf("%2d: %-20s %7.3fs %-8s priority=%d triggers=%d\n",
			i, shape.GetName(seq.Name), seq.Duration, kind, seq.Priority, seq.NumTriggerFrames)
	}
}

func cmdNodes(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("nodes", flag.ExitOnError)
	addSourceFlags(fs, cfg)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shapetool nodes <file.dts>")
		os.Exit(1)
	}

	shape, mgr := loadShape(cfg, fs.Arg(0))
	defer mgr.Close()

	for _, root := range shape.Children(-1) {
		printNodeTree(shape, int32(root), 0)
	}
}

func printNodeTree(shape *darkstar.Shape, nodeIdx int32, depth int) {
	node := &shape.Nodes[nodeIdx]
	fmt.Printf("%s%s (subsequences=%d)\n",
		strings.Repeat("  ", depth), nodeName(shape, nodeIdx), node.NumSubSequences)
	for _, c := range shape.Children(nodeIdx) {
		printNodeTree(shape, int32(c), depth+1)
	}
}

func nodeName(shape *darkstar.Shape, nodeIdx int32) string {
	if nodeIdx < 0 || int(nodeIdx) >= len(shape.Nodes) {
		return fmt.Sprintf("<node %d>", nodeIdx)
	}
	name := shape.GetName(int32(shape.Nodes[nodeIdx].Name))
	if name == "" {
		return fmt.Sprintf("<node %d>", nodeIdx)
	}
	return name
}

func cmdMaterials(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("materials", flag.ExitOnError)
	addSourceFlags(fs, cfg)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shapetool materials <file.dts|file.dml>")
		os.Exit(1)
	}

	mgr := newManager(cfg)
	defer mgr.Close()

	reg := darkstar.NewRegistry()
	asset, err := reg.LoadObject(mgr, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", fs.Arg(0), err)
		os.Exit(1)
	}

	var list *darkstar.MaterialList
	switch a := asset.(type) {
	case *darkstar.MaterialList:
		list = a
	case *darkstar.Shape:
		list = a.Materials
	default:
		fmt.Fprintf(os.Stderr, "%s carries no materials (got %T)\n", fs.Arg(0), asset)
		os.Exit(1)
	}
	if list == nil {
		fmt.Println("(no material list)")
		return
	}

	for i, m := range list.Materials {
		fmt.Printf("%3d: %-32s flags=0x%08x alpha=%.2f\n", i, m.Filename, m.Flags, m.Alpha)
	}
}

func cmdAnimate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("animate", flag.ExitOnError)
	steps := fs.Int("steps", 4, "Number of animation steps")
	dt := fs.Float64("dt", 0, "Seconds per step (0 = duration/steps)")
	addSourceFlags(fs, cfg)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: shapetool animate <file.dts> <sequence>")
		os.Exit(1)
	}

	shape, mgr := loadShape(cfg, fs.Arg(0))
	defer mgr.Close()

	seqID := shape.FindSequence(fs.Arg(1))
	if seqID < 0 {
		fmt.Fprintf(os.Stderr, "Sequence not found: %s\n", fs.Arg(1))
		os.Exit(1)
	}
	seq := &shape.Sequences[seqID]

	inst, err := anim.NewInstance(shape)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building instance: %v\n", err)
		os.Exit(1)
	}
	inst.SelectDetail(cfg.Viewer.DetailDistance, cfg.Viewer.Width, cfg.Viewer.Height)

	tid := inst.AddThread()
	inst.SetThreadSequence(tid, seqID)

	step := float32(*dt)
	if step <= 0 {
		step = seq.Duration / float32(*steps)
	}

	fmt.Printf("Sequence %s: %.3fs cyclic=%v detail=%d\n",
		shape.GetName(seq.Name), seq.Duration, seq.Cyclic, inst.CurrentDetail())

	for s := 0; s <= *steps; s++ {
		inst.Animate()
		fmt.Printf("t=%.3f pos=%.3f\n", float32(s)*step, inst.Thread(tid).Pos)
		for oi := range shape.Objects {
			frame, texFrame, draw := inst.ObjectState(oi)
			fmt.Printf("  obj %2d %-20s frame=%d texframe=%d draw=%v\n",
				oi, shape.GetName(int32(shape.Objects[oi].Name)), frame, texFrame, draw)
		}
		inst.AdvanceThreads(step)
	}
}

func cmdVol(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shapetool vol <list|extract> <file.vol> ...")
		os.Exit(1)
	}
	switch args[0] {
	case "list", "ls":
		cmdVolList(args[1:])
	case "extract", "x":
		cmdVolExtract(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown vol command: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdVolList(args []string) {
	fs := flag.NewFlagSet("vol list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N files (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: shapetool vol list <file.vol> [pattern]")
		os.Exit(1)
	}

	archive, err := vol.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	pattern := ""
	if fs.NArg() > 1 {
		pattern = strings.ToLower(fs.Arg(1))
	}

	count := 0
	for _, e := range archive.Entries() {
		if pattern != "" {
			matched, _ := filepath.Match(pattern, strings.ToLower(e.Name))
			if !matched && !strings.Contains(strings.ToLower(e.Name), pattern) {
				continue
			}
		}
		fmt.Printf("%-32s %8d\n", e.Name, e.Size)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(os.Stderr, "\n(%d files matched)\n", count)
	}
}

func cmdVolExtract(args []string) {
	fs := flag.NewFlagSet("vol extract", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: shapetool vol extract <file.vol> <name> [output_dir]")
		os.Exit(1)
	}

	outputDir := "."
	if fs.NArg() > 2 {
		outputDir = fs.Arg(2)
	}

	archive, err := vol.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	data, err := archive.ReadFile(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	outputPath := filepath.Join(outputDir, filepath.Base(fs.Arg(1)))
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Extracted: %s (%d bytes)\n", outputPath, len(data))
}
