// Command fat32defrag analyzes and defragments a FAT32 disk image.
// Grounded on dargueta-disko's cmd/main.go for the urfave/cli/v2 app
// shape, and on original_source/entry.c for the flag surface and
// output-stream redirection it replaces (-h/-l/-x/-a, plus the
// report-only addition -r).
package main

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/diskutils/fat32defrag/blockdevice"
	"github.com/diskutils/fat32defrag/catalog"
	"github.com/diskutils/fat32defrag/defrag"
	fderrors "github.com/diskutils/fat32defrag/errors"
	"github.com/diskutils/fat32defrag/fat32"
	"github.com/diskutils/fat32defrag/report"
)

func main() {
	app := &cli.App{
		Name:      "fat32defrag",
		Usage:     "analyze and defragment a FAT32 disk image",
		ArgsUsage: "IMAGE_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log_file",
				Aliases: []string{"l"},
				Usage:   "redirect program output to `FILE` instead of stdout",
			},
			&cli.BoolFlag{
				Name:    "xmode",
				Aliases: []string{"x"},
				Usage:   "work in X mode (print extra diagnostic detail)",
			},
			&cli.BoolFlag{
				Name:    "analyze",
				Aliases: []string{"a"},
				Usage:   "analyze fragmentation only, don't defragment",
			},
			&cli.StringFlag{
				Name:    "report",
				Aliases: []string{"r"},
				Usage:   "write the per-item fragmentation table to `CSV_FILE`",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\nERROR: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		_ = cli.ShowAppHelp(c)
		return fderrors.BadArguments("expected exactly one argument: the image file path")
	}
	imagePath := c.Args().Get(0)

	output, err := openOutputStream(c.String("log_file"))
	if err != nil {
		return err
	}
	defer output.closeIfFile()

	fmt.Fprintf(output.w, "FAT32 Image Defragmenter\n")

	vol, closeImage, err := openVolume(imagePath)
	if err != nil {
		return err
	}
	defer closeImage()

	tbl, diag, err := catalog.Build(vol)
	if err != nil {
		return err
	}
	if diag.Error != nil && c.Bool("xmode") {
		fmt.Fprintf(output.w, "diagnostics:\n%s", diag.Error)
	}

	fmt.Fprintf(output.w, "items: %d, used clusters: %d, fragmentation: %.2f%%\n",
		len(tbl.Items), tbl.UsedClusters(), tbl.FragmentationPercent())

	if reportPath := c.String("report"); reportPath != "" {
		if err := report.WriteCSV(reportPath, tbl); err != nil {
			return err
		}
		fmt.Fprintf(output.w, "wrote report to %s\n", reportPath)
	}

	if c.Bool("analyze") {
		return nil
	}

	if tbl.FragmentationPercent() < 1.0 {
		fmt.Fprintf(output.w, "disk doesn't need defragmentation\n")
		return nil
	}

	var progress io.Writer = output.w
	if c.Bool("xmode") {
		progress = nil
	}

	stats, err := defrag.Run(vol, tbl, progress)
	if err != nil {
		return err
	}
	fmt.Fprintf(output.w, "defragmentation complete: %d items processed, %d clusters visited\n",
		stats.ItemsProcessed, stats.ClustersVisited)

	return nil
}

// outputStream is the destination for non-error program messages and the
// progress bar, matching entry.c's output_stream (stdout, or the file named
// by -l/--log_file).
type outputStream struct {
	w    io.Writer
	file *os.File
}

func (o *outputStream) closeIfFile() {
	if o.file != nil {
		o.file.Close()
	}
}

func openOutputStream(logFile string) (*outputStream, error) {
	if logFile == "" {
		return &outputStream{w: os.Stdout}, nil
	}

	f, err := os.Create(logFile)
	if err != nil {
		return nil, fderrors.NewWithMessage(syscall.EINVAL, "can't open log file: "+err.Error())
	}
	return &outputStream{w: f, file: f}, nil
}

func openVolume(path string) (*fat32.Volume, func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fderrors.NewWithMessage(syscall.EINVAL, "can't open image file: "+err.Error())
	}

	dev := blockdevice.New(f)
	dev.Mount()

	vol, err := fat32.Mount(dev)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	return vol, func() { f.Close() }, nil
}
