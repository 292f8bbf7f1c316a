package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/LdDl/mor-go/mor"
	"github.com/LdDl/mor-go/project"
	"github.com/LdDl/mor-go/stats"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func loadContainer(path string) (*mor.Container, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "can't open %s", path)
	}
	container := mor.NewContainer(path)
	if err := container.Load(); err != nil {
		return nil, err
	}
	return container, nil
}

func infoAction(c *cli.Context) error {
	args, err := getArgs(c, "container file")
	if err != nil {
		return err
	}
	container, err := loadContainer(args[0])
	if err != nil {
		return err
	}
	seq := container.Sequence()
	fmt.Printf("File:        %s\n", container.Path())
	fmt.Printf("Coordinates: %s\n", container.CoordType())
	fmt.Printf("Frames:      %d in %d runs\n", seq.FrameCount(), seq.Len())
	if first, last, ok := seq.Bounds(); ok {
		fmt.Printf("Range:       [%d, %d]\n", first, last)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nZONE\tSHAPE\tACTIVE\tTIME, s\tDISTANCE\tCOLOR")
	for _, zone := range container.Zones() {
		shape := "unknown"
		if zone.Geometry != nil {
			shape = zone.Geometry.Kind().String()
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%.2f\t%.2f\t%s (%d%%)\n", zone.Name, shape, zone.Active, zone.Time, zone.Distance, zone.Color, zone.Alpha)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	printFlags(os.Stdout, container.Flags())
	return nil
}

func printFlags(w io.Writer, flags map[uint8]bool) {
	for _, key := range slices.Sorted(maps.Keys(flags)) {
		fmt.Fprintf(w, "Flag %d: %v\n", key, flags[key])
	}
}

func statusAction(c *cli.Context) error {
	args, err := getArgs(c, "project directory")
	if err != nil {
		return err
	}
	storage, err := project.Open(args[0])
	if err != nil {
		return err
	}
	videos, err := storage.ListVideos()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	statuses, err := storage.VideosStatus(ctx, videos)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VIDEO\tMARKED")
	marked := 0
	for _, video := range videos {
		if statuses[video] {
			marked++
		}
		fmt.Fprintf(w, "%s\t%v\n", video, statuses[video])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"project": storage.Config().Name,
		"videos":  len(videos),
		"marked":  marked,
	}).Info("Project status")
	return nil
}

func markAction(c *cli.Context) error {
	args, err := getArgs(c, "project directory", "video")
	if err != nil {
		return err
	}
	storage, err := project.Open(args[0])
	if err != nil {
		return err
	}
	marked := !c.Bool("unset")
	if err := storage.SetMarked(args[1], marked); err != nil {
		return err
	}
	log.WithField("video", args[1]).Infof("Marked: %v", marked)
	return nil
}

func propagateAction(c *cli.Context) error {
	args, err := getArgs(c, "project directory", "template container")
	if err != nil {
		return err
	}
	storage, err := project.Open(args[0])
	if err != nil {
		return err
	}
	template, err := loadContainer(args[1])
	if err != nil {
		return err
	}
	zones := template.Zones()
	paths, err := storage.Containers()
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Propagating zones"),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
	err = storage.PropagateTemplate(zones, func(done, total int, path string) {
		bar.Describe(filepath.Base(path))
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return errors.Wrap(err, "some containers were not updated")
	}
	log.WithField("zones", len(zones)).Info("Template propagated")
	return nil
}

func statsAction(c *cli.Context) error {
	args, err := getArgs(c, "container file")
	if err != nil {
		return err
	}
	container, err := loadContainer(args[0])
	if err != nil {
		return err
	}
	frame := c.Int("frame")
	if frame < 0 {
		frame = stats.AllFrames
	}
	fps, scale := c.Float64("fps"), c.Float64("scale")
	storage, err := project.OpenForContainer(args[0])
	switch {
	case err == nil:
		fps, scale = storage.Config().StatsParams(fps, scale)
	case !errors.Is(err, project.ErrNoProject):
		log.WithError(err).Warn("Can't read project configuration, using command line values only")
	}
	zones := container.Zones()
	result := stats.Calculate(container.Sequence(), zones, fps, frame)

	if c.Bool("save") {
		if err := stats.ApplyToZones(zones, result); err != nil {
			return err
		}
		container.SetZones(zones)
		if err := container.Save(); err != nil {
			return err
		}
	}
	if scale != 0 {
		result, err = stats.Scale(result, scale)
		if err != nil {
			return err
		}
	}

	fmt.Printf("Frames:   %d\n", result.Frames)
	fmt.Printf("Time:     %.2f s\n", result.TotalTime)
	fmt.Printf("Distance: %.2f %s\n", result.TotalDistance, result.Unit)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nZONE\tACTIVE\tTIME, s\tDISTANCE")
	for _, zone := range result.Zones {
		fmt.Fprintf(w, "%s\t%v\t%.2f\t%.2f %s\n", zone.Name, zone.Active, zone.Time, zone.Distance, result.Unit)
	}
	return w.Flush()
}
