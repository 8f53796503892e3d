package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/crunch"
	"github.com/dargueta/spindle/disk"
	"github.com/dargueta/spindle/drivecode"
	"github.com/dargueta/spindle/script"
	"github.com/urfave/cli/v2"
)

const version = "spindle 3.1"

var verbosity int

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "display version information",
	}

	app := cli.App{
		Name:      "spin",
		Usage:     "Build a disk image with the Spindle trackmo loader",
		Version:   version,
		ArgsUsage: "SCRIPT",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "be verbose; can be specified multiple times",
				Count:   &verbosity,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output filename",
				Value:   "disk.d64",
			},
			&cli.BoolFlag{
				Name:    "40",
				Aliases: []string{"F"},
				Usage:   "create a 40-track disk image",
			},
			&cli.BoolFlag{
				Name:    "squeeze",
				Aliases: []string{"q"},
				Usage:   "compress a little better (and load a little slower)",
			},
			&cli.StringFlag{
				Name:    "entry",
				Aliases: []string{"e"},
				Usage:   "entry point after initial loading, in hex",
			},
			&cli.StringFlag{
				Name:    "resident",
				Aliases: []string{"r"},
				Usage:   "page used by the loader, in hex",
				Value:   "02",
			},
			&cli.StringFlag{
				Name:    "buffer",
				Aliases: []string{"b"},
				Usage:   "page acting as buffer while loading, in hex",
				Value:   "03",
			},
			&cli.StringFlag{
				Name:    "zeropage",
				Aliases: []string{"z"},
				Usage:   "start of zeropage area (five bytes), in hex",
				Value:   "f4",
			},
			&cli.StringFlag{
				Name:    "next-magic",
				Aliases: []string{"n"},
				Usage:   "24-bit code to identify the next disk side",
				Value:   "0",
			},
			&cli.StringFlag{
				Name:    "my-magic",
				Aliases: []string{"m"},
				Usage:   "24-bit code required to enter this side",
				Value:   "54464c",
			},
			&cli.StringFlag{
				Name:    "dirart",
				Aliases: []string{"a"},
				Usage:   "file containing directory art (text, screen dump or D64)",
			},
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "name of disk",
				Value:   "SPINDLE DISK",
			},
			&cli.StringFlag{
				Name:    "disk-id",
				Aliases: []string{"i"},
				Usage:   "disk ID; should differ between sides",
				Value:   "uk",
			},
			&cli.StringFlag{
				Name:    "dir-entry",
				Aliases: []string{"d"},
				Usage:   "which directory entry is the PRG, in hex",
				Value:   "0",
			},
			&cli.IntFlag{
				Name:    "errors",
				Aliases: []string{"E"},
				Usage:   "simulate read errors with given probability (0-99 decimal)",
			},
			&cli.StringFlag{
				Name:    "runtime",
				Usage:   "directory holding the assembled loader runtime",
				Value:   "runtime",
				EnvVars: []string{"SPINDLE_RUNTIME"},
			},
		},
		Action: buildImage,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// hexFlag parses a numeric flag the same way numbers in scripts are parsed.
func hexFlag(context *cli.Context, name string, max int64) (int64, error) {
	raw := context.String(name)
	value, rest := script.ParseParam(raw)
	if strings.TrimSpace(rest) != "" || value > max {
		return 0, spindle.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid value for --%s: %q", name, raw))
	}
	return value, nil
}

func buildImage(context *cli.Context) error {
	if context.NArg() != 1 {
		return cli.ShowAppHelp(context)
	}
	logger := spindle.NewLogger(os.Stderr, verbosity)

	params := map[string]int64{}
	for _, p := range []struct {
		name string
		max  int64
	}{
		{"resident", 0xff},
		{"buffer", 0xff},
		{"zeropage", 0xff},
		{"my-magic", 0xffffffff},
		{"next-magic", 0xffffffff},
		{"dir-entry", 0xffff},
	} {
		value, err := hexFlag(context, p.name, p.max)
		if err != nil {
			return err
		}
		params[p.name] = value
	}

	entry := -1
	if context.IsSet("entry") {
		value, err := hexFlag(context, "entry", 0xffff)
		if err != nil {
			return err
		}
		entry = int(value)
	}

	placement := drivecode.Placement{
		ResidentPage: byte(params["resident"]),
		BufferPage:   byte(params["buffer"]),
		ZeroPage:     byte(params["zeropage"]),
	}
	loaderOpts := disk.LoaderOptions{
		ActiveEntry:  int(params["dir-entry"]),
		MyMagic:      uint32(params["my-magic"]) & 0xffffff,
		NextMagic:    uint32(params["next-magic"]) & 0xffffff,
		ErrorPercent: context.Int("errors"),
		Placement:    placement,
	}
	// Catch bad pages before spending time on the script.
	if err := loaderOpts.Validate(); err != nil {
		return err
	}

	s, err := script.Load(context.Args().First(), entry)
	if err != nil {
		return err
	}
	loaderOpts.Placement.JumpAddress = s.Entry

	loaderOpts.DirArt = disk.DefaultDirArt()
	if path := context.String("dirart"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return spindle.ErrIOFailed.Wrap(err)
		}
		loaderOpts.DirArt, err = disk.LoadDirArt(data, logger)
		if err != nil {
			return err
		}
	}

	rt, err := drivecode.Load(context.String("runtime"))
	if err != nil {
		return err
	}

	img, err := disk.New(
		disk.Options{
			Title:       context.String("title"),
			ID:          context.String("disk-id"),
			FortyTracks: context.Bool("40"),
			Squeeze:     context.Bool("squeeze"),
			Branches:    rt.Branches(),
			Logger:      logger,
		})
	if err != nil {
		return err
	}

	cursor, err := img.StoreLoader(rt, loaderOpts)
	if err != nil {
		return err
	}

	packOpts := crunch.Options{
		LoaderPage:   placement.ResidentPage,
		Squeeze:      context.Bool("squeeze"),
		PatchOffsets: rt.PatchOffsets,
		Logger:       logger,
	}
	job := 0
	for _, group := range s.Groups {
		if group.IsSeekPoint() {
			if err = cursor.SetSeekPoint(group.SeekSlot); err != nil {
				return err
			}
			continue
		}
		_, err = crunch.CompressJob(group.Chunks, cursor, byte('0'+job%10), packOpts)
		if err != nil {
			return err
		}
		job++
	}

	if err = cursor.CloseSide(loaderOpts.NextMagic == 0); err != nil {
		return err
	}
	s.Dump(logger)
	return img.WriteFile(context.String("output"))
}
