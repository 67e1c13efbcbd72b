package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/disko"
	"github.com/dargueta/disko/disks"
	"github.com/dargueta/disko/file_systems/common"
	"github.com/dargueta/disko/file_systems/fat"
)

func main() {
	app := cli.App{
		Usage: "Manage FAT12/16/32 disk image files",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create a blank FAT image from a named geometry",
				Action:    formatImage,
				ArgsUsage: "IMAGE_PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "geometry",
						Usage:    fmt.Sprintf("named disk geometry: one of %v", disks.PredefinedDiskGeometrySlugs()),
						Required: true,
					},
					&cli.UintFlag{
						Name:  "sectors-per-cluster",
						Usage: "sectors per cluster",
						Value: 1,
					},
					&cli.UintFlag{
						Name:  "root-entries",
						Usage: "root directory capacity (FAT12/16 only; must be 0 for FAT32)",
						Value: 224,
					},
				},
			},
			{
				Name:      "ls",
				Usage:     "Mount an image read-only and list a directory",
				Action:    listDirectory,
				ArgsUsage: "IMAGE_PATH PATH",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func formatImage(context *cli.Context) error {
	imagePath := context.Args().First()
	if imagePath == "" {
		return cli.Exit("missing IMAGE_PATH", 1)
	}

	geometry, err := disks.GetPredefinedDiskGeometry(context.String("geometry"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	const sectorSize = 512
	totalSectors := uint32(geometry.TotalSizeBytes() / sectorSize)

	file, err := os.Create(imagePath)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer file.Close()

	if err := file.Truncate(geometry.TotalSizeBytes()); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	device := common.NewSectorStream(file, sectorSize, totalSectors, 0)
	opts := fat.FormatOptions{
		SectorSize:        sectorSize,
		TotalSectors:      totalSectors,
		SectorsPerCluster: uint8(context.Uint("sectors-per-cluster")),
		NumFATs:           2,
		ReservedSectors:   1,
		RootEntryCount:    uint16(context.Uint("root-entries")),
		Media:             0xF0,
		VolumeLabel:       geometry.Slug,
	}

	if err := fat.Format(device, opts); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return device.Flush()
}

func listDirectory(context *cli.Context) error {
	imagePath := context.Args().Get(0)
	targetPath := context.Args().Get(1)
	if imagePath == "" {
		return cli.Exit("missing IMAGE_PATH PATH", 1)
	}
	if targetPath == "" {
		targetPath = "/"
	}

	file, err := os.Open(imagePath)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	const sectorSize = 512
	device := common.NewSectorStream(file, sectorSize, uint32(info.Size()/sectorSize), 0)

	fs, err := fat.Mount(device, disko.MountFlagsAllowRead)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	dir := fs.RootDir()
	path := fat.NewPath(targetPath)
	if path.Name() != "" {
		parent, err := path.Resolve(fs, dir)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		entry, err := parent.FindDirEntry(path.Name())
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if !entry.IsDir() {
			return cli.Exit(fmt.Sprintf("%s: not a directory", targetPath), 1)
		}
		dir = fs.OpenDir(entry.Short.FirstCluster())
	}

	iterator := dir.Iterator()
	for {
		entry, err := iterator.Next()
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if entry == nil {
			break
		}

		kind := "F"
		if entry.IsDir() {
			kind = "D"
		}
		fmt.Printf("%s %10d %s\n", kind, entry.Stat().Size, entry.Name)
	}
	return nil
}
