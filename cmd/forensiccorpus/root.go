// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensiccorpus/corpus/internal/env"
	"github.com/forensiccorpus/corpus/internal/logging"
	"github.com/forensiccorpus/corpus/internal/volume"
)

// flags mirrors the CLI surface spec.md §6 names as a single flat
// flag set; forensiccorpus dispatches on which action flags were set
// rather than using cobra subcommands, matching the spec's own framing
// of the CLI as one command with many toggles.
type flags struct {
	metaFolder   string
	metaCreate   bool
	scanDir      string
	image        []string
	part         []int
	bdeRecovery  string
	analyzeStart string
	analyzeEnd   string

	listPartitions  bool
	prepareFiles    bool
	prepareVSS      bool
	hash            string
	filetypes       bool
	prepareEvtx     bool
	carveEvtx       bool
	prepareUSN      bool
	carveUSN        bool
	preparePrefetch bool
	carvePrefetch   bool
	prepareLnk      bool
	carveLnk        bool
	prepareReg      bool
	extract         string
	scanFilename    string
	scanFiletype    string
	scanHashlist    string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "forensiccorpus",
		Short:         "Digital forensics evidence extraction and correlation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	pf := cmd.Flags()
	pf.StringVar(&f.metaFolder, "meta_folder", "", "analysis workspace directory")
	pf.BoolVar(&f.metaCreate, "meta_create", false, "create --meta_folder if it does not exist")
	pf.StringVar(&f.scanDir, "scan_dir", "", "directory to scan for image files")
	pf.StringSliceVar(&f.image, "image", nil, "image file path(s); repeat or comma-separate for segmented containers")
	pf.IntSliceVar(&f.part, "part", nil, "restrict to these partition slot numbers (repeatable)")
	pf.StringVar(&f.bdeRecovery, "bde_recovery", "", "BitLocker recovery password")
	pf.StringVar(&f.analyzeStart, "analyze_start", "", "timeline window start, YYYY-MM-DD UTC")
	pf.StringVar(&f.analyzeEnd, "analyze_end", "", "timeline window end, YYYY-MM-DD UTC")

	pf.BoolVar(&f.listPartitions, "list_partitions", false, "print the image's partition table")
	pf.BoolVar(&f.prepareFiles, "prepare_files", false, "walk the live filesystem of each selected partition")
	pf.BoolVar(&f.prepareVSS, "prepare_vss", false, "enumerate Volume Shadow Copy stores")
	pf.StringVar(&f.hash, "hash", "", "compute a content digest over Files rows: md5, sha1, sha256, or tlsh")
	pf.BoolVar(&f.filetypes, "filetypes", false, "derive signature-based file_type for Files rows")
	pf.BoolVar(&f.prepareEvtx, "prepare_evtx", false, "structured-parse .evtx files found under Files")
	pf.BoolVar(&f.carveEvtx, "carve_evtx", false, "carve raw partition bytes for event records")
	pf.BoolVar(&f.prepareUSN, "prepare_usn", false, "stream-parse the live $UsnJrnl:$J")
	pf.BoolVar(&f.carveUSN, "carve_usn", false, "carve raw partition bytes for USN records")
	pf.BoolVar(&f.preparePrefetch, "prepare_prefetch", false, "structured-parse .pf files found under Files")
	pf.BoolVar(&f.carvePrefetch, "carve_prefetch", false, "carve raw partition bytes for prefetch records")
	pf.BoolVar(&f.prepareLnk, "prepare_lnk", false, "structured-parse .lnk files found under Files")
	pf.BoolVar(&f.carveLnk, "carve_lnk", false, "carve raw partition bytes for LNK records")
	pf.BoolVar(&f.prepareReg, "prepare_reg", false, "parse every known registry hive")
	pf.StringVar(&f.extract, "extract", "", "extract one file by path or meta_addr, optionally vss#N:-prefixed")
	pf.StringVar(&f.scanFilename, "scan_filename", "", "filter Files rows by name substring")
	pf.StringVar(&f.scanFiletype, "scan_filetype", "", "filter Files rows by file_type")
	pf.StringVar(&f.scanHashlist, "scan_hashlist", "", "path to a newline-delimited list of hashes to match against Files rows")

	return cmd
}

// run resolves the global environment and dispatches to exactly the
// actions the caller requested, in the fixed order spec.md §4 lays its
// subsystems out in (partitions/files first, then hash/type
// enrichment, then each carve subsystem, then extraction/search).
func run(f *flags) error {
	osFS := afero.NewOsFs()
	images, err := resolveImages(osFS, f)
	if err != nil {
		return err
	}

	mf, err := openMetaFolder(f.metaFolder, f.metaCreate, images)
	if err != nil {
		return err
	}
	defer mf.Close()

	closeLog, err := logging.Init(f.metaFolder)
	if err != nil {
		return wrapMetaFolderErr(err)
	}
	defer closeLog()

	environment, err := buildEnvironment(f, images)
	if err != nil {
		return err
	}

	disk, err := volume.Open(images)
	if err != nil {
		return fmt.Errorf("forensiccorpus: open image: %w", err)
	}
	defer disk.Close()

	a := &app{env: environment, meta: mf, disk: disk, fs: osFS}

	if f.listPartitions {
		if err := a.listPartitions(); err != nil {
			return err
		}
	}
	if f.prepareFiles {
		if err := a.preparePartitions(a.prepareFilesForPartition); err != nil {
			return err
		}
	}
	if f.prepareVSS {
		if err := a.preparePartitions(a.prepareVSSForPartition); err != nil {
			return err
		}
	}
	if f.hash != "" {
		if err := a.preparePartitions(func(p volume.Partition) error { return a.hashFiles(p, f.hash) }); err != nil {
			return err
		}
	}
	if f.filetypes {
		if err := a.preparePartitions(a.detectFiletypes); err != nil {
			return err
		}
	}
	if f.prepareEvtx {
		if err := a.preparePartitions(a.prepareEvtxForPartition); err != nil {
			return err
		}
	}
	if f.carveEvtx {
		if err := a.preparePartitions(a.carveEvtxForPartition); err != nil {
			return err
		}
	}
	if f.prepareUSN {
		if err := a.preparePartitions(a.prepareUSNForPartition); err != nil {
			return err
		}
	}
	if f.carveUSN {
		if err := a.preparePartitions(a.carveUSNForPartition); err != nil {
			return err
		}
	}
	if f.preparePrefetch {
		if err := a.preparePartitions(a.preparePrefetchForPartition); err != nil {
			return err
		}
	}
	if f.carvePrefetch {
		if err := a.preparePartitions(a.carvePrefetchForPartition); err != nil {
			return err
		}
	}
	if f.prepareLnk {
		if err := a.preparePartitions(a.prepareLnkForPartition); err != nil {
			return err
		}
	}
	if f.carveLnk {
		if err := a.preparePartitions(a.carveLnkForPartition); err != nil {
			return err
		}
	}
	if f.prepareReg {
		if err := a.preparePartitions(a.prepareRegForPartition); err != nil {
			return err
		}
	}
	if f.extract != "" {
		if err := a.runExtract(f.extract); err != nil {
			return err
		}
	}
	if f.scanFilename != "" {
		if err := a.scanFilename(f.scanFilename); err != nil {
			return err
		}
	}
	if f.scanFiletype != "" {
		if err := a.scanFiletype(f.scanFiletype); err != nil {
			return err
		}
	}
	if f.scanHashlist != "" {
		if err := a.scanHashlist(f.scanHashlist); err != nil {
			return err
		}
	}
	return nil
}

// resolveImages merges --image with every regular file --scan_dir
// names, spec.md §6 global flags.
func resolveImages(fs afero.Fs, f *flags) ([]string, error) {
	images := append([]string(nil), f.image...)
	if f.scanDir != "" {
		entries, err := afero.ReadDir(fs, f.scanDir)
		if err != nil {
			return nil, wrapUsageErr(fmt.Errorf("forensiccorpus: scan_dir: %w", err))
		}
		for _, e := range entries {
			if !e.IsDir() {
				images = append(images, filepath.Join(f.scanDir, e.Name()))
			}
		}
	}
	if len(images) == 0 {
		return nil, wrapUsageErr(fmt.Errorf("forensiccorpus: no image given: pass --image or --scan_dir"))
	}
	return images, nil
}

func buildEnvironment(f *flags, images []string) (*env.Environment, error) {
	e := &env.Environment{
		MetaFolder:          f.metaFolder,
		ImagePath:           images[0],
		BDERecoveryPassword: f.bdeRecovery,
	}
	for _, p := range f.part {
		e.PartitionFilter = append(e.PartitionFilter, p)
	}
	if f.analyzeStart != "" {
		t, err := parseAnalyzeDate(f.analyzeStart)
		if err != nil {
			return nil, wrapUsageErr(fmt.Errorf("forensiccorpus: analyze_start: %w", err))
		}
		e.AnalyzeStart = t
	}
	if f.analyzeEnd != "" {
		t, err := parseAnalyzeDate(f.analyzeEnd)
		if err != nil {
			return nil, wrapUsageErr(fmt.Errorf("forensiccorpus: analyze_end: %w", err))
		}
		e.AnalyzeEnd = t
	}
	return e, nil
}

func parseAnalyzeDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}
