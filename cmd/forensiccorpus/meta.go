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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// metaConfig is the meta-folder's config.json (spec.md §6).
type metaConfig struct {
	ImageFiles []string `json:"image_files"`
}

// metaFolder bundles the on-disk layout and single-writer lock for one
// analysis workspace, spec.md §6's directory contract.
type metaFolder struct {
	root string
	lock *flock.Flock
}

// openMetaFolder validates (or, if create is true, creates) root's
// directory layout, records imagePaths into config.json, and takes the
// single-writer lock spec.md §5 requires across the whole process
// lifetime.
func openMetaFolder(root string, create bool, imagePaths []string) (*metaFolder, error) {
	if root == "" {
		return nil, wrapUsageErr(fmt.Errorf("forensiccorpus: --meta_folder is required"))
	}
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if !create {
			return nil, wrapMetaFolderErr(fmt.Errorf("forensiccorpus: meta folder %s does not exist (pass --meta_create)", root))
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, wrapMetaFolderErr(fmt.Errorf("forensiccorpus: create meta folder: %w", err))
		}
	case err != nil:
		return nil, wrapMetaFolderErr(fmt.Errorf("forensiccorpus: stat meta folder: %w", err))
	case !info.IsDir():
		return nil, wrapMetaFolderErr(fmt.Errorf("forensiccorpus: %s is not a directory", root))
	}

	for _, sub := range []string{"logs", "reports", "extracts"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, wrapMetaFolderErr(fmt.Errorf("forensiccorpus: create %s: %w", sub, err))
		}
	}

	mf := &metaFolder{root: root, lock: flock.New(filepath.Join(root, ".lock"))}
	locked, err := mf.lock.TryLock()
	if err != nil {
		return nil, wrapMetaFolderErr(fmt.Errorf("forensiccorpus: lock meta folder: %w", err))
	}
	if !locked {
		holder, _ := os.ReadFile(mf.tokenPath())
		return nil, wrapMetaFolderErr(fmt.Errorf("forensiccorpus: meta folder %s is locked by another process (token %s)", root, holder))
	}
	// Record a fresh token identifying this process's hold on the lock,
	// so a stale .lock left by a crashed process (the OS already
	// released the flock itself) can still be told apart from a live
	// holder across a reboot by comparing tokens.
	if err := os.WriteFile(mf.tokenPath(), []byte(uuid.New().String()), 0o644); err != nil {
		mf.lock.Unlock()
		return nil, wrapMetaFolderErr(fmt.Errorf("forensiccorpus: write lock token: %w", err))
	}

	if len(imagePaths) > 0 {
		if err := mf.mergeConfig(imagePaths); err != nil {
			mf.Close()
			return nil, wrapMetaFolderErr(err)
		}
	}
	return mf, nil
}

func (mf *metaFolder) configPath() string { return filepath.Join(mf.root, "config.json") }

func (mf *metaFolder) tokenPath() string { return filepath.Join(mf.root, ".lock.token") }

func (mf *metaFolder) loadConfig() (metaConfig, error) {
	var cfg metaConfig
	raw, err := os.ReadFile(mf.configPath())
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("forensiccorpus: read config.json: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("forensiccorpus: parse config.json: %w", err)
	}
	return cfg, nil
}

// mergeConfig records imagePaths into config.json, deduplicating
// against whatever a prior --meta_create run already recorded.
func (mf *metaFolder) mergeConfig(imagePaths []string) error {
	cfg, err := mf.loadConfig()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(cfg.ImageFiles))
	for _, p := range cfg.ImageFiles {
		seen[p] = true
	}
	for _, p := range imagePaths {
		if !seen[p] {
			cfg.ImageFiles = append(cfg.ImageFiles, p)
			seen[p] = true
		}
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("forensiccorpus: marshal config.json: %w", err)
	}
	if err := os.WriteFile(mf.configPath(), raw, 0o644); err != nil {
		return fmt.Errorf("forensiccorpus: write config.json: %w", err)
	}
	return nil
}

// Close releases the meta-folder's single-writer lock.
func (mf *metaFolder) Close() error {
	if mf.lock == nil {
		return nil
	}
	return mf.lock.Unlock()
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeFilename replaces every character outside [A-Za-z0-9_-] with
// an underscore, spec.md §6 "Filenames are constrained to
// [A-Za-z0-9_-]".
func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// storePath renders the `<classname>_<part>.db` path spec.md §6 names
// for one artifact class and partition slot.
func (mf *metaFolder) storePath(class, part string) string {
	return filepath.Join(mf.root, fmt.Sprintf("%s_%s.db", class, sanitizeFilename(part)))
}

// extractBatchDir renders a fresh `extracts/<timestamp>/` directory
// for one --extract invocation.
func (mf *metaFolder) extractBatchDir(now time.Time) (string, error) {
	dir := filepath.Join(mf.root, "extracts", now.UTC().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("forensiccorpus: create extract batch dir: %w", err)
	}
	return dir, nil
}
