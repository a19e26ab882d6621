// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"testing"

	"github.com/stratafs/strata/lib/device"
	"github.com/stratafs/strata/lib/fs"
	"github.com/stratafs/strata/lib/layout"
)

func formatted(t *testing.T) (*device.MemDevice, layout.Geometry) {
	t.Helper()
	dev := device.NewMem(layout.DefaultImageBlocks)
	geometry, err := fs.Mkfs(dev, fs.MkfsOptions{})
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	return dev, geometry
}

func TestBuildReportFreshImage(t *testing.T) {
	dev, geometry := formatted(t)

	report, err := buildReport("test.img", dev, false)
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}

	if report.SuperBlock.Size != layout.DefaultImageBlocks {
		t.Errorf("Size = %d, want %d", report.SuperBlock.Size, layout.DefaultImageBlocks)
	}
	if report.PendingLog != 0 {
		t.Errorf("PendingLog = %d, want 0 on a fresh image", report.PendingLog)
	}
	// A fresh image uses only the root inode.
	if report.UsedInodes != 1 {
		t.Errorf("UsedInodes = %d, want 1", report.UsedInodes)
	}
	// Everything past the root directory's data block is free.
	wantFree := geometry.Blocks - (geometry.DataStart + 1)
	if report.FreeBlocks != wantFree {
		t.Errorf("FreeBlocks = %d, want %d", report.FreeBlocks, wantFree)
	}
}

func TestBuildReportAfterWrites(t *testing.T) {
	dev, _ := formatted(t)

	fsys, err := fs.Mount(dev, fs.Options{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	info, err := fsys.Create(layout.RootIno, "data")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := make([]byte, 3*layout.BlockSize)
	if _, err := fsys.WriteAt(info.Inum, payload, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := fsys.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	report, err := buildReport("test.img", dev, false)
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if report.UsedInodes != 2 {
		t.Errorf("UsedInodes = %d, want 2", report.UsedInodes)
	}
}

func TestBuildReportRejectsUnformatted(t *testing.T) {
	dev := device.NewMem(layout.DefaultImageBlocks)
	if _, err := buildReport("test.img", dev, false); err == nil {
		t.Error("buildReport should reject an unformatted image")
	}
}

func TestFingerprintDetectsChanges(t *testing.T) {
	dev, _ := formatted(t)

	first, err := buildReport("test.img", dev, true)
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if first.Fingerprint == "" {
		t.Fatal("fingerprint missing")
	}

	again, err := buildReport("test.img", dev, true)
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if again.Fingerprint != first.Fingerprint {
		t.Error("fingerprint changed without writes")
	}

	fsys, err := fs.Mount(dev, fs.Options{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if _, err := fsys.Create(layout.RootIno, "x"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fsys.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	changed, err := buildReport("test.img", dev, true)
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if changed.Fingerprint == first.Fingerprint {
		t.Error("fingerprint unchanged after writes")
	}
}
