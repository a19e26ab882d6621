// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootTree(t *testing.T) {
	root := Root()

	want := []string{"mkfs", "mount", "umount", "inspect", "version"}
	seen := make(map[string]bool)
	for _, sub := range root.Subcommands {
		if sub.Name == "" {
			t.Error("subcommand with empty name")
		}
		if seen[sub.Name] {
			t.Errorf("duplicate subcommand %q", sub.Name)
		}
		seen[sub.Name] = true
		if sub.Summary == "" {
			t.Errorf("subcommand %q has no summary", sub.Name)
		}
	}
	for _, name := range want {
		if !seen[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestRootHelpListsCommands(t *testing.T) {
	var out bytes.Buffer
	Root().PrintHelp(&out)
	help := out.String()

	for _, name := range []string{"mkfs", "mount", "umount", "inspect", "version"} {
		if !strings.Contains(help, name) {
			t.Errorf("help output missing %q", name)
		}
	}
}
