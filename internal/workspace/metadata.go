// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"os"
	"path/filepath"
)

// manifestFiles are the package manifests recognized by Metadata.
var manifestFiles = []string{
	"package.json",
	"go.mod",
	"Cargo.toml",
	"pyproject.toml",
	"requirements.txt",
	"pom.xml",
	"build.gradle",
	"composer.json",
	"Gemfile",
}

// Info describes the workspace root.
type Info struct {
	Name               string   `json:"name"`
	AbsolutePath       string   `json:"absolutePath"`
	HasGit             bool     `json:"hasGit"`
	HasPackageManifest bool     `json:"hasPackageManifest"`
	Manifests          []string `json:"manifests,omitempty"`
}

// Metadata reports the workspace name, location and project markers.
func (w *Workspace) Metadata() Info {
	info := Info{
		Name:         filepath.Base(w.root),
		AbsolutePath: w.root,
	}
	if _, err := os.Stat(filepath.Join(w.root, ".git")); err == nil {
		info.HasGit = true
	}
	for _, name := range manifestFiles {
		if st, err := os.Stat(filepath.Join(w.root, name)); err == nil && !st.IsDir() {
			info.Manifests = append(info.Manifests, name)
		}
	}
	info.HasPackageManifest = len(info.Manifests) > 0
	return info
}
