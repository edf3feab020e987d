// Package state describes where fleetctl keeps its own files under a
// project directory and offers small helpers to read them back.
package state

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	StateDirName = ".fleetctl"
	LogsDirName  = "logs"
	LockFilename = "fleetctl.lock"
	LogExt       = ".log"
)

func StateDir(projectDir string) string {
	return filepath.Join(projectDir, StateDirName)
}

// LogsDir holds one operation log per CLI invocation.
func LogsDir(projectDir string) string {
	return filepath.Join(projectDir, StateDirName, LogsDirName)
}

func LockPath(projectDir string) string {
	return filepath.Join(projectDir, StateDirName, LockFilename)
}

// OperationLogs lists operation log files, newest first. Names embed a
// sortable timestamp after the command name, so mtime is used for ordering.
func OperationLogs(projectDir string, command string) ([]string, error) {
	dir := LogsDir(projectDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read logs dir")
	}

	type item struct {
		path string
		mod  int64
	}
	var items []item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), LogExt) {
			continue
		}
		if command != "" && !strings.HasPrefix(e.Name(), command+"_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{path: filepath.Join(dir, e.Name()), mod: info.ModTime().UnixNano()})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].mod != items[j].mod {
			return items[i].mod > items[j].mod
		}
		return items[i].path > items[j].path
	})

	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.path)
	}
	return out, nil
}
