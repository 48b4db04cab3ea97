package sidecar

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/quickview/desktop/internal/files"
)

var ErrNotFound = errors.New("sidecar executable not found")

// targetTriples maps GOOS/GOARCH to the target triple that desktop bundlers append to sidecar file names.
var targetTriples = map[string]string{
	"linux/amd64":   "x86_64-unknown-linux-gnu",
	"linux/arm64":   "aarch64-unknown-linux-gnu",
	"darwin/amd64":  "x86_64-apple-darwin",
	"darwin/arm64":  "aarch64-apple-darwin",
	"windows/amd64": "x86_64-pc-windows-msvc",
	"windows/arm64": "aarch64-pc-windows-msvc",
}

// TargetTriple returns the target triple for the running platform, or "" if unknown.
func TargetTriple() string {
	return targetTriples[runtime.GOOS+"/"+runtime.GOARCH]
}

// Resolve locates the sidecar executable called name.
//
// A name containing a path separator is returned unchanged. Otherwise the directory of the running
// executable is checked for name and name-<target triple>, then a binaries/<name> file is searched
// for from the working directory upward, and finally PATH is consulted. Errors during the upward
// search do not prevent the PATH lookup.
func Resolve(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return name, nil
	}

	exe, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exe)
		for _, candidate := range candidateNames(name) {
			p := filepath.Join(exeDir, candidate)
			if isFile(p) {
				return p, nil
			}
		}
	}

	var searchErr error
	wd, err := os.Getwd()
	if err == nil {
	search:
		for _, candidate := range candidateNames(name) {
			p, err := files.FindUp(filepath.Join("binaries", candidate), wd)
			switch {
			case err != nil:
				searchErr = fmt.Errorf("searching for sidecar: %w", err)
				break search
			case p != "":
				return p, nil
			}
		}
	}

	p, err := exec.LookPath(name)
	if err != nil {
		if searchErr != nil {
			return "", fmt.Errorf("%w: %q (%s)", ErrNotFound, name, searchErr)
		}
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

func candidateNames(name string) []string {
	ext := ""
	if runtime.GOOS == "windows" {
		ext = ".exe"
	}
	names := []string{name + ext}
	if triple := TargetTriple(); triple != "" {
		names = append(names, name+"-"+triple+ext)
	}
	return names
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
